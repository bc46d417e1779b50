package billingwebhook

import (
	"context"
	"errors"

	"github.com/angelmondragon/missions-backend/internal/billing"
	"github.com/angelmondragon/missions-backend/internal/subscriptions"
	pkgerrors "github.com/angelmondragon/missions-backend/pkg/errors"
	"github.com/angelmondragon/missions-backend/pkg/logger"
)

const GuardScope = "billing_event"

type eventApplier interface {
	ApplyExternalEvent(ctx context.Context, event billing.Event) (subscriptions.ApplyResult, error)
}

type guard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type ServiceParams struct {
	Subscriptions eventApplier
	Guard         guard
	Logger        *logger.Logger
}

// Service receives already-verified provider events.
type Service struct {
	subs  eventApplier
	guard guard
	logg  *logger.Logger
}

// Result is returned to the provider; redeliveries are acknowledged the same
// way as first deliveries.
type Result struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Subscriptions == nil {
		return nil, errors.New("subscription service required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	return &Service{subs: params.Subscriptions, guard: params.Guard, logg: params.Logger}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event billing.Event) (Result, error) {
	if s.guard != nil && event.ID != "" {
		seen, err := s.guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "billing idempotency guard unavailable")
		} else if seen {
			return Result{Received: true, Duplicate: true}, nil
		}
	}

	res, err := s.subs.ApplyExternalEvent(ctx, event)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeDuplicateEvent) {
			return Result{Received: true, Duplicate: true}, nil
		}
		if s.guard != nil && event.ID != "" {
			if delErr := s.guard.Delete(ctx, event.ID); delErr != nil {
				s.logg.Error(ctx, "failed to clear billing idempotency key", delErr)
			}
		}
		return Result{}, err
	}
	return Result{Received: true, Outcome: res.Outcome}, nil
}
