package webhooks

import (
	"context"
	"net/http"

	"github.com/angelmondragon/missions-backend/api/responses"
	"github.com/angelmondragon/missions-backend/api/validators"
	"github.com/angelmondragon/missions-backend/internal/billing"
	billingwebhook "github.com/angelmondragon/missions-backend/internal/webhooks/billing"
	pkgerrors "github.com/angelmondragon/missions-backend/pkg/errors"
	"github.com/angelmondragon/missions-backend/pkg/logger"
)

type BillingWebhookService interface {
	HandleEvent(ctx context.Context, event billing.Event) (billingwebhook.Result, error)
}

// BillingWebhook accepts normalized billing events. Signature verification
// happens at the edge before the event reaches this service.
func BillingWebhook(svc BillingWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		var event billing.Event
		if err := validators.DecodeJSONBody(r, &event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := event.Validate(); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()))
			return
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"event_id":   event.ID,
				"event_type": string(event.Type),
			})
		}

		result, err := svc.HandleEvent(ctx, event)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
