package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/missions-backend/api/responses"
	"github.com/angelmondragon/missions-backend/api/validators"
	"github.com/angelmondragon/missions-backend/internal/credits"
	"github.com/angelmondragon/missions-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/missions-backend/pkg/errors"
	"github.com/angelmondragon/missions-backend/pkg/logger"
	"github.com/angelmondragon/missions-backend/pkg/pagination"
)

const maxCursorLen = 256

type creditBalanceResponse struct {
	Balance int64 `json:"balance"`
}

type creditExchangeResponse struct {
	Balance    int64      `json:"balance"`
	Spent      int64      `json:"spent"`
	PurchaseID *uuid.UUID `json:"purchase_id,omitempty"`
	Units      int        `json:"units"`
}

type adminCreditGrantRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Amount int64  `json:"amount" validate:"required,min=1"`
	Reason string `json:"reason,omitempty" validate:"omitempty,grant_reason"`
}

func CreditsBalance(svc credits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credits service unavailable"))
			return
		}

		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.Balance(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, creditBalanceResponse{Balance: balance})
	}
}

// CreditsHistory pages through the caller's ledger entries.
func CreditsHistory(svc credits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credits service unavailable"))
			return
		}

		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cursor, err := validators.QueryString(r, "cursor", maxCursorLen)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.History(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: cursor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// CreditsExchange converts the configured credit rate into one purchased unit.
func CreditsExchange(svc credits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credits service unavailable"))
			return
		}

		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ExchangeForUsage(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := creditExchangeResponse{Balance: result.Balance, Spent: result.Spent}
		if result.Purchase != nil {
			resp.PurchaseID = &result.Purchase.ID
			resp.Units = result.Purchase.Amount
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

// AdminCreditsGrant appends an operator credit grant. Reason defaults to
// engagement.
func AdminCreditsGrant(svc credits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credits service unavailable"))
			return
		}

		var payload adminCreditGrantRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		userID, err := uuid.Parse(payload.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user_id"))
			return
		}

		reason := enums.CreditEntryReasonEngagement
		if payload.Reason != "" {
			reason = enums.CreditEntryReason(payload.Reason)
		}

		balance, err := svc.Grant(r.Context(), userID, payload.Amount, reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, creditBalanceResponse{Balance: balance})
	}
}
