package controllers

import (
	"net/http"

	"github.com/angelmondragon/missions-backend/api/responses"
	"github.com/angelmondragon/missions-backend/api/validators"
	"github.com/angelmondragon/missions-backend/internal/missions"
	pkgerrors "github.com/angelmondragon/missions-backend/pkg/errors"
	"github.com/angelmondragon/missions-backend/pkg/logger"
)

const maxCategoryLen = 32

type generateMissionRequest struct {
	Category string `json:"category" validate:"required,max=32,mission_category"`
	Extended bool   `json:"extended"`
}

// MissionsGenerate admits, generates and records one mission for the caller.
func MissionsGenerate(svc missions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "missions service unavailable"))
			return
		}

		principal, err := principalFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload generateMissionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Generate(r.Context(), principal, missions.GenerateInput{
			Category: validators.NormalizeToken(payload.Category, maxCategoryLen),
			Extended: payload.Extended,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// MissionsRecent lists the caller's latest missions.
func MissionsRecent(svc missions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "missions service unavailable"))
			return
		}

		principal, err := principalFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := svc.Recent(r.Context(), principal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"missions": items})
	}
}
