package controllers

import (
	"net/http"

	"github.com/angelmondragon/missions-backend/api/responses"
	"github.com/angelmondragon/missions-backend/internal/progression"
	pkgerrors "github.com/angelmondragon/missions-backend/pkg/errors"
	"github.com/angelmondragon/missions-backend/pkg/logger"
)

func Progress(svc progression.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "progression service unavailable"))
			return
		}

		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snapshot, err := svc.Snapshot(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snapshot)
	}
}
