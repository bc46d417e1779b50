package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/missions-backend/api/middleware"
	"github.com/angelmondragon/missions-backend/internal/entitlements"
	pkgerrors "github.com/angelmondragon/missions-backend/pkg/errors"
)

// principalFromRequest resolves who the call is attributed to. A verified user
// wins over an anonymous session id.
func principalFromRequest(r *http.Request) (entitlements.Principal, error) {
	ctx := r.Context()
	if raw := middleware.UserIDFromContext(ctx); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			return entitlements.Principal{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
		}
		return entitlements.UserPrincipal(userID), nil
	}
	if session := middleware.SessionIDFromContext(ctx); session != "" {
		return entitlements.SessionPrincipal(session), nil
	}
	return entitlements.Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "bearer token or session_id required")
}

func userIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return userID, nil
}
