package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/missions-backend/api/responses"
	"github.com/angelmondragon/missions-backend/api/validators"
	"github.com/angelmondragon/missions-backend/internal/missions"
	pkgerrors "github.com/angelmondragon/missions-backend/pkg/errors"
	"github.com/angelmondragon/missions-backend/pkg/logger"
)

type swipeRequest struct {
	MissionID string `json:"mission_id" validate:"required,uuid"`
	Direction string `json:"direction" validate:"required,oneof=left right"`
}

func feedUnavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "feed service unavailable"))
}

// MissionsFeed lists today's swipeable missions for the caller.
func MissionsFeed(svc missions.FeedService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			feedUnavailable(w, r, logg)
			return
		}
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.Feed(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func MissionsSwipe(svc missions.FeedService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			feedUnavailable(w, r, logg)
			return
		}
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload swipeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		missionID, err := uuid.Parse(payload.MissionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid mission id"))
			return
		}
		result, err := svc.Swipe(r.Context(), userID, missions.SwipeInput{MissionID: missionID, Direction: payload.Direction})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func MissionsLike(svc missions.FeedService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			feedUnavailable(w, r, logg)
			return
		}
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		missionID, err := uuid.Parse(chi.URLParam(r, "missionID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid mission id"))
			return
		}
		result, err := svc.Like(r.Context(), userID, missionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// MissionsRanking is public; skip and take page through liked missions.
func MissionsRanking(svc missions.FeedService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			feedUnavailable(w, r, logg)
			return
		}
		skip, err := validators.ParseQueryInt(r, "skip", 0, 0, 10000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		take, err := validators.ParseQueryInt(r, "take", 10, 1, 50)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := svc.Ranking(r.Context(), skip, take)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"missions": items})
	}
}
