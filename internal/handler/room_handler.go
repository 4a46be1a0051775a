/*
Package handler provides HTTP handler functions for room history and presence queries.
*/
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/logx"
	"chatrelay/internal/pkg/resp"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// HandleRoomHistory returns the most recent persisted messages of a room,
// newest first. A message whose persistence failed after broadcast will be
// absent here even though connected members saw it.
func HandleRoomHistory(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := chi.URLParam(r, "room")
		if room == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		limit := defaultHistoryLimit
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			parsed, err := strconv.Atoi(limitStr)
			if err != nil || parsed < 1 {
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
				return
			}
			limit = min(parsed, maxHistoryLimit)
		}

		messages, err := deps.Store.RecentMessages(r.Context(), room, limit)
		if err != nil {
			logx.Error(err, "Failed to read room history", "room", room)
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreUnavailable))
			return
		}

		data := map[string]any{
			"roomId":   room,
			"messages": messages,
		}
		resp.RespondSuccess(w, r, data)
	}
}

// HandlePresence returns the debounced presence of a user as seen by the
// relay's in-memory state, which is authoritative over the durable row.
func HandlePresence(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		if userID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		presence := deps.Hub.Presence()

		data := map[string]any{
			"userId":   userID,
			"isOnline": presence.IsOnline(userID),
		}
		if lastSeen, ok := presence.LastSeen(userID); ok {
			data["lastSeen"] = lastSeen.Format(time.RFC3339)
		}
		resp.RespondSuccess(w, r, data)
	}
}
