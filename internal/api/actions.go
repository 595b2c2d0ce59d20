package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ASI-Josh/asiportal/internal/actions"
	"github.com/ASI-Josh/asiportal/internal/storage"
)

const opCreate = "create"

type actionsRequest struct {
	Operation     string          `json:"operation"`
	ActionIDs     []string        `json:"actionIds"`
	ActionType    string          `json:"actionType"`
	Summary       string          `json:"summary"`
	ActionPayload json.RawMessage `json:"actionPayload"`
	ThreadID      string          `json:"threadId"`
}

func handleActions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req actionsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		p := caller(r)
		switch req.Operation {
		case opCreate:
			a, err := deps.Actions.Propose(r.Context(), actions.Proposal{
				ActionType:  req.ActionType,
				Summary:     req.Summary,
				Payload:     req.ActionPayload,
				RequestedBy: storage.Requester{UserID: p.ID, Name: p.Name},
				ThreadID:    req.ThreadID,
			})
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]string{"id": a.ID, "status": a.Status})

		case string(actions.OpApprove), string(actions.OpReject):
			results, err := deps.Actions.Decide(r.Context(), req.ActionIDs, actions.Operation(req.Operation), p.ID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, results)

		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error",
				"operation must be create, approve or reject, got %q", req.Operation)
		}
	}
}

func handleListActions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryLimit(w, r)
		if !ok {
			return
		}
		list, err := deps.Actions.List(r.Context(), storage.ActionFilter{
			Status: r.URL.Query().Get("status"),
			Limit:  limit,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		if list == nil {
			list = []storage.Action{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"actions": list})
	}
}

func handleGetAction(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		a, err := deps.Actions.Get(r.Context(), id)
		if err != nil {
			writeError(w, fmt.Errorf("action %s: %w", id, err))
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

func handleListNotifications(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryLimit(w, r)
		if !ok {
			return
		}
		if limit == 0 {
			limit = defaultNotificationLimit
		}
		limit = min(limit, maxNotificationLimit)

		list, err := deps.Notifications.ListNotifications(r.Context(), caller(r).ID, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		if list == nil {
			list = []storage.Notification{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
	}
}
