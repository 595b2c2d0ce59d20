package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"

	"github.com/ASI-Josh/asiportal/internal/storage"
)

// RecipientStore manages the people mentions and reviews are addressed to.
type RecipientStore interface {
	UpsertRecipient(ctx context.Context, r storage.Recipient) error
	ListRecipients(ctx context.Context, reviewersOnly bool) ([]storage.Recipient, error)
}

type recipientRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Reviewer    bool   `json:"reviewer"`
	Active      *bool  `json:"active"`
}

func handlePutRecipient(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req recipientRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		req.ID = strings.TrimSpace(req.ID)
		if req.ID == "" || strings.ContainsAny(req.ID, " \t@") {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "id is required and must not contain spaces or @")
			return
		}
		if req.DisplayName == "" {
			req.DisplayName = req.ID
		}
		if req.Email != "" {
			if _, err := mail.ParseAddress(req.Email); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid email: %v", err)
				return
			}
		}
		active := req.Active == nil || *req.Active

		rec := storage.Recipient{
			ID:          req.ID,
			DisplayName: req.DisplayName,
			Email:       req.Email,
			Role:        req.Role,
			Reviewer:    req.Reviewer,
			Active:      active,
		}
		if err := deps.Recipients.UpsertRecipient(r.Context(), rec); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleListRecipients(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reviewersOnly := r.URL.Query().Get("reviewers") == "true"
		list, err := deps.Recipients.ListRecipients(r.Context(), reviewersOnly)
		if err != nil {
			writeError(w, err)
			return
		}
		if list == nil {
			list = []storage.Recipient{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"recipients": list})
	}
}
