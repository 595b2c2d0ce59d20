package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ASI-Josh/asiportal/internal/actions"
	"github.com/ASI-Josh/asiportal/internal/conversation"
	"github.com/ASI-Josh/asiportal/internal/storage"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// writeError maps domain errors onto the error envelope.
func writeError(w http.ResponseWriter, err error) {
	var (
		actionInvalid *actions.ValidationError
		convInvalid   *conversation.ValidationError
		unsupported   *actions.UnsupportedTypeError
	)
	switch {
	case errors.As(err, &actionInvalid), errors.As(err, &convInvalid):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.As(err, &unsupported):
		httpError(w, http.StatusBadRequest, "unsupported_action_type", "%v", err)
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	default:
		slog.Error("request failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response", "error", err)
	}
}
