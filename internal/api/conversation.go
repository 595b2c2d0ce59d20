package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/ASI-Josh/asiportal/internal/conversation"
	"github.com/ASI-Josh/asiportal/internal/storage"
)

type postMessageRequest struct {
	Message      string   `json:"message"`
	Agents       []string `json:"agents"`
	DocIDs       []string `json:"docIds"`
	MeetingNotes string   `json:"meetingNotes"`
	Intent       string   `json:"intent"`
}

func handlePostMessage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req postMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		p := caller(r)
		res, err := deps.Conversation.RunRound(r.Context(), conversation.Round{
			ThreadID:     chi.URLParam(r, "threadId"),
			Message:      req.Message,
			Agents:       req.Agents,
			DocIDs:       req.DocIDs,
			MeetingNotes: req.MeetingNotes,
			Intent:       req.Intent,
			Actor:        conversation.Actor{ID: p.ID, Name: p.Name},
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleListMessages(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryLimit(w, r)
		if !ok {
			return
		}
		msgs, err := deps.Conversation.ListMessages(r.Context(), chi.URLParam(r, "threadId"), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
	}
}

func handleListAgents(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"agents": deps.Conversation.Agents()})
	}
}

type wsWriter interface {
	Write(ctx context.Context, msgType websocket.MessageType, data []byte) error
}

func handleStream(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Hub == nil {
			httpError(w, http.StatusNotFound, "not_found", "streaming is not enabled")
			return
		}
		threadID := chi.URLParam(r, "threadId")

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: deps.StreamOrigins,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusInternalError, "closed")

		// Reads are never expected; CloseRead cancels ctx when the client goes away.
		ctx := conn.CloseRead(r.Context())
		if err := streamMessages(ctx, deps.Hub.Subscribe(ctx, threadID), conn); err != nil && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
			return
		}
		_ = conn.Close(websocket.StatusNormalClosure, "done")
	}
}

func streamMessages(ctx context.Context, sub <-chan storage.Message, writer wsWriter) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			if err := writer.Write(ctx, websocket.MessageText, payload); err != nil {
				return err
			}
		}
	}
}

// queryLimit parses ?limit=. A missing limit is zero, letting the callee
// choose its default.
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}
