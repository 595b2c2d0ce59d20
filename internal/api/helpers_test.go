package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ASI-Josh/asiportal/internal/actions"
	"github.com/ASI-Josh/asiportal/internal/conversation"
	"github.com/ASI-Josh/asiportal/internal/storage"
)

const (
	testToken     = "test-token-12345"
	testJWTSecret = "jwt-secret-for-tests"
)

type fakeConversation struct {
	mu     sync.Mutex
	rounds []conversation.Round
	result conversation.RoundResult
	err    error
	msgs   []storage.Message
}

func (f *fakeConversation) RunRound(_ context.Context, r conversation.Round) (conversation.RoundResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rounds = append(f.rounds, r)
	return f.result, f.err
}

func (f *fakeConversation) ListMessages(_ context.Context, threadID string, limit int) ([]storage.Message, error) {
	if threadID == "" {
		return nil, &conversation.ValidationError{Field: "threadId", Message: "is required"}
	}
	if f.msgs == nil {
		return []storage.Message{}, nil
	}
	return f.msgs, nil
}

func (f *fakeConversation) Agents() []conversation.Agent {
	return []conversation.Agent{{ID: "ops", Name: "Ops"}}
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

type testEnv struct {
	handler http.Handler
	store   *storage.Store
	conv    *fakeConversation
	queue   *actions.Queue
}

func setupAppHandler(t *testing.T) testEnv {
	t.Helper()
	store := openTestStore(t)
	queue := actions.NewQueue(store, actions.NewRegistry(actions.Deps{Store: store}))
	conv := &fakeConversation{}

	handler := NewAppHandler(AppDeps{
		Conversation:  conv,
		Actions:       queue,
		Notifications: store,
		Recipients:    store,
		Auth:          AuthConfig{AdminToken: testToken, JWTSecret: testJWTSecret},
	})
	return testEnv{handler: handler, store: store, conv: conv, queue: queue}
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func signJWT(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Name:  "Test " + subject,
		Roles: roles,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("signing jwt: %v", err)
	}
	return s
}
