package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the role every portal route requires.
const RoleAdmin = "admin"

// Principal is the authenticated caller.
type Principal struct {
	ID    string
	Name  string
	Roles []string
	// Source is "token" for the static admin token, "jwt" otherwise.
	Source string
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return slices.Contains(p.Roles, RoleAdmin)
}

// AuthConfig holds the credentials AdminAuth accepts.
type AuthConfig struct {
	// AdminToken is a static bearer token granted the admin role.
	AdminToken string
	// AdminID identifies static-token callers. Defaults to "admin".
	AdminID string
	// JWTSecret verifies HS256 tokens. Empty disables JWT auth.
	JWTSecret string
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller stored by AdminAuth.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

func authenticateJWT(token, secret string) (Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return Principal{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("subject claim required")
	}
	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return Principal{ID: claims.Subject, Name: name, Roles: claims.Roles, Source: "jwt"}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func (c AuthConfig) authenticate(r *http.Request) (Principal, bool) {
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok && strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		// Browsers cannot set headers on a WebSocket handshake.
		token = r.URL.Query().Get("access_token")
		ok = token != ""
	}
	if !ok {
		return Principal{}, false
	}
	if c.AdminToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(c.AdminToken)) == 1 {
		id := c.AdminID
		if id == "" {
			id = "admin"
		}
		return Principal{ID: id, Name: "Administrator", Roles: []string{RoleAdmin}, Source: "token"}, true
	}
	if c.JWTSecret == "" {
		return Principal{}, false
	}
	p, err := authenticateJWT(token, c.JWTSecret)
	if err != nil {
		return Principal{}, false
	}
	return p, true
}

// AdminAuth rejects requests without an admin identity and stores the caller
// in the request context.
func AdminAuth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := cfg.authenticate(r)
			if !ok {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			if !p.IsAdmin() {
				httpError(w, http.StatusForbidden, "authorization_error", "admin role required")
				return
			}
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
		})
	}
}
