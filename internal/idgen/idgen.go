package idgen

import (
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// stepNamespace scopes deterministic ids derived by Derive.
var stepNamespace = uuid.MustParse("6f1c2d0e-5b7a-4c55-9a4e-2f0b8e1d3c71")

// New returns a UUIDv7 identifier string.
// If UUIDv7 generation fails, it falls back to a random UUIDv4.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Message returns a ULID. Within one process ULIDs from the same millisecond
// are monotonic, so lexical order matches creation order.
func Message() string {
	return ulid.Make().String()
}

// Derive returns a UUIDv5 computed from parts. The same parts always yield
// the same id, which makes replayed writes collide instead of duplicating.
func Derive(parts ...string) string {
	return uuid.NewSHA1(stepNamespace, []byte(strings.Join(parts, "\x1f"))).String()
}
