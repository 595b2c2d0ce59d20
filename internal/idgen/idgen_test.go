package idgen

import (
	"sort"
	"testing"

	"github.com/google/uuid"
)

func TestNewIsV7(t *testing.T) {
	id, err := uuid.Parse(New())
	if err != nil {
		t.Fatalf("New() is not a UUID: %v", err)
	}
	if id.Version() != 7 {
		t.Errorf("version = %d, want 7", id.Version())
	}
}

func TestMessageIDsSortInCreationOrder(t *testing.T) {
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = Message()
	}
	if !sort.StringsAreSorted(ids) {
		t.Error("message ids are not lexically ordered")
	}
}

func TestDeriveDeterministic(t *testing.T) {
	a := Derive("action-1", "notify", "user-1")
	b := Derive("action-1", "notify", "user-1")
	c := Derive("action-1", "notify", "user-2")
	if a != b {
		t.Errorf("Derive not deterministic: %s != %s", a, b)
	}
	if a == c {
		t.Error("different inputs produced the same id")
	}
	// Joining must not make ("ab","c") collide with ("a","bc").
	if Derive("ab", "c") == Derive("a", "bc") {
		t.Error("part boundaries are ambiguous")
	}
}
