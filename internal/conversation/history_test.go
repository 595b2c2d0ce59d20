package conversation

import (
	"testing"

	"github.com/ASI-Josh/asiportal/internal/storage"
)

func msg(id, content string) storage.Message {
	return storage.Message{ID: id, Role: "user", Content: content}
}

func TestHistory_AppendDoesNotMutate(t *testing.T) {
	base := NewHistory([]storage.Message{msg("1", "a")})
	h1 := base.Append(msg("2", "b"))
	h2 := base.Append(msg("3", "c"))

	if base.Len() != 1 {
		t.Errorf("base.Len() = %d, want 1", base.Len())
	}
	if got, _ := h1.Split("", 5); len(got) != 2 || got[1].ID != "2" {
		t.Errorf("h1 = %+v", got)
	}
	if got, _ := h2.Split("", 5); len(got) != 2 || got[1].ID != "3" {
		t.Errorf("h2 = %+v", got)
	}
}

func TestHistory_CopiesInput(t *testing.T) {
	in := []storage.Message{msg("1", "a")}
	h := NewHistory(in)
	in[0].Content = "changed"
	if got, _ := h.Split("", 1); got[0].Content != "a" {
		t.Error("history shares its input slice")
	}
}

func TestHistory_Split(t *testing.T) {
	h := NewHistory([]storage.Message{msg("1", "a"), msg("2", "b"), msg("3", "c"), msg("4", "d")})
	h = h.Append(msg("5", "e")).Append(msg("6", "f"))

	earlier, round := h.Split("4", 2)
	if len(earlier) != 2 || earlier[0].ID != "2" || earlier[1].ID != "3" {
		t.Errorf("earlier = %+v", earlier)
	}
	if len(round) != 2 || round[0].ID != "5" || round[1].ID != "6" {
		t.Errorf("round = %+v", round)
	}

	earlier, round = h.Split("4", 0)
	if len(earlier) != 0 || len(round) != 2 {
		t.Errorf("Split(4, 0) = %+v, %+v", earlier, round)
	}

	earlier, round = h.Split("missing", 3)
	if len(earlier) != 3 || earlier[2].ID != "6" || len(round) != 0 {
		t.Errorf("Split(missing) = %+v, %+v", earlier, round)
	}
}
