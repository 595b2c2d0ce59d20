package conversation

import "github.com/ASI-Josh/asiportal/internal/storage"

// History is the thread as the agents of one round see it. Append returns a
// new History and never changes the receiver, so each agent step works on the
// value it was handed.
type History struct {
	msgs []storage.Message
}

func NewHistory(msgs []storage.Message) History {
	cp := make([]storage.Message, len(msgs))
	copy(cp, msgs)
	return History{msgs: cp}
}

// Append returns h with m added at the end.
func (h History) Append(m storage.Message) History {
	next := make([]storage.Message, len(h.msgs), len(h.msgs)+1)
	copy(next, h.msgs)
	return History{msgs: append(next, m)}
}

func (h History) Len() int {
	return len(h.msgs)
}

// Split divides h around the message with id pivot. earlier holds up to n of
// the newest messages before pivot, oldest first; round holds every message
// after it. When pivot is absent everything counts as earlier.
func (h History) Split(pivot string, n int) (earlier, round []storage.Message) {
	at := len(h.msgs)
	for i, m := range h.msgs {
		if m.ID == pivot {
			at = i
			break
		}
	}
	before := h.msgs[:at]
	if len(before) > n {
		before = before[len(before)-n:]
	}
	earlier = append(earlier, before...)
	if at < len(h.msgs) {
		round = append(round, h.msgs[at+1:]...)
	}
	return earlier, round
}
