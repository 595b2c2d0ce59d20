// Package stream fans newly persisted conversation messages out to live
// subscribers of the same thread.
package stream

import (
	"context"
	"sync"

	"github.com/ASI-Josh/asiportal/internal/idgen"
	"github.com/ASI-Josh/asiportal/internal/storage"
)

const bufferSize = 64

type subscriber struct {
	threadID string
	ch       chan storage.Message
}

// Hub is an in-process pub/sub keyed by thread id. Nothing is persisted;
// subscribers only see messages published after they subscribe.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
}

func NewHub() *Hub {
	return &Hub{subs: map[string]*subscriber{}}
}

// Subscribe returns a channel of messages for threadID. The channel is
// closed once ctx is done.
func (h *Hub) Subscribe(ctx context.Context, threadID string) <-chan storage.Message {
	ch := make(chan storage.Message, bufferSize)
	id := idgen.Message()

	h.mu.Lock()
	h.subs[id] = &subscriber{threadID: threadID, ch: ch}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Publish delivers msg to every subscriber of its thread.
func (h *Hub) Publish(msg storage.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.threadID != msg.ThreadID {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			// Drop if subscriber is slow.
		}
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
