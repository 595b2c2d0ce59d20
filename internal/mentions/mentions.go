// Package mentions extracts @mentions from free text and notifies the
// recipients they name.
package mentions

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ASI-Josh/asiportal/internal/idgen"
	"github.com/ASI-Josh/asiportal/internal/storage"
)

var mentionPattern = regexp.MustCompile(`(?:^|[^A-Za-z0-9._%+\-])@([A-Za-z0-9._+\-@]+)`)

// broadcast keywords match every eligible recipient.
var broadcast = map[string]bool{
	"all":      true,
	"admins":   true,
	"everyone": true,
	"team":     true,
}

const maxBodyLen = 280

// Directory is the recipient read model and notification sink.
type Directory interface {
	ListRecipients(ctx context.Context, reviewersOnly bool) ([]storage.Recipient, error)
	InsertNotifications(ctx context.Context, batch []storage.Notification) (int, error)
}

// Mention describes text that may mention recipients.
type Mention struct {
	Text    string
	ActorID string
	Title   string
	Link    string
}

type Dispatcher struct {
	dir Directory
	now func() time.Time
}

func NewDispatcher(dir Directory) *Dispatcher {
	return &Dispatcher{dir: dir, now: time.Now}
}

// Extract returns the unique lower-cased mention tokens in text, in order of
// first appearance. Trailing punctuation is not part of a token.
func Extract(text string) []string {
	var tokens []string
	seen := make(map[string]bool)
	for _, m := range mentionPattern.FindAllStringSubmatch(text, -1) {
		tok := strings.ToLower(strings.TrimRight(m[1], ".-_+@"))
		if tok == "" || seen[tok] {
			continue
		}
		seen[tok] = true
		tokens = append(tokens, tok)
	}
	return tokens
}

// Match returns the recipients named by tokens, in directory order. The actor
// is never included.
func Match(tokens []string, recipients []storage.Recipient, actorID string) []storage.Recipient {
	if len(tokens) == 0 {
		return nil
	}
	all := false
	wanted := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		if broadcast[t] {
			all = true
		}
		wanted[t] = true
	}

	var matched []storage.Recipient
	for _, r := range recipients {
		if !r.Active || r.ID == actorID {
			continue
		}
		if all || matches(r, wanted) {
			matched = append(matched, r)
		}
	}
	return matched
}

func matches(r storage.Recipient, wanted map[string]bool) bool {
	name := strings.ToLower(strings.TrimSpace(r.DisplayName))
	email := strings.ToLower(strings.TrimSpace(r.Email))
	local, _, _ := strings.Cut(email, "@")

	candidates := []string{name, strings.ReplaceAll(name, " ", ""), email, local}
	for _, c := range candidates {
		if c != "" && wanted[c] {
			return true
		}
	}
	return false
}

// Dispatch notifies every recipient mentioned in m.Text except the actor,
// writing all notifications in one batch. It returns the notified ids.
func (d *Dispatcher) Dispatch(ctx context.Context, m Mention) ([]string, error) {
	tokens := Extract(m.Text)
	if len(tokens) == 0 {
		return nil, nil
	}

	recipients, err := d.dir.ListRecipients(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("listing recipients: %w", err)
	}
	matched := Match(tokens, recipients, m.ActorID)
	if len(matched) == 0 {
		return nil, nil
	}

	title := m.Title
	if title == "" {
		title = "You were mentioned"
	}
	body := truncate(m.Text, maxBodyLen)

	now := d.now().UTC()
	batch := make([]storage.Notification, len(matched))
	ids := make([]string, len(matched))
	for i, r := range matched {
		batch[i] = storage.Notification{
			ID:          idgen.New(),
			RecipientID: r.ID,
			ActorID:     m.ActorID,
			Kind:        "mention",
			Title:       title,
			Body:        body,
			Link:        m.Link,
			CreatedAt:   now,
		}
		ids[i] = r.ID
	}

	if _, err := d.dir.InsertNotifications(ctx, batch); err != nil {
		return nil, fmt.Errorf("writing notifications: %w", err)
	}
	return ids, nil
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
