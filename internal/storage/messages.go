package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

func (s *Store) InsertMessage(ctx context.Context, m Message) error {
	warnings, err := marshalStrings(m.Warnings)
	if err != nil {
		return fmt.Errorf("marshalling warnings: %w", err)
	}
	actionIDs, err := marshalStrings(m.ActionRequestIDs)
	if err != nil {
		return fmt.Errorf("marshalling action request ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, thread_id, role, agent_id, agent_name, author_id, content,
			warnings_json, action_request_ids_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ThreadID, m.Role, m.AgentID, m.AgentName, m.AuthorID, m.Content,
		warnings, actionIDs, formatTime(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting message %s: %w", m.ID, err)
	}
	return nil
}

// RecentMessages returns up to limit of the newest messages in a thread,
// ordered oldest first.
func (s *Store) RecentMessages(ctx context.Context, threadID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, role, agent_id, agent_name, author_id, content,
			warnings_json, action_request_ids_json, created_at
		FROM messages WHERE thread_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, threadID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Message
	for rows.Next() {
		var m Message
		var warnings, actionIDs, createdAt string
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.AgentID, &m.AgentName, &m.AuthorID,
			&m.Content, &warnings, &actionIDs, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(warnings), &m.Warnings); err != nil {
			return nil, fmt.Errorf("parsing warnings for message %s: %w", m.ID, err)
		}
		if err := json.Unmarshal([]byte(actionIDs), &m.ActionRequestIDs); err != nil {
			return nil, fmt.Errorf("parsing action request ids for message %s: %w", m.ID, err)
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for message %s: %w", m.ID, err)
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}

func marshalStrings(v []string) (string, error) {
	if v == nil {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
