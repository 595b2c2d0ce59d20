package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// InsertKnowledgeUpdates appends updates in a single transaction.
func (s *Store) InsertKnowledgeUpdates(ctx context.Context, updates []KnowledgeUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, u := range updates {
			tags, err := marshalStrings(u.Tags)
			if err != nil {
				return fmt.Errorf("marshalling tags: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO knowledge_updates (id, summary, tags_json, scope, created_at, created_by)
				VALUES (?, ?, ?, ?, ?, ?)`,
				u.ID, u.Summary, tags, u.Scope, formatTime(u.CreatedAt), u.CreatedBy,
			); err != nil {
				return fmt.Errorf("inserting knowledge update %s: %w", u.ID, err)
			}
		}
		return nil
	})
}

// RecentKnowledge returns the newest updates for a scope, newest first.
// An empty scope returns updates of every scope.
func (s *Store) RecentKnowledge(ctx context.Context, scope string, limit int) ([]KnowledgeUpdate, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, summary, tags_json, scope, created_at, created_by FROM knowledge_updates`
	args := []any{}
	if scope != "" {
		query += ` WHERE scope = ?`
		args = append(args, scope)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []KnowledgeUpdate
	for rows.Next() {
		var u KnowledgeUpdate
		var tags, createdAt string
		if err := rows.Scan(&u.ID, &u.Summary, &tags, &u.Scope, &createdAt, &u.CreatedBy); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tags), &u.Tags); err != nil {
			return nil, fmt.Errorf("parsing tags for knowledge update %s: %w", u.ID, err)
		}
		if u.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for knowledge update %s: %w", u.ID, err)
		}
		results = append(results, u)
	}
	return results, rows.Err()
}
