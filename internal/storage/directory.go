package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// --- Recipients ---

func (s *Store) UpsertRecipient(ctx context.Context, r Recipient) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recipients (id, display_name, email, role, reviewer, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			email = excluded.email,
			role = excluded.role,
			reviewer = excluded.reviewer,
			active = excluded.active`,
		r.ID, r.DisplayName, r.Email, r.Role, r.Reviewer, r.Active, formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting recipient %s: %w", r.ID, err)
	}
	return nil
}

// ListRecipients returns active recipients ordered by display name.
// When reviewersOnly is set, only recipients flagged as reviewers are returned.
func (s *Store) ListRecipients(ctx context.Context, reviewersOnly bool) ([]Recipient, error) {
	query := `SELECT id, display_name, email, role, reviewer, active, created_at
		FROM recipients WHERE active = 1`
	if reviewersOnly {
		query += ` AND reviewer = 1`
	}
	query += ` ORDER BY display_name COLLATE NOCASE, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Recipient
	for rows.Next() {
		var r Recipient
		var createdAt string
		if err := rows.Scan(&r.ID, &r.DisplayName, &r.Email, &r.Role, &r.Reviewer, &r.Active, &createdAt); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for recipient %s: %w", r.ID, err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Notifications ---

// InsertNotifications writes the batch in one transaction. Rows whose id
// already exists are skipped, so replaying a batch is harmless. It returns
// the number of rows actually written.
func (s *Store) InsertNotifications(ctx context.Context, batch []Notification) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	written := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, n := range batch {
			res, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO notifications (id, recipient_id, actor_id, kind, title, body, link, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				n.ID, n.RecipientID, n.ActorID, n.Kind, n.Title, n.Body, n.Link, formatTime(n.CreatedAt),
			)
			if err != nil {
				return fmt.Errorf("inserting notification %s: %w", n.ID, err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			written += int(affected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// ListNotifications returns a recipient's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, recipientID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient_id, actor_id, kind, title, body, link, created_at, read_at
		FROM notifications WHERE recipient_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, recipientID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Notification
	for rows.Next() {
		var n Notification
		var createdAt string
		var readAt sql.NullString
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.ActorID, &n.Kind, &n.Title, &n.Body, &n.Link, &createdAt, &readAt); err != nil {
			return nil, err
		}
		if n.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for notification %s: %w", n.ID, err)
		}
		if n.ReadAt, err = parseNullTime(readAt); err != nil {
			return nil, fmt.Errorf("parsing read_at for notification %s: %w", n.ID, err)
		}
		results = append(results, n)
	}
	return results, rows.Err()
}

// --- Records ---

func (s *Store) InsertRecord(ctx context.Context, r Record) error {
	payload := string(r.Payload)
	if payload == "" {
		payload = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (id, kind, title, description, status, severity, created_by_id,
			source_action_id, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, r.Title, r.Description, r.Status, r.Severity, r.CreatedByID,
		r.SourceActionID, payload, formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting record %s: %w", r.ID, err)
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, id string) (Record, error) {
	var r Record
	var payload, createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, title, description, status, severity, created_by_id, source_action_id,
			payload_json, created_at
		FROM records WHERE id = ?`, id,
	).Scan(&r.ID, &r.Kind, &r.Title, &r.Description, &r.Status, &r.Severity, &r.CreatedByID,
		&r.SourceActionID, &payload, &createdAt)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	r.Payload = []byte(payload)
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return Record{}, fmt.Errorf("parsing created_at for record %s: %w", r.ID, err)
	}
	return r, nil
}
