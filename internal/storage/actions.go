package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const actionColumns = `id, action_type, summary, payload_json, status,
	requested_by_agent_id, requested_by_user_id, requested_by_name, thread_id,
	created_at, decided_by, decided_at, execution_output, execution_error`

func (s *Store) InsertAction(ctx context.Context, a Action) error {
	payload := string(a.Payload)
	if payload == "" {
		payload = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actions (id, action_type, summary, payload_json, status,
			requested_by_agent_id, requested_by_user_id, requested_by_name, thread_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ActionType, a.Summary, payload, a.Status,
		a.RequestedBy.AgentID, a.RequestedBy.UserID, a.RequestedBy.Name, a.ThreadID,
		formatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting action %s: %w", a.ID, err)
	}
	return nil
}

func (s *Store) GetAction(ctx context.Context, id string) (Action, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id = ?`, id)
	a, err := scanAction(row)
	if err == sql.ErrNoRows {
		return Action{}, ErrNotFound
	}
	return a, err
}

// ListActions returns actions newest first.
func (s *Store) ListActions(ctx context.Context, f ActionFilter) ([]Action, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + actionColumns + ` FROM actions`
	args := []any{}
	if f.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// TransitionAction moves an action from one status to another only if it is
// still in the expected status. It returns ErrNotFound for unknown ids and an
// error wrapping ErrConflict when another caller got there first.
func (s *Store) TransitionAction(ctx context.Context, id, from, to string, upd ActionUpdate) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT status FROM actions WHERE id = ?`, id).Scan(&current)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading action status: %w", err)
		}
		if current != from {
			return fmt.Errorf("%w: action %s is %s", ErrConflict, id, current)
		}

		sets := []string{"status = ?"}
		args := []any{to}
		if upd.DecidedBy != "" {
			sets = append(sets, "decided_by = ?")
			args = append(args, upd.DecidedBy)
		}
		if !upd.DecidedAt.IsZero() {
			sets = append(sets, "decided_at = ?")
			args = append(args, formatTime(upd.DecidedAt))
		}
		if upd.Execution != nil {
			var output any
			if len(upd.Execution.Output) > 0 {
				output = string(upd.Execution.Output)
			}
			var execErr any
			if upd.Execution.Error != "" {
				execErr = upd.Execution.Error
			}
			sets = append(sets, "execution_output = ?", "execution_error = ?")
			args = append(args, output, execErr)
		}
		args = append(args, id, from)

		res, err := tx.ExecContext(ctx,
			`UPDATE actions SET `+strings.Join(sets, ", ")+` WHERE id = ? AND status = ?`, args...)
		if err != nil {
			return fmt.Errorf("updating action status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking updated action rows: %w", err)
		}
		if n != 1 {
			return fmt.Errorf("%w: action %s changed concurrently", ErrConflict, id)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (Action, error) {
	var a Action
	var payload, createdAt string
	var decidedAt, output, execErr sql.NullString
	err := row.Scan(
		&a.ID, &a.ActionType, &a.Summary, &payload, &a.Status,
		&a.RequestedBy.AgentID, &a.RequestedBy.UserID, &a.RequestedBy.Name, &a.ThreadID,
		&createdAt, &a.DecidedBy, &decidedAt, &output, &execErr,
	)
	if err != nil {
		return Action{}, err
	}
	a.Payload = []byte(payload)
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return Action{}, fmt.Errorf("parsing created_at for action %s: %w", a.ID, err)
	}
	if a.DecidedAt, err = parseNullTime(decidedAt); err != nil {
		return Action{}, fmt.Errorf("parsing decided_at for action %s: %w", a.ID, err)
	}
	if output.Valid || execErr.Valid {
		a.Execution = &Execution{Error: execErr.String}
		if output.Valid {
			a.Execution.Output = []byte(output.String)
		}
	}
	return a, nil
}
