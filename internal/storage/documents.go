package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AllocateDocumentNumber reserves the next number for prefix in one
// transaction. A missing counter starts at 1. Reserved numbers are never
// handed out again, even if the caller fails to use them.
func (s *Store) AllocateDocumentNumber(ctx context.Context, prefix string) (int, error) {
	var n int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT next_number FROM document_counters WHERE prefix = ?`, prefix).Scan(&n)
		if err == sql.ErrNoRows {
			n = 1
		} else if err != nil {
			return fmt.Errorf("reading counter %s: %w", prefix, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO document_counters (prefix, next_number) VALUES (?, ?)
			ON CONFLICT(prefix) DO UPDATE SET next_number = excluded.next_number`,
			prefix, n+1,
		); err != nil {
			return fmt.Errorf("writing counter %s: %w", prefix, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// PeekDocumentNumber returns the number the next allocation for prefix would get.
func (s *Store) PeekDocumentNumber(ctx context.Context, prefix string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT next_number FROM document_counters WHERE prefix = ?`, prefix).Scan(&n)
	if err == sql.ErrNoRows {
		return 1, nil
	}
	return n, err
}

func (s *Store) InsertDocument(ctx context.Context, d Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, prefix, title, doc_type, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.Prefix, d.Title, d.DocType, formatTime(d.CreatedAt), d.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("inserting document %s: %w", d.ID, err)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (Document, error) {
	var d Document
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, prefix, title, doc_type, created_at, created_by FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.Prefix, &d.Title, &d.DocType, &createdAt, &d.CreatedBy)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return Document{}, fmt.Errorf("parsing created_at for document %s: %w", d.ID, err)
	}
	return d, nil
}

// InsertRevision writes rev as the next revision of its document and returns
// it with RevisionNumber filled in. The number is one past the current maximum.
func (s *Store) InsertRevision(ctx context.Context, rev DocumentRevision) (DocumentRevision, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE id = ?`, rev.DocumentID).Scan(&exists); err != nil {
			return fmt.Errorf("checking document %s: %w", rev.DocumentID, err)
		}
		if exists == 0 {
			return ErrNotFound
		}

		var maxRev int
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(revision_number), 0) FROM document_revisions WHERE document_id = ?`,
			rev.DocumentID,
		).Scan(&maxRev); err != nil {
			return fmt.Errorf("reading latest revision: %w", err)
		}
		rev.RevisionNumber = maxRev + 1

		if rev.CreatedAt.IsZero() {
			rev.CreatedAt = time.Now().UTC()
		}
		rev.UpdatedAt = rev.CreatedAt

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO document_revisions (document_id, revision_number, status, draft_output,
				file_path, file_content_type, created_at, created_by, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rev.DocumentID, rev.RevisionNumber, rev.Status, rev.DraftOutput,
			rev.FilePath, rev.FileContentType, formatTime(rev.CreatedAt), rev.CreatedBy, formatTime(rev.UpdatedAt),
		); err != nil {
			return fmt.Errorf("inserting revision: %w", err)
		}
		return nil
	})
	if err != nil {
		return DocumentRevision{}, err
	}
	return rev, nil
}

const revisionColumns = `document_id, revision_number, status, draft_output, file_path,
	file_content_type, created_at, created_by, updated_at`

// GetRevision returns a specific revision. A revision number of 0 selects the latest.
func (s *Store) GetRevision(ctx context.Context, documentID string, revisionNumber int) (DocumentRevision, error) {
	var row *sql.Row
	if revisionNumber > 0 {
		row = s.db.QueryRowContext(ctx, `SELECT `+revisionColumns+` FROM document_revisions
			WHERE document_id = ? AND revision_number = ?`, documentID, revisionNumber)
	} else {
		row = s.db.QueryRowContext(ctx, `SELECT `+revisionColumns+` FROM document_revisions
			WHERE document_id = ? ORDER BY revision_number DESC LIMIT 1`, documentID)
	}

	var r DocumentRevision
	var createdAt, updatedAt string
	err := row.Scan(&r.DocumentID, &r.RevisionNumber, &r.Status, &r.DraftOutput, &r.FilePath,
		&r.FileContentType, &createdAt, &r.CreatedBy, &updatedAt)
	if err == sql.ErrNoRows {
		return DocumentRevision{}, ErrNotFound
	}
	if err != nil {
		return DocumentRevision{}, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return DocumentRevision{}, fmt.Errorf("parsing created_at for revision: %w", err)
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return DocumentRevision{}, fmt.Errorf("parsing updated_at for revision: %w", err)
	}
	return r, nil
}

func (s *Store) SetRevisionStatus(ctx context.Context, documentID string, revisionNumber int, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE document_revisions SET status = ?, updated_at = ?
		WHERE document_id = ? AND revision_number = ?`,
		status, formatTime(time.Now()), documentID, revisionNumber,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
