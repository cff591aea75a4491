package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	audit "retireplan/pkg/platform/audit"
	"retireplan/pkg/platform/sentinel"
)

// DB is the subset of pgxpool.Pool (and pgx.Tx) the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store implements audit.Store on the audit_logs table. The table carries a
// trigger that rejects UPDATE and DELETE, so append-only holds even for
// operators with direct SQL access.
type Store struct {
	db DB
}

// New creates a PostgreSQL audit store.
func New(db DB) *Store {
	return &Store{db: db}
}

// Append inserts an entry. Re-inserting an existing ID is a no-op reported as
// sentinel.ErrDuplicate.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	before, err := encodeSnapshot(entry.Before)
	if err != nil {
		return fmt.Errorf("encode before snapshot: %w", err)
	}
	after, err := encodeSnapshot(entry.After)
	if err != nil {
		return fmt.Errorf("encode after snapshot: %w", err)
	}
	changed := entry.ChangedFields
	if changed == nil {
		changed = []string{}
	}

	query := `
		INSERT INTO audit_logs (
			id, action, collection, document_id, document_path,
			user_id, user_email, timestamp, before, after, changed_fields
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := s.db.Exec(ctx, query,
		entry.ID,
		string(entry.Action),
		entry.Collection,
		entry.DocumentID,
		entry.DocumentPath,
		entry.UserID,
		entry.UserEmail,
		entry.Timestamp,
		before,
		after,
		changed,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("insert audit entry %s: %w", entry.ID, sentinel.ErrDuplicate)
	}
	return nil
}

// List returns matching entries, newest first.
func (s *Store) List(ctx context.Context, q audit.Query) ([]audit.Entry, error) {
	var (
		where []string
		args  []any
	)
	if q.Collection != "" {
		args = append(args, q.Collection)
		where = append(where, fmt.Sprintf("collection = $%d", len(args)))
	}
	if q.DocumentPath != "" {
		args = append(args, q.DocumentPath)
		where = append(where, fmt.Sprintf("document_path = $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString(`
		SELECT id, action, collection, document_id, document_path,
			   user_id, user_email, timestamp, before, after, changed_fields
		FROM audit_logs`)
	if len(where) > 0 {
		b.WriteString("\n\t\tWHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString("\n\t\tORDER BY timestamp DESC, id DESC")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, "\n\t\tLIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := []audit.Entry{}
	for rows.Next() {
		var (
			entry         audit.Entry
			action        string
			before, after []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&action,
			&entry.Collection,
			&entry.DocumentID,
			&entry.DocumentPath,
			&entry.UserID,
			&entry.UserEmail,
			&entry.Timestamp,
			&before,
			&after,
			&entry.ChangedFields,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Action = audit.Action(action)
		if entry.Before, err = decodeSnapshot(before); err != nil {
			return nil, fmt.Errorf("decode before snapshot %s: %w", entry.ID, err)
		}
		if entry.After, err = decodeSnapshot(after); err != nil {
			return nil, fmt.Errorf("decode after snapshot %s: %w", entry.ID, err)
		}
		if entry.ChangedFields == nil {
			entry.ChangedFields = []string{}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

// encodeSnapshot returns nil (SQL NULL) for a nil snapshot.
func encodeSnapshot(s audit.Snapshot) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func decodeSnapshot(raw []byte) (audit.Snapshot, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s audit.Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return s, nil
}
