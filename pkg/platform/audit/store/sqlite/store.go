// Package sqlite is a single-file audit store for single-node deployments and
// local development. Timestamps are stored as UTC RFC 3339 text so that
// lexical order matches time order.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	audit "retireplan/pkg/platform/audit"
	"retireplan/pkg/platform/sentinel"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		collection TEXT NOT NULL,
		document_id TEXT NOT NULL,
		document_path TEXT NOT NULL,
		user_id TEXT,
		user_email TEXT,
		timestamp TEXT NOT NULL,
		before TEXT,
		after TEXT,
		changed_fields TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE INDEX IF NOT EXISTS audit_logs_timestamp ON audit_logs (timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS audit_logs_collection ON audit_logs (collection, timestamp DESC)`,
	`CREATE TRIGGER IF NOT EXISTS audit_logs_no_update BEFORE UPDATE ON audit_logs
		BEGIN SELECT RAISE(ABORT, 'audit_logs is append-only'); END`,
	`CREATE TRIGGER IF NOT EXISTS audit_logs_no_delete BEFORE DELETE ON audit_logs
		BEGIN SELECT RAISE(ABORT, 'audit_logs is append-only'); END`,
}

// Store implements audit.Store on a sqlite file.
type Store struct {
	db *sql.DB
}

// Open opens or creates audit.sqlite under dir.
func Open(dir string) (*Store, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create audit state dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "audit.sqlite"))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer; sqlite serialises writes anyway
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

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
	changedJSON, err := json.Marshal(changed)
	if err != nil {
		return fmt.Errorf("encode changed fields: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO audit_logs (
			id, action, collection, document_id, document_path,
			user_id, user_email, timestamp, before, after, changed_fields
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		string(entry.Action),
		entry.Collection,
		entry.DocumentID,
		entry.DocumentPath,
		entry.UserID,
		entry.UserEmail,
		entry.Timestamp.UTC().Format(timeLayout),
		before,
		after,
		string(changedJSON),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("insert audit entry %s: %w", entry.ID, sentinel.ErrDuplicate)
	}
	return nil
}

func (s *Store) List(ctx context.Context, q audit.Query) ([]audit.Entry, error) {
	var (
		where []string
		args  []any
	)
	if q.Collection != "" {
		where = append(where, "collection = ?")
		args = append(args, q.Collection)
	}
	if q.DocumentPath != "" {
		where = append(where, "document_path = ?")
		args = append(args, q.DocumentPath)
	}
	query := `SELECT id, action, collection, document_id, document_path,
		user_id, user_email, timestamp, before, after, changed_fields
		FROM audit_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, rowid DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := []audit.Entry{}
	for rows.Next() {
		var (
			entry             audit.Entry
			action, ts        string
			before, after     sql.NullString
			changed           string
			userID, userEmail sql.NullString
		)
		if err := rows.Scan(&entry.ID, &action, &entry.Collection, &entry.DocumentID, &entry.DocumentPath,
			&userID, &userEmail, &ts, &before, &after, &changed); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Action = audit.Action(action)
		if userID.Valid {
			entry.UserID = &userID.String
		}
		if userEmail.Valid {
			entry.UserEmail = &userEmail.String
		}
		if entry.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("parse timestamp %s: %w", entry.ID, err)
		}
		if entry.Before, err = decodeSnapshot(before); err != nil {
			return nil, fmt.Errorf("decode before snapshot %s: %w", entry.ID, err)
		}
		if entry.After, err = decodeSnapshot(after); err != nil {
			return nil, fmt.Errorf("decode after snapshot %s: %w", entry.ID, err)
		}
		entry.ChangedFields = []string{}
		if err := json.Unmarshal([]byte(changed), &entry.ChangedFields); err != nil {
			return nil, fmt.Errorf("decode changed fields %s: %w", entry.ID, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func encodeSnapshot(s audit.Snapshot) (sql.NullString, error) {
	if s == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeSnapshot(raw sql.NullString) (audit.Snapshot, error) {
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return nil, nil
	}
	var s audit.Snapshot
	if err := json.Unmarshal([]byte(raw.String), &s); err != nil {
		return nil, err
	}
	return s, nil
}
