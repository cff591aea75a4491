// Package rethink opens the RethinkDB session backing the document store.
package rethink

import (
	"fmt"
	"time"

	r "gopkg.in/rethinkdb/rethinkdb-go.v6"

	"retireplan/internal/platform/config"
)

// Connect opens a session and creates the database when missing.
func Connect(cfg config.RethinkConfig) (*r.Session, error) {
	session, err := r.Connect(r.ConnectOpts{
		Address:    cfg.Addr,
		Database:   cfg.Database,
		Timeout:    5 * time.Second,
		InitialCap: 2,
		MaxOpen:    10,
	})
	if err != nil {
		return nil, fmt.Errorf("connect rethinkdb: %w", err)
	}
	if err := EnsureDatabase(session, cfg.Database); err != nil {
		_ = session.Close()
		return nil, err
	}
	return session, nil
}

// EnsureDatabase creates db unless it exists.
func EnsureDatabase(session r.QueryExecutor, db string) error {
	_, err := r.Branch(
		r.DBList().Contains(db),
		nil,
		r.DBCreate(db),
	).RunWrite(session)
	if err != nil {
		return fmt.Errorf("ensure rethinkdb database %s: %w", db, err)
	}
	return nil
}
