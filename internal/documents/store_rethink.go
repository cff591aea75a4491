package documents

import (
	"context"
	"fmt"
	"strings"

	r "gopkg.in/rethinkdb/rethinkdb-go.v6"

	"retireplan/pkg/platform/sentinel"
)

// DefaultTable holds every document, keyed by full path.
const DefaultTable = "documents"

// rethinkDocument is the stored row shape. The changefeed watcher decodes
// the same shape from old_val/new_val.
type rethinkDocument struct {
	ID   string         `rethinkdb:"id" json:"id"`
	Rev  string         `rethinkdb:"rev" json:"rev"`
	Data map[string]any `rethinkdb:"data" json:"data"`
}

// RethinkStore keeps documents in one RethinkDB table.
type RethinkStore struct {
	session r.QueryExecutor
	db      string
	table   string
}

func NewRethinkStore(session r.QueryExecutor, db, table string) *RethinkStore {
	if table == "" {
		table = DefaultTable
	}
	return &RethinkStore{session: session, db: db, table: table}
}

// EnsureTable creates the table when it is missing.
func (s *RethinkStore) EnsureTable(ctx context.Context) error {
	_, err := r.DB(s.db).TableCreate(s.table).RunWrite(s.session, r.RunOpts{Context: ctx})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

func (s *RethinkStore) term() r.Term {
	return r.DB(s.db).Table(s.table)
}

func (s *RethinkStore) Get(ctx context.Context, path string) (Document, error) {
	cur, err := s.term().Get(path).Run(s.session, r.RunOpts{Context: ctx})
	if err != nil {
		return Document{}, fmt.Errorf("get document %s: %w: %w", path, sentinel.ErrUnavailable, err)
	}
	defer cur.Close()
	if cur.IsNil() {
		return Document{}, fmt.Errorf("document %s: %w", path, sentinel.ErrNotFound)
	}
	var row rethinkDocument
	if err := cur.One(&row); err != nil {
		return Document{}, fmt.Errorf("decode document %s: %w", path, err)
	}
	return Document{Path: row.ID, Rev: row.Rev, Data: row.Data}, nil
}

func (s *RethinkStore) Create(ctx context.Context, doc Document) error {
	res, err := s.term().
		Insert(rethinkDocument{ID: doc.Path, Rev: doc.Rev, Data: doc.Data}).
		RunWrite(s.session, r.RunOpts{Context: ctx})
	if err != nil {
		if strings.Contains(err.Error(), "Duplicate primary key") {
			return fmt.Errorf("document %s: %w", doc.Path, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert document %s: %w", doc.Path, err)
	}
	if res.Inserted == 0 {
		return fmt.Errorf("document %s: %w", doc.Path, sentinel.ErrConflict)
	}
	return nil
}

func (s *RethinkStore) Replace(ctx context.Context, doc Document) error {
	res, err := s.term().Get(doc.Path).
		Replace(func(row r.Term) r.Term {
			return r.Branch(row.Eq(nil), nil, rethinkDocument{ID: doc.Path, Rev: doc.Rev, Data: doc.Data})
		}).
		RunWrite(s.session, r.RunOpts{Context: ctx})
	if err != nil {
		return fmt.Errorf("replace document %s: %w", doc.Path, err)
	}
	if res.Replaced == 0 && res.Unchanged == 0 {
		return fmt.Errorf("document %s: %w", doc.Path, sentinel.ErrNotFound)
	}
	return nil
}

func (s *RethinkStore) Delete(ctx context.Context, path string) (Document, error) {
	res, err := s.term().Get(path).
		Delete(r.DeleteOpts{ReturnChanges: true}).
		RunWrite(s.session, r.RunOpts{Context: ctx})
	if err != nil {
		return Document{}, fmt.Errorf("delete document %s: %w", path, err)
	}
	if res.Deleted == 0 || len(res.Changes) == 0 {
		return Document{}, fmt.Errorf("document %s: %w", path, sentinel.ErrNotFound)
	}
	old, _ := res.Changes[0].OldValue.(map[string]any)
	doc := Document{Path: path}
	doc.Rev, _ = old["rev"].(string)
	doc.Data, _ = old["data"].(map[string]any)
	return doc, nil
}
