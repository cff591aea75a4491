package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	audit "retireplan/pkg/platform/audit"
	"retireplan/pkg/platform/sentinel"
)

type SQLiteStoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func TestSQLiteStoreSuite(t *testing.T) {
	suite.Run(t, new(SQLiteStoreSuite))
}

func (s *SQLiteStoreSuite) SetupTest() {
	store, err := Open(s.T().TempDir())
	s.Require().NoError(err)
	s.store = store
	s.ctx = context.Background()
}

func (s *SQLiteStoreSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func (s *SQLiteStoreSuite) TestRoundTrip() {
	userID := "advisor-1"
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	entry := audit.Entry{
		ID:            "e1",
		Action:        audit.ActionUpdate,
		Collection:    audit.CollectionScenarios,
		DocumentID:    "s1",
		DocumentPath:  "artifacts/app/public/data/scenarios/s1",
		UserID:        &userID,
		Timestamp:     ts,
		Before:        audit.Snapshot{"name": "old"},
		After:         audit.Snapshot{"name": "new"},
		ChangedFields: []string{"name"},
	}
	s.Require().NoError(s.store.Append(s.ctx, entry))

	entries, err := s.store.List(s.ctx, audit.Query{})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)

	got := entries[0]
	s.Equal(entry.ID, got.ID)
	s.Equal(audit.ActionUpdate, got.Action)
	s.Require().NotNil(got.UserID)
	s.Equal(userID, *got.UserID)
	s.Nil(got.UserEmail)
	s.True(ts.Equal(got.Timestamp))
	s.Equal("new", got.After["name"])
	s.Equal([]string{"name"}, got.ChangedFields)
}

func (s *SQLiteStoreSuite) TestNullSnapshots() {
	s.Require().NoError(s.store.Append(s.ctx, audit.Entry{
		ID:         "create-1",
		Action:     audit.ActionCreate,
		Collection: audit.CollectionAdvisors,
		Timestamp:  time.Now(),
		After:      audit.Snapshot{"name": "Ada"},
	}))

	entries, err := s.store.List(s.ctx, audit.Query{Collection: audit.CollectionAdvisors})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Nil(entries[0].Before)
	s.NotNil(entries[0].ChangedFields)
	s.Empty(entries[0].ChangedFields)
}

func (s *SQLiteStoreSuite) TestDuplicateAndOrdering() {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		s.Require().NoError(s.store.Append(s.ctx, audit.Entry{
			ID:         id,
			Action:     audit.ActionCreate,
			Collection: audit.CollectionScenarios,
			Timestamp:  base.Add(time.Duration(i) * time.Second),
		}))
	}

	err := s.store.Append(s.ctx, audit.Entry{ID: "a", Action: audit.ActionDelete, Timestamp: base})
	s.Require().ErrorIs(err, sentinel.ErrDuplicate)

	entries, err := s.store.List(s.ctx, audit.Query{Limit: 2})
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal("c", entries[0].ID)
	s.Equal("b", entries[1].ID)
}

func (s *SQLiteStoreSuite) TestAppendOnlyTrigger() {
	s.Require().NoError(s.store.Append(s.ctx, audit.Entry{ID: "x", Action: audit.ActionCreate, Timestamp: time.Now()}))

	_, err := s.store.db.ExecContext(s.ctx, `UPDATE audit_logs SET action = 'delete' WHERE id = 'x'`)
	s.Require().Error(err)
	_, err = s.store.db.ExecContext(s.ctx, `DELETE FROM audit_logs WHERE id = 'x'`)
	s.Require().Error(err)
}
