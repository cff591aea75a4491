//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"

	"retireplan/internal/platform/config"
	"retireplan/internal/platform/postgres"
	audit "retireplan/pkg/platform/audit"
	store "retireplan/pkg/platform/audit/store/postgres"
	"retireplan/pkg/platform/sentinel"
	"retireplan/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	ctx   context.Context
	pool  *pgxpool.Pool
	store *store.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	dsn := containers.NewPostgres(s.T())
	s.Require().NoError(postgres.Migrate(dsn))
	s.Require().NoError(postgres.Migrate(dsn), "migrations are idempotent")

	pool, err := postgres.Connect(s.ctx, config.PostgresConfig{DSN: dsn})
	s.Require().NoError(err)
	s.T().Cleanup(pool.Close)
	s.pool = pool
	s.store = store.New(pool)
}

func (s *PostgresStoreSuite) SetupTest() {
	// Row triggers do not fire on TRUNCATE.
	_, err := s.pool.Exec(s.ctx, "TRUNCATE audit_logs")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) entry(id string, at time.Time) audit.Entry {
	uid := "adv-1"
	return audit.Entry{
		ID:            id,
		Action:        audit.ActionUpdate,
		Collection:    audit.CollectionScenarios,
		DocumentID:    "s1",
		DocumentPath:  "artifacts/planner/public/data/scenarios/s1",
		UserID:        &uid,
		Timestamp:     at,
		Before:        audit.Snapshot{"retireAge": 60.0},
		After:         audit.Snapshot{"retireAge": 62.0},
		ChangedFields: []string{"retireAge"},
	}
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.Require().NoError(s.store.Append(s.ctx, s.entry("e1", at)))

	entries, err := s.store.List(s.ctx, audit.Query{Collection: audit.CollectionScenarios})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	got := entries[0]
	s.Equal("e1", got.ID)
	s.Equal(audit.ActionUpdate, got.Action)
	s.True(at.Equal(got.Timestamp))
	s.Equal(62.0, got.After["retireAge"])
	s.Equal([]string{"retireAge"}, got.ChangedFields)
	s.Nil(got.UserEmail)
}

func (s *PostgresStoreSuite) TestNullSnapshotsAndEmptyChangedFields() {
	e := s.entry("e-create", time.Now().UTC())
	e.Action = audit.ActionCreate
	e.Before = nil
	e.ChangedFields = nil
	s.Require().NoError(s.store.Append(s.ctx, e))

	entries, err := s.store.List(s.ctx, audit.Query{})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Nil(entries[0].Before)
	s.NotNil(entries[0].ChangedFields)
	s.Empty(entries[0].ChangedFields)
}

func (s *PostgresStoreSuite) TestDuplicateAndOrdering() {
	base := time.Now().UTC()
	s.Require().NoError(s.store.Append(s.ctx, s.entry("old", base)))
	s.Require().NoError(s.store.Append(s.ctx, s.entry("new", base.Add(time.Second))))
	s.ErrorIs(s.store.Append(s.ctx, s.entry("old", base)), sentinel.ErrDuplicate)

	entries, err := s.store.List(s.ctx, audit.Query{Limit: 1})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("new", entries[0].ID)
}

func (s *PostgresStoreSuite) TestAppendOnly() {
	s.Require().NoError(s.store.Append(s.ctx, s.entry("e1", time.Now().UTC())))

	_, err := s.pool.Exec(s.ctx, "UPDATE audit_logs SET collection = 'x' WHERE id = 'e1'")
	s.Require().Error(err)
	s.Contains(err.Error(), "append-only")

	_, err = s.pool.Exec(s.ctx, "DELETE FROM audit_logs WHERE id = 'e1'")
	s.Require().Error(err)
}
