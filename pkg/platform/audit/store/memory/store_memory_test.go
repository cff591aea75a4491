package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	audit "retireplan/pkg/platform/audit"
	"retireplan/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) TestAppendAndList() {
	s.Run("lists newest first", func() {
		s.Require().NoError(s.store.Append(s.ctx, audit.Entry{ID: "1", Collection: audit.CollectionScenarios}))
		s.Require().NoError(s.store.Append(s.ctx, audit.Entry{ID: "2", Collection: audit.CollectionAdvisors}))

		entries, err := s.store.List(s.ctx, audit.Query{})
		s.Require().NoError(err)
		s.Require().Len(entries, 2)
		s.Equal("2", entries[0].ID)
		s.Equal("1", entries[1].ID)
	})

	s.Run("filters by collection and limit", func() {
		s.Require().NoError(s.store.Append(s.ctx, audit.Entry{ID: "3", Collection: audit.CollectionScenarios}))

		entries, err := s.store.List(s.ctx, audit.Query{Collection: audit.CollectionScenarios, Limit: 1})
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal("3", entries[0].ID)
	})

	s.Run("empty result is an empty slice", func() {
		entries, err := s.store.List(s.ctx, audit.Query{DocumentPath: "nope"})
		s.Require().NoError(err)
		s.NotNil(entries)
		s.Empty(entries)
	})
}

func (s *InMemoryStoreSuite) TestDuplicateIDs() {
	s.Require().NoError(s.store.Append(s.ctx, audit.Entry{ID: "dup", Action: audit.ActionCreate}))

	err := s.store.Append(s.ctx, audit.Entry{ID: "dup", Action: audit.ActionDelete})
	s.Require().ErrorIs(err, sentinel.ErrDuplicate)
	s.Equal(1, s.store.Len())

	entries, err := s.store.List(s.ctx, audit.Query{})
	s.Require().NoError(err)
	s.Equal(audit.ActionCreate, entries[0].Action)
}
