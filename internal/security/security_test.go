package security_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"retireplan/internal/audit"
	"retireplan/internal/audit/feed"
	"retireplan/internal/documents"
	"retireplan/internal/policy"
	"retireplan/internal/security"
	dErrors "retireplan/pkg/domain-errors"
	auditlog "retireplan/pkg/platform/audit"
	"retireplan/pkg/platform/audit/store/memory"
)

const userEmail = "saver@example.com"

type SecuritySuite struct {
	suite.Suite
	ctx        context.Context
	auditLog   *memory.InMemoryStore
	gateway    *documents.Gateway
	service    *security.Service
	capability policy.SystemCapability
}

func TestSecuritySuite(t *testing.T) {
	suite.Run(t, new(SecuritySuite))
}

func (s *SecuritySuite) SetupTest() {
	s.ctx = context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	capability, err := policy.NewSystemCapability("security-writer")
	s.Require().NoError(err)
	s.capability = capability

	s.auditLog = memory.NewInMemoryStore()
	recorder, err := audit.NewRecorder(s.auditLog, capability)
	s.Require().NoError(err)
	dispatcher, err := audit.NewDispatcher(recorder, audit.WithDispatcherLogger(logger))
	s.Require().NoError(err)

	s.gateway, err = documents.New(documents.NewInMemoryStore(),
		policy.NewEvaluator("owner@example.com"),
		feed.NewDirect(dispatcher),
		documents.WithLogger(logger),
	)
	s.Require().NoError(err)

	s.service, err = security.New(s.gateway, capability,
		security.WithCost(bcrypt.MinCost),
		security.WithHistorySize(3),
		security.WithLogger(logger),
	)
	s.Require().NoError(err)
}

func (s *SecuritySuite) record() map[string]any {
	data, found, err := s.gateway.SystemGet(s.ctx, s.capability, security.Path(userEmail))
	s.Require().NoError(err)
	s.Require().True(found)
	return data
}

func (s *SecuritySuite) history() []any {
	h, ok := s.record()[security.FieldPasswordHistory].([]any)
	s.Require().True(ok)
	return h
}

func (s *SecuritySuite) TestRecordPassword() {
	s.Run("first password creates the record", func() {
		s.Require().NoError(s.service.RecordPassword(s.ctx, " Saver@Example.com", "first-secret"))
		rec := s.record()
		s.Equal(userEmail, rec[security.FieldEmail])
		s.Len(s.history(), 1)
		s.NotEmpty(rec[documents.UpdatedAtField])
	})

	s.Run("reuse is rejected", func() {
		err := s.service.RecordPassword(s.ctx, userEmail, "first-secret")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Len(s.history(), 1)
	})

	s.Run("history is bounded and newest first", func() {
		for _, pw := range []string{"second", "third", "fourth"} {
			s.Require().NoError(s.service.RecordPassword(s.ctx, userEmail, pw))
		}
		history := s.history()
		s.Require().Len(history, 3)
		s.NoError(bcrypt.CompareHashAndPassword([]byte(history[0].(string)), []byte("fourth")))

		s.Require().NoError(s.service.RecordPassword(s.ctx, userEmail, "first-secret"), "dropped out of the history")
	})
}

func (s *SecuritySuite) TestAuditTrailIsRedacted() {
	s.Require().NoError(s.service.RecordPassword(s.ctx, userEmail, "one"))
	s.Require().NoError(s.service.RecordPassword(s.ctx, userEmail, "two"))

	entries, err := s.auditLog.List(s.ctx, auditlog.Query{Collection: auditlog.CollectionSecurity})
	s.Require().NoError(err)
	s.Require().Len(entries, 2)

	update := entries[0]
	s.Equal(auditlog.ActionUpdate, update.Action)
	s.Contains(update.ChangedFields, security.FieldPasswordHistory)
	s.Equal("[REDACTED: 1 entries]", update.Before[security.FieldPasswordHistory])
	s.Equal("[REDACTED: 2 entries]", update.After[security.FieldPasswordHistory])
	s.Require().NotNil(update.UserEmail)
	s.Equal(userEmail, *update.UserEmail)
}

func (s *SecuritySuite) TestLinkUID() {
	err := s.service.LinkUID(s.ctx, userEmail, "u-1")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	s.Require().NoError(s.service.RecordPassword(s.ctx, userEmail, "one"))
	s.Require().NoError(s.service.LinkUID(s.ctx, userEmail, "u-1"))
	s.Equal("u-1", s.record()[security.FieldUID])

	s.Require().NoError(s.service.RecordPassword(s.ctx, userEmail, "two"))
	s.Equal("u-1", s.record()[security.FieldUID], "uid survives password changes")
}

func (s *SecuritySuite) TestValidation() {
	s.True(dErrors.HasCode(s.service.RecordPassword(s.ctx, "", "pw"), dErrors.CodeInvalidInput))
	s.True(dErrors.HasCode(s.service.RecordPassword(s.ctx, userEmail, ""), dErrors.CodeInvalidInput))

	_, err := security.New(s.gateway, policy.SystemCapability{})
	s.True(errors.Is(err, policy.ErrNoServiceAccount))
}
