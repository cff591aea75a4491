package documents_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"retireplan/internal/audit"
	"retireplan/internal/audit/feed"
	"retireplan/internal/documents"
	"retireplan/internal/policy"
	"retireplan/pkg/domain"
	dErrors "retireplan/pkg/domain-errors"
	auditlog "retireplan/pkg/platform/audit"
	"retireplan/pkg/platform/audit/store/memory"
	"retireplan/pkg/testutil"
)

const (
	scenarioPath = "artifacts/planner/public/data/scenarios/s1"
	advisorPath  = "artifacts/planner/public/data/advisors/a1"
	securityPath = "security/users/abc123/data"
	masterEmail  = "owner@example.com"
)

var (
	master    = testutil.Master(masterEmail)
	advisor   = testutil.Advisor("adv-1", "adv@example.com")
	anonymous = testutil.Anonymous("anon-1")
)

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, audit.ChangeEvent) error {
	return errors.New("broker unavailable")
}

type GatewaySuite struct {
	suite.Suite
	ctx        context.Context
	store      *documents.InMemoryStore
	auditLog   *memory.InMemoryStore
	gateway    *documents.Gateway
	capability policy.SystemCapability
	now        time.Time
}

func TestGatewaySuite(t *testing.T) {
	suite.Run(t, new(GatewaySuite))
}

func (s *GatewaySuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.store = documents.NewInMemoryStore()
	s.auditLog = memory.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	capability, err := policy.NewSystemCapability("audit-writer@system")
	s.Require().NoError(err)
	s.capability = capability

	recorder, err := audit.NewRecorder(s.auditLog, capability, audit.WithRecorderLogger(logger))
	s.Require().NoError(err)
	dispatcher, err := audit.NewDispatcher(recorder, audit.WithDispatcherLogger(logger))
	s.Require().NoError(err)

	s.gateway, err = documents.New(s.store,
		policy.NewEvaluator(masterEmail),
		feed.NewDirect(dispatcher),
		documents.WithLogger(logger),
		documents.WithClock(s.clock),
	)
	s.Require().NoError(err)
}

func (s *GatewaySuite) clock() time.Time {
	s.now = s.now.Add(time.Second)
	return s.now
}

func (s *GatewaySuite) entries() []auditlog.Entry {
	entries, err := s.auditLog.List(s.ctx, auditlog.Query{})
	s.Require().NoError(err)
	return entries
}

func (s *GatewaySuite) ownScenario() map[string]any {
	return map[string]any{
		"advisorId":    advisor.UID,
		"advisorEmail": advisor.Email,
		"name":         "Early retirement",
		"retireAge":    60,
	}
}

func (s *GatewaySuite) TestCreate() {
	s.Run("advisor creates own scenario and it is audited", func() {
		data, err := s.gateway.Create(s.ctx, advisor, scenarioPath, s.ownScenario())
		s.Require().NoError(err)
		s.NotEmpty(data[documents.UpdatedAtField])

		entries := s.entries()
		s.Require().Len(entries, 1)
		s.Equal(auditlog.ActionCreate, entries[0].Action)
		s.Equal(auditlog.CollectionScenarios, entries[0].Collection)
		s.Equal("s1", entries[0].DocumentID)
		s.Require().NotNil(entries[0].UserID)
		s.Equal(advisor.UID, *entries[0].UserID)
	})

	s.Run("existing path conflicts", func() {
		_, err := s.gateway.Create(s.ctx, advisor, scenarioPath, s.ownScenario())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Len(s.entries(), 1)
	})

	s.Run("advisor may not create for someone else", func() {
		data := s.ownScenario()
		data["advisorId"] = "someone-else"
		_, err := s.gateway.Create(s.ctx, advisor, scenarioPath+"x", data)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("anonymous client submission is allowed", func() {
		_, err := s.gateway.Create(s.ctx, anonymous, scenarioPath+"-anon", map[string]any{
			"advisorId": policy.ClientSubmission,
			"name":      "from the website",
		})
		s.Require().NoError(err)
	})

	s.Run("unauthenticated caller is rejected", func() {
		_, err := s.gateway.Create(s.ctx, domain.Identity{}, scenarioPath+"-u", s.ownScenario())
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("missing body is invalid", func() {
		_, err := s.gateway.Create(s.ctx, advisor, scenarioPath+"-nil", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown paths are denied", func() {
		_, err := s.gateway.Create(s.ctx, master, "misc/thing", map[string]any{"a": 1})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *GatewaySuite) TestUpdate() {
	_, err := s.gateway.Create(s.ctx, advisor, scenarioPath, s.ownScenario())
	s.Require().NoError(err)

	s.Run("field change is audited with changed fields", func() {
		data := s.ownScenario()
		data["retireAge"] = 62
		_, err := s.gateway.Update(s.ctx, advisor, scenarioPath, data)
		s.Require().NoError(err)

		entries := s.entries()
		s.Require().Len(entries, 2)
		s.Equal(auditlog.ActionUpdate, entries[0].Action)
		s.Equal([]string{"retireAge", "updatedAt"}, entries[0].ChangedFields)
		s.EqualValues(60, entries[0].Before["retireAge"])
		s.EqualValues(62, entries[0].After["retireAge"])
	})

	s.Run("timestamp-only save is not audited", func() {
		data := s.ownScenario()
		data["retireAge"] = 62
		_, err := s.gateway.Update(s.ctx, advisor, scenarioPath, data)
		s.Require().NoError(err)
		s.Len(s.entries(), 2)
	})

	s.Run("other advisor is forbidden", func() {
		other := domain.Identity{UID: "other", Email: "other@example.com", Role: domain.RoleAdvisor}
		_, err := s.gateway.Update(s.ctx, other, scenarioPath, s.ownScenario())
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("master may update", func() {
		data := s.ownScenario()
		data["name"] = "Reviewed"
		_, err := s.gateway.Update(s.ctx, master, scenarioPath, data)
		s.Require().NoError(err)
		s.Len(s.entries(), 3)
	})

	s.Run("missing document is not found", func() {
		_, err := s.gateway.Update(s.ctx, master, scenarioPath+"-missing", s.ownScenario())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *GatewaySuite) TestAssignedClient() {
	client := domain.Identity{UID: "c1", Email: "client@example.com", Role: domain.RoleRegisteredClient}
	data := s.ownScenario()
	data["assignedClientEmail"] = "Client@Example.com"
	_, err := s.gateway.Create(s.ctx, advisor, scenarioPath, data)
	s.Require().NoError(err)

	s.Run("may edit plan fields", func() {
		edit := s.ownScenario()
		edit["assignedClientEmail"] = "Client@Example.com"
		edit["retireAge"] = 65
		_, err := s.gateway.Update(s.ctx, client, scenarioPath, edit)
		s.Require().NoError(err)
	})

	s.Run("may not reassign the advisor", func() {
		edit := s.ownScenario()
		edit["assignedClientEmail"] = "Client@Example.com"
		edit["advisorId"] = client.UID
		_, err := s.gateway.Update(s.ctx, client, scenarioPath, edit)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("may not delete", func() {
		err := s.gateway.Delete(s.ctx, client, scenarioPath)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *GatewaySuite) TestDelete() {
	_, err := s.gateway.Create(s.ctx, advisor, scenarioPath, s.ownScenario())
	s.Require().NoError(err)

	s.Require().NoError(s.gateway.Delete(s.ctx, advisor, scenarioPath))

	entries := s.entries()
	s.Require().Len(entries, 2)
	s.Equal(auditlog.ActionDelete, entries[0].Action)
	s.Nil(entries[0].After)
	s.Equal("Early retirement", entries[0].Before["name"])

	_, err = s.gateway.Get(s.ctx, advisor, scenarioPath)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	err = s.gateway.Delete(s.ctx, advisor, scenarioPath)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *GatewaySuite) TestMissingDocuments() {
	missing := scenarioPath + "-missing"

	s.Run("owner update and delete are not found", func() {
		_, err := s.gateway.Update(s.ctx, advisor, missing, s.ownScenario())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		err = s.gateway.Delete(s.ctx, advisor, missing)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("unreadable paths stay denied", func() {
		_, err := s.gateway.Update(s.ctx, master, securityPath, map[string]any{"email": "x"})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		err = s.gateway.Delete(s.ctx, master, securityPath)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unauthenticated callers are rejected first", func() {
		err := s.gateway.Delete(s.ctx, domain.Identity{}, missing)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Empty(s.entries())
}

func (s *GatewaySuite) TestAdvisorProfiles() {
	s.Run("advisor cannot write profiles", func() {
		_, err := s.gateway.Create(s.ctx, advisor, advisorPath, map[string]any{"name": "A"})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("master writes and anyone signed in reads", func() {
		_, err := s.gateway.Create(s.ctx, master, advisorPath, map[string]any{
			"advisorId": "a1",
			"name":      "A",
		})
		s.Require().NoError(err)

		data, err := s.gateway.Get(s.ctx, anonymous, advisorPath)
		s.Require().NoError(err)
		s.Equal("A", data["name"])

		entries := s.entries()
		s.Require().Len(entries, 1)
		s.Equal(auditlog.CollectionAdvisors, entries[0].Collection)
	})
}

func (s *GatewaySuite) TestSecurityRecords() {
	s.Run("clients cannot touch security records", func() {
		_, err := s.gateway.Create(s.ctx, master, securityPath, map[string]any{"email": "x"})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		_, err = s.gateway.Get(s.ctx, master, securityPath)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("system writes are audited with redaction", func() {
		_, err := s.gateway.SystemWrite(s.ctx, s.capability, securityPath, map[string]any{
			"email":           "user@example.com",
			"passwordHistory": []any{"h1", "h2"},
		})
		s.Require().NoError(err)

		entries := s.entries()
		s.Require().Len(entries, 1)
		s.Equal(auditlog.CollectionSecurity, entries[0].Collection)
		s.Equal("[REDACTED: 2 entries]", entries[0].After["passwordHistory"])

		data, found, err := s.gateway.SystemGet(s.ctx, s.capability, securityPath)
		s.Require().NoError(err)
		s.True(found)
		s.Len(data["passwordHistory"], 2)
	})

	s.Run("zero capability is rejected", func() {
		_, err := s.gateway.SystemWrite(s.ctx, policy.SystemCapability{}, securityPath, map[string]any{})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		_, _, err = s.gateway.SystemGet(s.ctx, policy.SystemCapability{}, securityPath)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		err = s.gateway.SystemDelete(s.ctx, policy.SystemCapability{}, securityPath)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("system delete removes the record", func() {
		s.Require().NoError(s.gateway.SystemDelete(s.ctx, s.capability, securityPath))
		_, found, err := s.gateway.SystemGet(s.ctx, s.capability, securityPath)
		s.Require().NoError(err)
		s.False(found)
	})
}

func (s *GatewaySuite) TestPublishFailureKeepsWrite() {
	gateway, err := documents.New(s.store,
		policy.NewEvaluator(masterEmail),
		failingPublisher{},
		documents.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)

	_, err = gateway.Create(s.ctx, advisor, scenarioPath, s.ownScenario())
	s.Require().NoError(err)

	data, err := gateway.Get(s.ctx, advisor, scenarioPath)
	s.Require().NoError(err)
	s.Equal("Early retirement", data["name"])
}

func (s *GatewaySuite) TestInvalidPath() {
	_, err := s.gateway.Get(s.ctx, advisor, "a//b")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
