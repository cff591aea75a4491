// Package claims assigns authorization roles. Only the master account may
// change a role, and every change is written to the audit log.
package claims

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"retireplan/internal/audit"
	"retireplan/internal/policy"
	"retireplan/pkg/domain"
	dErrors "retireplan/pkg/domain-errors"
	"retireplan/pkg/email"
	auditlog "retireplan/pkg/platform/audit"
	"retireplan/pkg/platform/sentinel"
)

// Claim is the out-of-band authorization metadata attached to a uid.
type Claim struct {
	Role domain.Role `json:"role"`
}

// Store persists claims. Set replaces any previous claim for uid. Get returns
// sentinel.ErrNotFound when uid has none.
type Store interface {
	Set(ctx context.Context, uid string, claim Claim) error
	Get(ctx context.Context, uid string) (Claim, error)
}

// SetRoleResult is returned to the caller of SetUserRole.
type SetRoleResult struct {
	Success bool        `json:"success"`
	UID     string      `json:"uid"`
	Role    domain.Role `json:"role"`
}

// Service implements role assignment.
type Service struct {
	store       Store
	recorder    audit.EntryRecorder
	masterEmail string
	logger      *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New builds the Service. Claim writes bypass the document policy, so the
// caller must hold the system capability.
func New(store Store, recorder audit.EntryRecorder, masterEmail string, capability policy.SystemCapability, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("claim store is required")
	}
	if recorder == nil {
		return nil, errors.New("audit recorder is required")
	}
	if email.Normalize(masterEmail) == "" {
		return nil, errors.New("master email is required")
	}
	if !capability.Valid() {
		return nil, errors.New("system capability is required")
	}
	s := &Service{
		store:       store,
		recorder:    recorder,
		masterEmail: email.Normalize(masterEmail),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SetUserRole replaces uid's claim with {role} and records the change.
//
// The claim write and the audit append are not atomic: if the append fails
// the new claim stays in place and an internal error is returned.
func (s *Service) SetUserRole(ctx context.Context, caller domain.Identity, uid, role string) (SetRoleResult, error) {
	if err := s.requireMaster(caller); err != nil {
		return SetRoleResult{}, err
	}

	uid = strings.TrimSpace(uid)
	if uid == "" || role == "" {
		return SetRoleResult{}, dErrors.New(dErrors.CodeInvalidInput,
			"uid and role are required; role must be one of: "+domain.RoleList())
	}
	parsed, ok := domain.ParseRole(role)
	if !ok {
		return SetRoleResult{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"invalid role %q; must be one of: %s", role, domain.RoleList())
	}

	if err := s.store.Set(ctx, uid, Claim{Role: parsed}); err != nil {
		return SetRoleResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "set claim")
	}

	callerEmail := email.Normalize(caller.Email)
	_, err := s.recorder.Record(ctx, audit.RecordInput{
		Action:       auditlog.ActionUpdate,
		Collection:   auditlog.CollectionAuthClaims,
		DocumentID:   uid,
		DocumentPath: "auth_claims/" + uid,
		After: auditlog.Snapshot{
			"uid":        uid,
			"role":       string(parsed),
			"assignedBy": callerEmail,
		},
		ChangedFields: []string{"role"},
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "role assigned without audit entry",
			"error", err,
			"uid", uid,
			"role", parsed,
		)
		return SetRoleResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "record role change")
	}

	s.logger.InfoContext(ctx, "role assigned",
		"uid", uid,
		"role", parsed,
		"assigned_by", callerEmail,
	)
	return SetRoleResult{Success: true, UID: uid, Role: parsed}, nil
}

// GetClaim reads uid's claim. Master only.
func (s *Service) GetClaim(ctx context.Context, caller domain.Identity, uid string) (Claim, error) {
	if err := s.requireMaster(caller); err != nil {
		return Claim{}, err
	}
	claim, err := s.store.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Claim{}, dErrors.New(dErrors.CodeNotFound, "no claim for uid")
		}
		return Claim{}, dErrors.Wrap(err, dErrors.CodeInternal, "get claim")
	}
	return claim, nil
}

// RoleOf resolves the role claim for uid, or "" when none is set. Used by
// identity verification to attach the claim to a caller.
func (s *Service) RoleOf(ctx context.Context, uid string) (domain.Role, error) {
	claim, err := s.store.Get(ctx, uid)
	if errors.Is(err, sentinel.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup claim: %w", err)
	}
	return claim.Role, nil
}

func (s *Service) requireMaster(caller domain.Identity) error {
	if !caller.Authenticated() || caller.Anonymous || !email.Equal(caller.Email, s.masterEmail) {
		return dErrors.New(dErrors.CodeForbidden, "only the master account can manage roles")
	}
	return nil
}
