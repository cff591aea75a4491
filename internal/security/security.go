// Package security maintains the per-user security records kept at
// security/users/{hashedEmail}/data. Clients can never touch these records;
// every write goes through the system path so the audit trail still sees
// it, with the password history redacted.
package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"retireplan/internal/policy"
	dErrors "retireplan/pkg/domain-errors"
	"retireplan/pkg/email"
)

// DefaultHistorySize is how many previous password hashes are kept.
const DefaultHistorySize = 5

// Record field names.
const (
	FieldUID             = "uid"
	FieldEmail           = "email"
	FieldPasswordHistory = "passwordHistory"
)

// SystemDocuments is the elevated document path. *documents.Gateway
// implements it.
type SystemDocuments interface {
	SystemGet(ctx context.Context, capability policy.SystemCapability, path string) (map[string]any, bool, error)
	SystemWrite(ctx context.Context, capability policy.SystemCapability, path string, data map[string]any) (map[string]any, error)
}

type Service struct {
	docs        SystemDocuments
	capability  policy.SystemCapability
	historySize int
	cost        int
	logger      *slog.Logger
}

type Option func(*Service)

// WithHistorySize bounds the stored password history.
func WithHistorySize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historySize = n
		}
	}
}

// WithCost sets the bcrypt cost.
func WithCost(cost int) Option {
	return func(s *Service) {
		s.cost = cost
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(docs SystemDocuments, capability policy.SystemCapability, opts ...Option) (*Service, error) {
	if docs == nil {
		return nil, errors.New("system document writer is required")
	}
	if !capability.Valid() {
		return nil, policy.ErrNoServiceAccount
	}
	s := &Service{
		docs:        docs,
		capability:  capability,
		historySize: DefaultHistorySize,
		cost:        bcrypt.DefaultCost,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the security record path for an address.
func Path(address string) string {
	return "security/users/" + email.HashKey(address) + "/data"
}

// RecordPassword stores a new password hash at the head of the user's
// history. Reusing any password still in the history is a CodeConflict.
func (s *Service) RecordPassword(ctx context.Context, address, password string) error {
	normalized := email.Normalize(address)
	if normalized == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "email is required")
	}
	if password == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "password is required")
	}

	path := Path(normalized)
	existing, _, err := s.docs.SystemGet(ctx, s.capability, path)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "load security record")
	}

	history := passwordHistory(existing)
	for _, hash := range history {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil {
			return dErrors.New(dErrors.CodeConflict,
				fmt.Sprintf("password was used within the last %d changes", s.historySize))
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "hash password")
	}
	history = append([]string{string(hash)}, history...)
	if len(history) > s.historySize {
		history = history[:s.historySize]
	}

	record := map[string]any{
		FieldEmail:           normalized,
		FieldPasswordHistory: history,
	}
	if uid, ok := existing[FieldUID].(string); ok && uid != "" {
		record[FieldUID] = uid
	}
	if _, err := s.docs.SystemWrite(ctx, s.capability, path, record); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "write security record")
	}
	s.logger.InfoContext(ctx, "password history updated",
		"path", path,
		"history_size", len(history),
	)
	return nil
}

// LinkUID attaches the identity UID to an existing security record.
func (s *Service) LinkUID(ctx context.Context, address, uid string) error {
	if uid == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "uid is required")
	}
	path := Path(address)
	existing, found, err := s.docs.SystemGet(ctx, s.capability, path)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "load security record")
	}
	if !found {
		return dErrors.New(dErrors.CodeNotFound, "security record not found")
	}
	if existing[FieldUID] == uid {
		return nil
	}
	existing[FieldUID] = uid
	if _, err := s.docs.SystemWrite(ctx, s.capability, path, existing); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "write security record")
	}
	return nil
}

// passwordHistory reads the stored hashes. JSON-backed stores return
// []any; in-process values may still be []string.
func passwordHistory(record map[string]any) []string {
	switch v := record[FieldPasswordHistory].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

