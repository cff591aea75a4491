// Package audit turns document lifecycle events into append-only audit
// entries: diffing, redaction, noise suppression and attribution.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"retireplan/internal/policy"
	dErrors "retireplan/pkg/domain-errors"
	auditlog "retireplan/pkg/platform/audit"
	"retireplan/pkg/platform/sentinel"
)

var tracer = otel.Tracer("retireplan/internal/audit")

// entryNamespace seeds deterministic entry IDs.
var entryNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("retireplan:audit-entry"))

// Owner fields read for attribution, in priority order.
var (
	ownerIDFields    = []string{"advisorId", "uid"}
	ownerEmailFields = []string{"advisorEmail", "email"}
)

// RecordInput describes one audit entry to append. EventID, when set, makes
// the entry ID deterministic so a redelivered event is stored once.
type RecordInput struct {
	Action        auditlog.Action
	Collection    string
	DocumentID    string
	DocumentPath  string
	Before        auditlog.Snapshot
	After         auditlog.Snapshot
	ChangedFields []string
	EventID       string
}

// Mirror receives entries after they are durably appended.
type Mirror interface {
	Mirror(ctx context.Context, entry auditlog.Entry) error
}

// Recorder appends audit entries through the system write path.
type Recorder struct {
	store      auditlog.Store
	capability policy.SystemCapability
	mirrors    []Mirror
	logger     *slog.Logger
	now        func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithMirror adds a best-effort downstream copy of each appended entry.
func WithMirror(m Mirror) RecorderOption {
	return func(r *Recorder) {
		if m != nil {
			r.mirrors = append(r.mirrors, m)
		}
	}
}

// WithRecorderLogger sets the logger.
func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithClock overrides the server clock used for entry timestamps.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder builds a Recorder. The capability must come from
// policy.NewSystemCapability.
func NewRecorder(store auditlog.Store, capability policy.SystemCapability, opts ...RecorderOption) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	if !capability.Valid() {
		return nil, errors.New("system capability is required")
	}
	r := &Recorder{
		store:      store,
		capability: capability,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Record appends one entry. Actor attribution is read from the record's
// own owner fields (After, else Before). It is best-effort and only as
// trustworthy as the policy that stamped those fields.
//
// Store failures are returned as CodeInternal; nothing is retried here.
// An entry whose ID already exists is reported as success.
func (r *Recorder) Record(ctx context.Context, in RecordInput) (auditlog.Entry, error) {
	ctx, span := tracer.Start(ctx, "audit.Record", trace.WithAttributes(
		attribute.String("audit.collection", in.Collection),
		attribute.String("audit.action", string(in.Action)),
		attribute.String("audit.document_path", in.DocumentPath),
	))
	defer span.End()

	entry := auditlog.Entry{
		ID:            r.entryID(in),
		Action:        in.Action,
		Collection:    in.Collection,
		DocumentID:    in.DocumentID,
		DocumentPath:  in.DocumentPath,
		Timestamp:     r.now().UTC(),
		Before:        in.Before,
		After:         in.After,
		ChangedFields: in.ChangedFields,
	}
	if entry.ChangedFields == nil {
		entry.ChangedFields = []string{}
	}
	source := in.After
	if source == nil {
		source = in.Before
	}
	entry.UserID = firstString(source, ownerIDFields)
	entry.UserEmail = firstString(source, ownerEmailFields)

	if err := r.store.Append(ctx, entry); err != nil {
		if errors.Is(err, sentinel.ErrDuplicate) {
			entriesDeduplicated.Inc()
			r.logger.InfoContext(ctx, "audit entry already recorded",
				"entry_id", entry.ID,
				"document_path", entry.DocumentPath,
			)
			return entry, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		r.logger.ErrorContext(ctx, "failed to append audit entry",
			"error", err,
			"collection", entry.Collection,
			"document_path", entry.DocumentPath,
			"service_account", r.capability.Account(),
		)
		return auditlog.Entry{}, dErrors.Wrap(err, dErrors.CodeInternal, "append audit entry")
	}
	entriesAppended.WithLabelValues(entry.Collection, string(entry.Action)).Inc()

	for _, m := range r.mirrors {
		if err := m.Mirror(ctx, entry); err != nil {
			mirrorFailures.Inc()
			r.logger.WarnContext(ctx, "failed to mirror audit entry",
				"error", err,
				"entry_id", entry.ID,
			)
		}
	}
	return entry, nil
}

func (r *Recorder) entryID(in RecordInput) string {
	if in.EventID == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(entryNamespace, []byte(in.DocumentPath+"#"+in.EventID)).String()
}

func firstString(s auditlog.Snapshot, fields []string) *string {
	for _, f := range fields {
		if v, ok := s[f].(string); ok && v != "" {
			return &v
		}
	}
	return nil
}
