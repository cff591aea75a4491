package audit

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"retireplan/pkg/docpath"
	dErrors "retireplan/pkg/domain-errors"
	auditlog "retireplan/pkg/platform/audit"
)

// UpdatedAtField is rewritten on every save and never justifies an entry on
// its own.
const UpdatedAtField = "updatedAt"

// EntryRecorder appends audit entries. *Recorder implements it.
type EntryRecorder interface {
	Record(ctx context.Context, in RecordInput) (auditlog.Entry, error)
}

// watch binds a document path pattern to the collection name it is logged
// under.
type watch struct {
	collection string
	pattern    docpath.Pattern
	idVar      string
	redact     bool
}

var watches = []watch{
	{
		collection: auditlog.CollectionScenarios,
		pattern:    docpath.Compile("artifacts/{app}/public/data/scenarios/{scenarioId}"),
		idVar:      "scenarioId",
	},
	{
		collection: auditlog.CollectionAdvisors,
		pattern:    docpath.Compile("artifacts/{app}/public/data/advisors/{advisorId}"),
		idVar:      "advisorId",
	},
	{
		collection: auditlog.CollectionSecurity,
		pattern:    docpath.Compile("security/users/{hashedEmail}/data"),
		idVar:      "hashedEmail",
		redact:     true,
	},
}

// Dispatcher handles change events for the watched collections.
type Dispatcher struct {
	recorder EntryRecorder
	redactor *Redactor
	logger   *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRedactor overrides the default redactor.
func WithRedactor(r *Redactor) DispatcherOption {
	return func(d *Dispatcher) {
		if r != nil {
			d.redactor = r
		}
	}
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func NewDispatcher(recorder EntryRecorder, opts ...DispatcherOption) (*Dispatcher, error) {
	if recorder == nil {
		return nil, errors.New("audit recorder is required")
	}
	d := &Dispatcher{
		recorder: recorder,
		redactor: NewRedactor(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Handle processes one event. Events on unwatched paths are ignored. Updates
// whose only change is updatedAt are suppressed. Errors are returned so the
// feed can redeliver; Handle never retries.
func (d *Dispatcher) Handle(ctx context.Context, ev ChangeEvent) error {
	ctx, span := tracer.Start(ctx, "audit.Dispatch", trace.WithAttributes(
		attribute.String("audit.event_kind", string(ev.Kind)),
		attribute.String("audit.event_id", ev.EventID),
		attribute.String("audit.document_path", ev.Path),
	))
	defer span.End()

	w, documentID, ok := resolve(ev.Path)
	if !ok {
		dispatchTotal.WithLabelValues("", outcomeIgnored).Inc()
		return nil
	}
	if err := ev.Validate(); err != nil {
		dispatchTotal.WithLabelValues(w.collection, outcomeFailed).Inc()
		span.SetStatus(codes.Error, err.Error())
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid change event")
	}

	in := RecordInput{
		Collection:   w.collection,
		DocumentID:   documentID,
		DocumentPath: docpath.Clean(ev.Path),
		EventID:      ev.EventID,
	}
	switch ev.Kind {
	case KindCreated:
		in.Action = auditlog.ActionCreate
		in.After = ev.After
	case KindDeleted:
		in.Action = auditlog.ActionDelete
		in.Before = ev.Before
	case KindUpdated:
		// Diff the raw snapshots: a change confined to a redacted field
		// must still be logged.
		changed := ChangedFields(ev.Before, ev.After)
		if noise(changed) {
			dispatchTotal.WithLabelValues(w.collection, outcomeSuppressed).Inc()
			span.SetAttributes(attribute.Bool("audit.suppressed", true))
			return nil
		}
		in.Action = auditlog.ActionUpdate
		in.Before = ev.Before
		in.After = ev.After
		in.ChangedFields = changed
	}
	if w.redact {
		in.Before = d.redactor.Redact(in.Before)
		in.After = d.redactor.Redact(in.After)
	}

	if _, err := d.recorder.Record(ctx, in); err != nil {
		dispatchTotal.WithLabelValues(w.collection, outcomeFailed).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "record failed")
		d.logger.ErrorContext(ctx, "audit dispatch failed",
			"error", err,
			"event_id", ev.EventID,
			"document_path", in.DocumentPath,
		)
		return err
	}
	dispatchTotal.WithLabelValues(w.collection, outcomeRecorded).Inc()
	return nil
}

// Watched reports whether events on path are audited.
func Watched(path string) bool {
	_, _, ok := resolve(path)
	return ok
}

func resolve(path string) (watch, string, bool) {
	for _, w := range watches {
		if vars, ok := w.pattern.Match(path); ok {
			return w, vars[w.idVar], true
		}
	}
	return watch{}, "", false
}

func noise(changed []string) bool {
	return len(changed) == 0 || (len(changed) == 1 && changed[0] == UpdatedAtField)
}
