// Package documents is the client write path for scenario, advisor and
// security records. Every client operation is checked against the access
// policy; every committed mutation is published as one change event.
package documents

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"retireplan/internal/audit"
	"retireplan/internal/policy"
	"retireplan/pkg/docpath"
	"retireplan/pkg/domain"
	dErrors "retireplan/pkg/domain-errors"
	"retireplan/pkg/platform/sentinel"
)

// UpdatedAtField is stamped by the gateway on every write.
const UpdatedAtField = "updatedAt"

var (
	policyDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retireplan_document_policy_denials_total",
		Help: "Client document operations denied by the access policy",
	}, []string{"op"})
	unpublishedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retireplan_document_events_unpublished_total",
		Help: "Committed document mutations whose change event could not be published",
	})
)

// EventPublisher delivers change events to the audit dispatcher.
type EventPublisher interface {
	Publish(ctx context.Context, ev audit.ChangeEvent) error
}

// Authorizer decides client operations. *policy.Evaluator implements it.
type Authorizer interface {
	Authorize(req policy.Request) policy.Decision
}

type Gateway struct {
	store     Store
	authz     Authorizer
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures the Gateway.
type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithClock overrides the clock used for updatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

func New(store Store, authz Authorizer, publisher EventPublisher, opts ...Option) (*Gateway, error) {
	if store == nil {
		return nil, errors.New("document store is required")
	}
	if authz == nil {
		return nil, errors.New("authorizer is required")
	}
	if publisher == nil {
		return nil, errors.New("event publisher is required")
	}
	g := &Gateway{
		store:     store,
		authz:     authz,
		publisher: publisher,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Get reads a document on behalf of caller.
func (g *Gateway) Get(ctx context.Context, caller domain.Identity, path string) (map[string]any, error) {
	path, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	existing, found, err := g.load(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := g.authorize(ctx, caller, policy.OpRead, path, existing, nil); err != nil {
		return nil, err
	}
	if !found {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	return existing, nil
}

// Create stores a new document on behalf of caller.
func (g *Gateway) Create(ctx context.Context, caller domain.Identity, path string, data map[string]any) (map[string]any, error) {
	path, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "document body is required")
	}
	if err := g.authorize(ctx, caller, policy.OpCreate, path, nil, data); err != nil {
		return nil, err
	}
	return g.create(ctx, path, data)
}

// Update replaces an existing document on behalf of caller.
func (g *Gateway) Update(ctx context.Context, caller domain.Identity, path string, data map[string]any) (map[string]any, error) {
	path, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "document body is required")
	}
	existing, found, err := g.load(ctx, path)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, g.missing(ctx, caller, path)
	}
	if err := g.authorize(ctx, caller, policy.OpUpdate, path, existing, data); err != nil {
		return nil, err
	}
	return g.replace(ctx, path, existing, data)
}

// Delete removes a document on behalf of caller.
func (g *Gateway) Delete(ctx context.Context, caller domain.Identity, path string) error {
	path, err := cleanPath(path)
	if err != nil {
		return err
	}
	existing, found, err := g.load(ctx, path)
	if err != nil {
		return err
	}
	if !found {
		return g.missing(ctx, caller, path)
	}
	if err := g.authorize(ctx, caller, policy.OpDelete, path, existing, nil); err != nil {
		return err
	}
	return g.remove(ctx, path)
}

// SystemGet reads a document without a policy check.
func (g *Gateway) SystemGet(ctx context.Context, capability policy.SystemCapability, path string) (map[string]any, bool, error) {
	if !capability.Valid() {
		return nil, false, dErrors.New(dErrors.CodeForbidden, "system capability required")
	}
	path, err := cleanPath(path)
	if err != nil {
		return nil, false, err
	}
	return g.load(ctx, path)
}

// SystemWrite creates or replaces a document without a policy check.
func (g *Gateway) SystemWrite(ctx context.Context, capability policy.SystemCapability, path string, data map[string]any) (map[string]any, error) {
	if !capability.Valid() {
		return nil, dErrors.New(dErrors.CodeForbidden, "system capability required")
	}
	path, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	existing, found, err := g.load(ctx, path)
	if err != nil {
		return nil, err
	}
	g.logger.DebugContext(ctx, "system document write",
		"path", path,
		"service_account", capability.Account(),
	)
	if !found {
		return g.create(ctx, path, data)
	}
	return g.replace(ctx, path, existing, data)
}

// SystemDelete removes a document without a policy check.
func (g *Gateway) SystemDelete(ctx context.Context, capability policy.SystemCapability, path string) error {
	if !capability.Valid() {
		return dErrors.New(dErrors.CodeForbidden, "system capability required")
	}
	path, err := cleanPath(path)
	if err != nil {
		return err
	}
	return g.remove(ctx, path)
}

func (g *Gateway) create(ctx context.Context, path string, data map[string]any) (map[string]any, error) {
	doc := Document{Path: path, Rev: uuid.NewString(), Data: g.stamp(data)}
	if err := g.store.Create(ctx, doc); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "document already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create document")
	}
	g.publish(ctx, audit.Created(doc.Rev, path, doc.Data, g.now()))
	return doc.Data, nil
}

func (g *Gateway) replace(ctx context.Context, path string, before, data map[string]any) (map[string]any, error) {
	doc := Document{Path: path, Rev: uuid.NewString(), Data: g.stamp(data)}
	if err := g.store.Replace(ctx, doc); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "replace document")
	}
	g.publish(ctx, audit.Updated(doc.Rev, path, before, doc.Data, g.now()))
	return doc.Data, nil
}

func (g *Gateway) remove(ctx context.Context, path string) error {
	old, err := g.store.Delete(ctx, path)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete document")
	}
	g.publish(ctx, audit.Deleted(audit.DeleteEventID(old.Rev), path, old.Data, g.now()))
	return nil
}

func (g *Gateway) load(ctx context.Context, path string) (map[string]any, bool, error) {
	doc, err := g.store.Get(ctx, path)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "load document")
	}
	return doc.Data, true, nil
}

// missing reports an absent document as not found to callers allowed to
// read the path, and as the read denial to everyone else.
func (g *Gateway) missing(ctx context.Context, caller domain.Identity, path string) error {
	if err := g.authorize(ctx, caller, policy.OpRead, path, nil, nil); err != nil {
		return err
	}
	return dErrors.New(dErrors.CodeNotFound, "document not found")
}

func (g *Gateway) authorize(ctx context.Context, caller domain.Identity, op policy.Op, path string, existing, incoming map[string]any) error {
	decision := g.authz.Authorize(policy.Request{
		Identity: caller,
		Op:       op,
		Path:     path,
		Existing: existing,
		Incoming: incoming,
	})
	if decision.Allowed {
		return nil
	}
	policyDenials.WithLabelValues(string(op)).Inc()
	g.logger.InfoContext(ctx, "document operation denied",
		"op", op,
		"path", path,
		"uid", caller.UID,
		"reason", decision.Reason,
	)
	if !caller.Authenticated() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return dErrors.New(dErrors.CodeForbidden, "permission denied")
}

// publish runs after the commit. A failure leaves the write in place with no
// audit entry; it is logged and counted, not returned.
func (g *Gateway) publish(ctx context.Context, ev audit.ChangeEvent) {
	if err := g.publisher.Publish(ctx, ev); err != nil {
		unpublishedEvents.Inc()
		g.logger.ErrorContext(ctx, "failed to publish change event",
			"error", err,
			"event_id", ev.EventID,
			"path", ev.Path,
		)
	}
}

func (g *Gateway) stamp(data map[string]any) map[string]any {
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out[UpdatedAtField] = g.now().UTC().Format(time.RFC3339Nano)
	return out
}

func cleanPath(path string) (string, error) {
	clean := docpath.Clean(path)
	if clean == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid document path")
	}
	return clean, nil
}
