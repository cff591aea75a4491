// Package feed carries change events from the document write path to the
// audit dispatcher. All transports deliver at-least-once and keep order
// only per document path.
package feed

import (
	"context"

	"retireplan/internal/audit"
)

// Handler consumes change events. *audit.Dispatcher implements it.
type Handler interface {
	Handle(ctx context.Context, ev audit.ChangeEvent) error
}

// Direct publishes by calling the handler synchronously.
type Direct struct {
	handler Handler
}

func NewDirect(handler Handler) *Direct {
	return &Direct{handler: handler}
}

func (d *Direct) Publish(ctx context.Context, ev audit.ChangeEvent) error {
	return d.handler.Handle(ctx, ev)
}

// Discard drops events. Used when a changefeed watcher observes the store
// directly, so the write path must not publish a second copy.
type Discard struct{}

func (Discard) Publish(context.Context, audit.ChangeEvent) error { return nil }
