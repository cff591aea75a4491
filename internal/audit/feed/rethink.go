package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	r "gopkg.in/rethinkdb/rethinkdb-go.v6"

	"retireplan/internal/audit"
	auditlog "retireplan/pkg/platform/audit"
)

var rethinkDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "retireplan_feed_rethink_dropped_total",
	Help: "Changefeed events abandoned after exhausting handler retries",
})

// rethinkRow mirrors the documents table row.
type rethinkRow struct {
	ID   string         `rethinkdb:"id"`
	Rev  string         `rethinkdb:"rev"`
	Data map[string]any `rethinkdb:"data"`
}

type rethinkChange struct {
	OldVal *rethinkRow `rethinkdb:"old_val"`
	NewVal *rethinkRow `rethinkdb:"new_val"`
}

// RethinkWatcher turns a RethinkDB changefeed on the documents table into
// change events. A changefeed cannot replay, so a failing event is retried
// in place a bounded number of times before it is dropped and counted.
type RethinkWatcher struct {
	session  r.QueryExecutor
	db       string
	table    string
	handler  Handler
	logger   *slog.Logger
	attempts int
	backoff  time.Duration
}

// WatcherOption configures a RethinkWatcher.
type WatcherOption func(*RethinkWatcher)

func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *RethinkWatcher) {
		w.logger = logger
	}
}

// WithWatcherRetry sets the per-event attempt budget and pause.
func WithWatcherRetry(attempts int, backoff time.Duration) WatcherOption {
	return func(w *RethinkWatcher) {
		if attempts > 0 {
			w.attempts = attempts
		}
		w.backoff = backoff
	}
}

func NewRethinkWatcher(session r.QueryExecutor, db, table string, handler Handler, opts ...WatcherOption) *RethinkWatcher {
	w := &RethinkWatcher{
		session:  session,
		db:       db,
		table:    table,
		handler:  handler,
		logger:   slog.Default(),
		attempts: 5,
		backoff:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run follows the changefeed until ctx is cancelled or the cursor fails.
func (w *RethinkWatcher) Run(ctx context.Context) error {
	cur, err := r.DB(w.db).Table(w.table).
		Changes(r.ChangesOpts{IncludeInitial: false}).
		Run(w.session, r.RunOpts{Context: ctx})
	if err != nil {
		return fmt.Errorf("open changefeed: %w", err)
	}
	go func() {
		<-ctx.Done()
		_ = cur.Close()
	}()

	var change rethinkChange
	for cur.Next(&change) {
		if ev, ok := eventFromChange(change, time.Now()); ok {
			w.deliver(ctx, ev)
		}
		change = rethinkChange{}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("changefeed: %w", err)
	}
	return nil
}

func (w *RethinkWatcher) deliver(ctx context.Context, ev audit.ChangeEvent) {
	for attempt := 1; ; attempt++ {
		err := w.handler.Handle(ctx, ev)
		if err == nil {
			return
		}
		if attempt >= w.attempts || ctx.Err() != nil {
			rethinkDropped.Inc()
			w.logger.ErrorContext(ctx, "dropping change event",
				"event_id", ev.EventID,
				"path", ev.Path,
				"attempts", attempt,
				"error", err,
			)
			return
		}
		select {
		case <-ctx.Done():
		case <-time.After(w.backoff):
		}
	}
}

// eventFromChange converts one changefeed row. Delete events reuse the
// removed revision so both write paths derive the same event ID.
func eventFromChange(c rethinkChange, at time.Time) (audit.ChangeEvent, bool) {
	switch {
	case c.OldVal == nil && c.NewVal != nil:
		return audit.Created(c.NewVal.Rev, c.NewVal.ID, auditlog.Snapshot(c.NewVal.Data), at), true
	case c.OldVal != nil && c.NewVal != nil:
		return audit.Updated(c.NewVal.Rev, c.NewVal.ID, auditlog.Snapshot(c.OldVal.Data), auditlog.Snapshot(c.NewVal.Data), at), true
	case c.OldVal != nil && c.NewVal == nil:
		return audit.Deleted(audit.DeleteEventID(c.OldVal.Rev), c.OldVal.ID, auditlog.Snapshot(c.OldVal.Data), at), true
	default:
		return audit.ChangeEvent{}, false
	}
}
