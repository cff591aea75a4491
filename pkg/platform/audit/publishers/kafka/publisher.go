// Package kafka mirrors persisted audit entries onto a Kafka topic for
// downstream consumers (SIEM, compliance archive). The audit store stays the
// source of truth: a failed mirror never fails the audit write.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "retireplan/pkg/platform/audit"
)

// DefaultTopic carries mirrored audit entries.
const DefaultTopic = "audit-logs"

// ErrCircuitOpen is returned while the broker is considered unhealthy.
var ErrCircuitOpen = errors.New("audit mirror circuit open")

var (
	mirrored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retireplan_audit_mirror_published_total",
		Help: "Audit entries mirrored to Kafka",
	})
	mirrorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retireplan_audit_mirror_failures_total",
		Help: "Audit entries that could not be mirrored to Kafka",
	})
	mirrorDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retireplan_audit_mirror_dropped_total",
		Help: "Audit entries skipped because the mirror circuit was open",
	})
)

// Producer is the kgo.Client surface the mirror needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Publisher writes entries as JSON records keyed by document path, so all
// entries for one document land on one partition in append order.
type Publisher struct {
	producer Producer
	topic    string
	logger   *slog.Logger
	breaker  *breaker
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithTopic overrides DefaultTopic.
func WithTopic(topic string) Option {
	return func(p *Publisher) {
		if topic != "" {
			p.topic = topic
		}
	}
}

// WithLogger sets a logger for circuit transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithCircuitBreaker tunes the failure threshold and open duration.
func WithCircuitBreaker(threshold int, cooldown time.Duration) Option {
	return func(p *Publisher) {
		p.breaker = newBreaker(threshold, cooldown)
	}
}

func New(producer Producer, opts ...Option) *Publisher {
	p := &Publisher{
		producer: producer,
		topic:    DefaultTopic,
		logger:   slog.Default(),
		breaker:  newBreaker(0, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Mirror publishes one entry synchronously.
func (p *Publisher) Mirror(ctx context.Context, entry audit.Entry) error {
	if !p.breaker.allow() {
		mirrorDropped.Inc()
		return ErrCircuitOpen
	}

	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(entry.DocumentPath),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "entry-id", Value: []byte(entry.ID)},
			{Key: "collection", Value: []byte(entry.Collection)},
			{Key: "action", Value: []byte(entry.Action)},
		},
	}
	if err := p.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		mirrorFailures.Inc()
		if p.breaker.failure() {
			p.logger.WarnContext(ctx, "audit mirror circuit opened",
				"topic", p.topic,
				"error", err,
			)
		}
		return fmt.Errorf("produce audit entry: %w", err)
	}
	p.breaker.success()
	mirrored.Inc()
	return nil
}
