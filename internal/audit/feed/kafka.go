package feed

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

	"retireplan/internal/audit"
	dErrors "retireplan/pkg/domain-errors"
)

// DefaultTopic carries change events.
const DefaultTopic = "document-changes"

var (
	kafkaHandled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retireplan_feed_kafka_handled_total",
		Help: "Change event records handled and committed",
	})
	kafkaRewinds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retireplan_feed_kafka_rewinds_total",
		Help: "Partitions rewound for redelivery after a handler failure",
	})
	kafkaPoison = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retireplan_feed_kafka_malformed_total",
		Help: "Change event records skipped because they were malformed",
	})
)

// Producer is the kgo.Client surface the publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher writes change events keyed by path, so one document's
// events share a partition.
type KafkaPublisher struct {
	producer Producer
	topic    string
}

func NewKafkaPublisher(producer Producer, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev audit.ChangeEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.Path),
		Value: value,
	}
	if err := p.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce change event: %w", err)
	}
	return nil
}

// Consumer is the kgo.Client surface the consumer needs. The client must be
// built with kgo.ConsumerGroup, kgo.ConsumeTopics and
// kgo.AutoCommitMarks so only marked records are committed.
type Consumer interface {
	PollFetches(ctx context.Context) kgo.Fetches
	MarkCommitRecords(rs ...*kgo.Record)
	CommitMarkedOffsets(ctx context.Context) error
	SetOffsets(offsets map[string]map[int32]kgo.EpochOffset)
}

// KafkaConsumer feeds records to a Handler. A record is marked for commit
// only after the handler succeeds; on failure the partition is rewound to
// that record and the rest of its batch is skipped, which redelivers it on
// a later poll.
type KafkaConsumer struct {
	client  Consumer
	handler Handler
	logger  *slog.Logger
	backoff time.Duration
}

// ConsumerOption configures a KafkaConsumer.
type ConsumerOption func(*KafkaConsumer)

func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *KafkaConsumer) {
		c.logger = logger
	}
}

// WithRetryBackoff sets the pause after a handler failure.
func WithRetryBackoff(d time.Duration) ConsumerOption {
	return func(c *KafkaConsumer) {
		c.backoff = d
	}
}

func NewKafkaConsumer(client Consumer, handler Handler, opts ...ConsumerOption) *KafkaConsumer {
	c := &KafkaConsumer{
		client:  client,
		handler: handler,
		logger:  slog.Default(),
		backoff: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run polls until ctx is cancelled or the client is closed.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		for _, fe := range fetches.Errors() {
			if errors.Is(fe.Err, context.Canceled) {
				return ctx.Err()
			}
			c.logger.WarnContext(ctx, "kafka fetch error",
				"topic", fe.Topic,
				"partition", fe.Partition,
				"error", fe.Err,
			)
		}

		failed := c.process(ctx, fetches)
		if err := c.client.CommitMarkedOffsets(ctx); err != nil && ctx.Err() == nil {
			c.logger.WarnContext(ctx, "kafka commit failed", "error", err)
		}
		if failed {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff):
			}
		}
	}
}

// process handles one poll's records and reports whether any partition was
// rewound.
func (c *KafkaConsumer) process(ctx context.Context, fetches kgo.Fetches) bool {
	failed := false
	fetches.EachPartition(func(p kgo.FetchTopicPartition) {
		for _, rec := range p.Records {
			var ev audit.ChangeEvent
			if err := json.Unmarshal(rec.Value, &ev); err != nil {
				kafkaPoison.Inc()
				c.logger.ErrorContext(ctx, "skipping undecodable change event",
					"topic", rec.Topic,
					"partition", rec.Partition,
					"offset", rec.Offset,
					"error", err,
				)
				c.client.MarkCommitRecords(rec)
				continue
			}
			if err := c.handler.Handle(ctx, ev); err != nil {
				if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
					kafkaPoison.Inc()
					c.logger.ErrorContext(ctx, "skipping invalid change event",
						"offset", rec.Offset,
						"error", err,
					)
					c.client.MarkCommitRecords(rec)
					continue
				}
				kafkaRewinds.Inc()
				c.logger.WarnContext(ctx, "change event handling failed; will redeliver",
					"event_id", ev.EventID,
					"path", ev.Path,
					"offset", rec.Offset,
					"error", err,
				)
				c.client.SetOffsets(map[string]map[int32]kgo.EpochOffset{
					rec.Topic: {rec.Partition: {Epoch: rec.LeaderEpoch, Offset: rec.Offset}},
				})
				failed = true
				return
			}
			c.client.MarkCommitRecords(rec)
			kafkaHandled.Inc()
		}
	})
	return failed
}
