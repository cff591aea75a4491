//go:build integration

package kafka

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kadm"

	"retireplan/internal/platform/config"
	"retireplan/pkg/testutil/containers"
)

func TestEnsureTopicsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cfg := config.KafkaConfig{
		Brokers:     []string{containers.NewKafka(t)},
		ChangeTopic: "document-changes",
		AuditTopic:  "audit-logs",
		Partitions:  3,
		Replication: 1,
	}
	client, err := NewProducer(cfg)
	require.NoError(t, err)
	defer client.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, EnsureTopics(ctx, client, cfg, logger, cfg.ChangeTopic, cfg.AuditTopic))
	require.NoError(t, EnsureTopics(ctx, client, cfg, logger, cfg.ChangeTopic, cfg.AuditTopic))

	details, err := kadm.NewClient(client).ListTopics(ctx, cfg.ChangeTopic)
	require.NoError(t, err)
	require.Len(t, details[cfg.ChangeTopic].Partitions, 3)
}
