package claims

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"retireplan/pkg/domain"
	"retireplan/pkg/platform/sentinel"
)

var claimLookupDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "retireplan_claim_lookup_duration_ms",
	Help:    "Latency of role claim lookups in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

const claimKeyPrefix = "claims:"

// RedisStore keeps each claim in a hash at claims:{uid}.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Set replaces the hash in one MULTI so no reader sees a merged claim.
func (s *RedisStore) Set(ctx context.Context, uid string, claim Claim) error {
	key := claimKeyPrefix + uid
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "role", string(claim.Role))
		return nil
	})
	if err != nil {
		return fmt.Errorf("set claim %s: %w", uid, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, uid string) (Claim, error) {
	start := time.Now()
	defer func() {
		claimLookupDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	fields, err := s.client.HGetAll(ctx, claimKeyPrefix+uid).Result()
	if err != nil {
		return Claim{}, fmt.Errorf("get claim %s: %w: %w", uid, sentinel.ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return Claim{}, fmt.Errorf("claim %s: %w", uid, sentinel.ErrNotFound)
	}
	return Claim{Role: domain.Role(fields["role"])}, nil
}
