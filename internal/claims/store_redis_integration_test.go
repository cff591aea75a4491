//go:build integration

package claims

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retireplan/pkg/domain"
	"retireplan/pkg/platform/sentinel"
	"retireplan/pkg/testutil/containers"
)

func TestRedisStore(t *testing.T) {
	client := containers.NewRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	_, err := store.Get(ctx, "u-1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	require.NoError(t, store.Set(ctx, "u-1", Claim{Role: domain.RoleAdvisor}))
	require.NoError(t, client.HSet(ctx, claimKeyPrefix+"u-1", "legacy", "x").Err())
	require.NoError(t, store.Set(ctx, "u-1", Claim{Role: domain.RoleMaster}))

	claim, err := store.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleMaster, claim.Role)

	fields, err := client.HGetAll(ctx, claimKeyPrefix+"u-1").Result()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"role": "master"}, fields, "set replaces the whole claim")
}
