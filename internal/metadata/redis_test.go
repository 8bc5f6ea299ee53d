package metadata_test

import (
	"context"
	"testing"
	"time"

	"github.com/cuongbtq/docking-be/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis spins up a Redis container and returns a connected RedisCache
func setupRedis(t *testing.T) *metadata.RedisCache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rc, err := metadata.NewRedisCache("redis://" + host + ":" + port.Port())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	return rc
}

func TestRedisCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Ping(ctx))

	_, found, err := rc.Get(ctx, metadata.CandidateKey("CAND-1"))
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, rc.Set(ctx, metadata.CandidateKey("CAND-1"), "Lead A", time.Minute))
	val, found, err := rc.Get(ctx, metadata.CandidateKey("CAND-1"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Lead A", val)

	// empty names round-trip as found
	require.NoError(t, rc.Set(ctx, metadata.TargetKey("Q99999"), "", time.Minute))
	val, found, err = rc.Get(ctx, metadata.TargetKey("Q99999"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, val)
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := metadata.NewRedisCache("not-a-url")
	assert.Error(t, err)
}
