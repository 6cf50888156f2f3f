//go:build integration

package channels

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisMarker(t *testing.T) {
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	defer client.Close()
	marker := NewRedisMarker(client, time.Hour)

	_, seen, err := marker.Seen(ctx, "key-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, marker.Mark(ctx, "key-1", "ref-1"))
	require.NoError(t, marker.Mark(ctx, "key-1", "ref-2"))
	ref, seen, err := marker.Seen(ctx, "key-1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, "ref-1", ref)

	ttl, err := client.TTL(ctx, "courseflow:dispatched:key-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Minute)
}
