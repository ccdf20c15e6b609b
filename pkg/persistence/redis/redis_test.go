package redis_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/gragraf/pkg/models"
	"github.com/dukex/gragraf/pkg/persistence"
	redisstore "github.com/dukex/gragraf/pkg/persistence/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) (*redisstore.SessionStore, context.Context) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Redis container test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	store, err := redisstore.NewSessionStore(ctx, slog.Default(), fmt.Sprintf("redis://%s:%s/0", host, port.Port()),
		redisstore.WithTTL(time.Hour))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close(ctx)
		_ = container.Terminate(ctx)
	})

	return store, ctx
}

func TestSessionStore_RoundTrip(t *testing.T) {
	store, ctx := setupRedis(t)

	require.NoError(t, store.HealthCheck(ctx))

	session := models.NewRunSession("thread_r1", 2, time.Now().UTC())
	session.Status = models.RunStatusWaitingForApproval

	err := store.SaveSession(ctx, &persistence.SessionRecord{
		Session:   session,
		Interrupt: &models.InterruptRequest{ThreadID: "thread_r1", NodeID: "gate", RequireComment: true},
	})
	require.NoError(t, err)

	got, err := store.SessionByThreadID(ctx, "thread_r1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusWaitingForApproval, got.Session.Status)
	require.NotNil(t, got.Interrupt)
	assert.Equal(t, "gate", got.Interrupt.NodeID)

	require.NoError(t, store.DeleteSession(ctx, "thread_r1"))

	_, err = store.SessionByThreadID(ctx, "thread_r1")
	assert.True(t, persistence.IsSessionNotFound(err))
}

func TestSessionStore_InvalidURL(t *testing.T) {
	_, err := redisstore.NewSessionStore(context.Background(), slog.Default(), "http://nope")
	assert.Error(t, err)
}
