package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/gragraf/pkg/models"
	"github.com/dukex/gragraf/pkg/persistence"
	"github.com/dukex/gragraf/pkg/persistence/postgresql"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"run_sessions", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.SessionStore, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("gragraf_test"),
			postgres.WithUsername("gragraf"),
			postgres.WithPassword("gragraf"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewSessionStore(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = store.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return store, ctx, databaseURL
}

func TestNewSessionStore_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() { _ = db.Close() }()

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestSessionStore_SaveGetDelete(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	session := models.NewRunSession("thread_1", 2, time.Now().UTC())
	session.Status = models.RunStatusWaitingForApproval
	session.NodeResults["a"] = models.NodeExecutionRecord{ID: "a", Status: models.NodeStatusCompleted, Result: "ok"}
	session.CompletedNodes = 1

	record := &persistence.SessionRecord{
		Session:   session,
		Interrupt: &models.InterruptRequest{ThreadID: "thread_1", NodeID: "b", Message: "approve?"},
	}

	require.NoError(t, store.SaveSession(ctx, record))

	got, err := store.SessionByThreadID(ctx, "thread_1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusWaitingForApproval, got.Session.Status)
	assert.Equal(t, 1, got.Session.CompletedNodes)
	require.NotNil(t, got.Interrupt)
	assert.Equal(t, "b", got.Interrupt.NodeID)

	session.Status = models.RunStatusCompleted
	record.Interrupt = nil
	require.NoError(t, store.SaveSession(ctx, record))

	got, err = store.SessionByThreadID(ctx, "thread_1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, got.Session.Status)
	assert.Nil(t, got.Interrupt)

	require.NoError(t, store.DeleteSession(ctx, "thread_1"))

	_, err = store.SessionByThreadID(ctx, "thread_1")
	assert.True(t, persistence.IsSessionNotFound(err))
}

func TestSessionStore_HealthCheck(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	assert.NoError(t, store.HealthCheck(ctx))
}
