// Package postgresql provides a PostgreSQL session store.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/gragraf/pkg/models"
	"github.com/dukex/gragraf/pkg/persistence"
	"github.com/dukex/gragraf/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// SessionStore implements persistence.SessionStore for PostgreSQL.
type SessionStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSessionStore connects to databaseURL and migrates the schema.
func NewSessionStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*SessionStore, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger = logger.With("module", "postgres_session_store")

	err = sqlbase.NewMigrationManager(logger, database, migrations()).RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SessionStore{db: database, logger: logger}, nil
}

// Close closes the database connection.
func (s *SessionStore) Close(_ context.Context) error {
	if s.db != nil {
		err := s.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SessionStore) HealthCheck(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// SaveSession upserts the snapshot of the record's thread.
func (s *SessionStore) SaveSession(ctx context.Context, record *persistence.SessionRecord) error {
	threadID := record.ThreadID()

	err := persistence.ValidateThreadID(threadID)
	if err != nil {
		return persistence.NewSessionError("Save", threadID, err)
	}

	sessionJSON, err := json.Marshal(record.Session)
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", threadID, err)
	}

	var interruptJSON []byte

	if record.Interrupt != nil {
		interruptJSON, err = json.Marshal(record.Interrupt)
		if err != nil {
			return fmt.Errorf("failed to marshal interrupt of session %s: %w", threadID, err)
		}
	}

	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO run_sessions (thread_id, status, session, interrupt, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (thread_id) DO UPDATE SET
			status = EXCLUDED.status,
			session = EXCLUDED.session,
			interrupt = EXCLUDED.interrupt,
			updated_at = EXCLUDED.updated_at`

	_, err = s.db.ExecContext(ctx, query, threadID, string(record.Session.Status), sessionJSON, nullableJSON(interruptJSON), updatedAt)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to save session", "thread_id", threadID, "error", err)

		return persistence.NewSessionError("Save", threadID, err)
	}

	return nil
}

// SessionByThreadID loads the snapshot of threadID.
func (s *SessionStore) SessionByThreadID(ctx context.Context, threadID string) (*persistence.SessionRecord, error) {
	query := `SELECT session, interrupt, updated_at FROM run_sessions WHERE thread_id = $1`

	var (
		sessionJSON   []byte
		interruptJSON []byte
		record        persistence.SessionRecord
	)

	err := s.db.QueryRowContext(ctx, query, threadID).Scan(&sessionJSON, &interruptJSON, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewSessionError("Get", threadID, persistence.ErrSessionNotFound)
		}

		return nil, persistence.NewSessionError("Get", threadID, err)
	}

	record.Session = &models.RunSession{}

	err = json.Unmarshal(sessionJSON, record.Session)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", threadID, err)
	}

	if len(interruptJSON) > 0 {
		record.Interrupt = &models.InterruptRequest{}

		err = json.Unmarshal(interruptJSON, record.Interrupt)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal interrupt of session %s: %w", threadID, err)
		}
	}

	return &record, nil
}

// DeleteSession removes the snapshot of threadID.
func (s *SessionStore) DeleteSession(ctx context.Context, threadID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM run_sessions WHERE thread_id = $1`, threadID)
	if err != nil {
		return persistence.NewSessionError("Delete", threadID, err)
	}

	return nil
}

func nullableJSON(data []byte) any {
	if data == nil {
		return nil
	}

	return data
}
