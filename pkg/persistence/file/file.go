// Package file provides a file-based session store, one JSON document per thread.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dukex/gragraf/pkg/persistence"
)

const sessionsDir = "sessions"

// SessionStore implements persistence.SessionStore on the file system.
type SessionStore struct {
	root string
}

// NewSessionStore creates a store rooted at root. A file:// prefix is accepted.
func NewSessionStore(root string) *SessionStore {
	return &SessionStore{root: strings.Replace(root, "file://", "", 1)}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (s *SessionStore) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the root directory exists.
func (s *SessionStore) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// SaveSession writes the record, replacing any previous snapshot of the thread.
func (s *SessionStore) SaveSession(_ context.Context, record *persistence.SessionRecord) error {
	threadID := record.ThreadID()

	err := persistence.ValidateThreadID(threadID)
	if err != nil {
		return persistence.NewSessionError("Save", threadID, err)
	}

	err = os.MkdirAll(path.Join(s.root, sessionsDir), 0750)
	if err != nil {
		return fmt.Errorf("failed to create sessions directory: %w", err)
	}

	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", threadID, err)
	}

	// Write then rename so a reader never sees a half-written snapshot.
	tmp := s.sessionPath(threadID) + ".tmp"

	err = os.WriteFile(tmp, data, 0600)
	if err != nil {
		return persistence.NewSessionError("Save", threadID, err)
	}

	err = os.Rename(tmp, s.sessionPath(threadID))
	if err != nil {
		return persistence.NewSessionError("Save", threadID, err)
	}

	return nil
}

// SessionByThreadID reads the latest snapshot of threadID.
func (s *SessionStore) SessionByThreadID(_ context.Context, threadID string) (*persistence.SessionRecord, error) {
	err := persistence.ValidateThreadID(threadID)
	if err != nil {
		return nil, persistence.NewSessionError("Get", threadID, err)
	}

	body, err := os.ReadFile(s.sessionPath(threadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewSessionError("Get", threadID, persistence.ErrSessionNotFound)
		}

		return nil, fmt.Errorf("failed to fetch session %s: %w", threadID, err)
	}

	var record persistence.SessionRecord

	err = json.Unmarshal(body, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", threadID, err)
	}

	return &record, nil
}

// DeleteSession removes the snapshot of threadID. Missing snapshots are not an error.
func (s *SessionStore) DeleteSession(_ context.Context, threadID string) error {
	err := persistence.ValidateThreadID(threadID)
	if err != nil {
		return persistence.NewSessionError("Delete", threadID, err)
	}

	err = os.Remove(s.sessionPath(threadID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session %s: %w", threadID, err)
	}

	return nil
}

func (s *SessionStore) sessionPath(threadID string) string {
	return filepath.Clean(path.Join(s.root, sessionsDir, threadID+".json"))
}
