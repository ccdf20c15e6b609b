package run

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NewThreadID builds a thread id from wall-clock time and a random suffix. Uniqueness is
// best-effort; the engine performs no check of its own.
func NewThreadID(now time.Time) string {
	return "thread_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + uuid.New().String()[:8]
}
