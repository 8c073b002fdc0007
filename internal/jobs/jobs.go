// Package jobs is a sqlite-backed background job queue with retries and
// a dead-letter table for work that keeps failing.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Job represents one unit of queued background work. Payload is an opaque
// JSON document that the handler registered for Type knows how to read.
type Job struct {
	ID          int64           `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Priority    int             `json:"priority"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	NextTryAt   *time.Time      `json:"next_try_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Created     time.Time       `json:"created"`
	Updated     time.Time       `json:"updated"`
}

// Handler is the function that processes a job. A nil return marks the job
// done; an error schedules a retry until MaxAttempts is exhausted.
type Handler func(ctx context.Context, j *Job) error

// ErrMaxAttempts indicates the job ran out of retries
var ErrMaxAttempts = errors.New("max attempts reached")

// BackoffDuration returns exponential backoff duration for attempt n
func BackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	// simple exponential: base 2^attempt seconds, capped
	d := time.Duration(1<<uint(attempt)) * time.Second
	max := 5 * time.Minute
	if d > max {
		return max
	}
	return d
}
