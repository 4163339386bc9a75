package syncengine

import (
	"context"
	"time"

	"github.com/entanglement/entanglement/internal/corekit"
)

// MaxAttempts bounds retries for a single chunk upload (spec §7: "chunk
// upload retries a fixed number of times with exponential backoff on
// transient errors").
const MaxAttempts = 5

// InitialBackoff is the delay before the first retry; each subsequent
// attempt doubles it (1s, 2s, 4s, ...).
const InitialBackoff = 1 * time.Second

// withRetry runs op, retrying with exponential backoff while it fails with
// a transient error. A non-transient error surfaces immediately.
func withRetry(ctx context.Context, op func() error) error {
	backoff := InitialBackoff
	var err error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !corekit.IsTransient(err) {
			return err
		}
		if attempt == MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
