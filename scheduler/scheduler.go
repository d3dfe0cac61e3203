// Package scheduler runs periodic maintenance jobs such as the hourly usage
// log flush.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrInvalidInterval is returned by Every for a non-positive interval.
var ErrInvalidInterval = errors.New("scheduler: interval must be positive")

// Job is one unit of periodic work.
type Job func(ctx context.Context) error

// Every runs job once per interval until ctx is done, then returns ctx.Err().
// Runs never overlap: a slow run delays the next tick instead of stacking.
// Job errors and panics are logged and do not stop the loop.
func Every(ctx context.Context, interval time.Duration, name string, job Job, log zerolog.Logger) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Str("job", name).Dur("interval", interval).Msg("periodic job started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("job", name).Msg("periodic job stopped")
			return ctx.Err()
		case <-ticker.C:
			_ = RunOnce(ctx, name, job, log)
		}
	}
}

// RunOnce runs job a single time with logging, for manual triggers.
func RunOnce(ctx context.Context, name string, job Job, log zerolog.Logger) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: job %s panicked: %v", name, r)
		}
		if err != nil {
			log.Error().Err(err).Str("job", name).Dur("took", time.Since(start)).Msg("periodic job failed")
			return
		}
		log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("periodic job finished")
	}()

	return job(ctx)
}
