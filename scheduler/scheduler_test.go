package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aadithya-v/sitecookie/scheduler"
)

func TestEvery_RunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- scheduler.Every(ctx, 10*time.Millisecond, "count", func(context.Context) error {
			if runs.Add(1) >= 3 {
				cancel()
			}
			return nil
		}, zerolog.Nop())
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Every did not return after cancellation")
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}

func TestEvery_ContinuesAfterFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- scheduler.Every(ctx, 5*time.Millisecond, "flaky", func(context.Context) error {
			n := runs.Add(1)
			if n == 1 {
				return errors.New("boom")
			}
			if n == 2 {
				panic("worse")
			}
			cancel()
			return nil
		}, zerolog.Nop())
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Every did not return")
	}
	assert.Equal(t, int32(3), runs.Load())
}

func TestEvery_InvalidInterval(t *testing.T) {
	err := scheduler.Every(context.Background(), 0, "never", func(context.Context) error { return nil }, zerolog.Nop())
	require.ErrorIs(t, err, scheduler.ErrInvalidInterval)
}

func TestRunOnce(t *testing.T) {
	boom := errors.New("boom")

	err := scheduler.RunOnce(context.Background(), "ok", func(context.Context) error { return nil }, zerolog.Nop())
	require.NoError(t, err)

	err = scheduler.RunOnce(context.Background(), "fail", func(context.Context) error { return boom }, zerolog.Nop())
	require.ErrorIs(t, err, boom)

	err = scheduler.RunOnce(context.Background(), "panic", func(context.Context) error { panic("x") }, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}
