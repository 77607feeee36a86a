package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedDelayTrigger_RunsRepeatedly(t *testing.T) {
	var runs atomic.Int64
	trigger := NewFixedDelayTrigger(FixedDelayConfig{
		Name:         "test",
		InitialDelay: time.Millisecond,
		Delay:        5 * time.Millisecond,
	}, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, newTestLogger())

	require.NoError(t, trigger.Start(context.Background()))
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, time.Millisecond)
	require.NoError(t, trigger.Stop(context.Background()))
}

func TestFixedDelayTrigger_NeverOverlaps(t *testing.T) {
	var inFlight, maxInFlight, runs atomic.Int64
	trigger := NewFixedDelayTrigger(FixedDelayConfig{
		Name:         "slow",
		InitialDelay: 0,
		Delay:        time.Millisecond,
	}, func(ctx context.Context) error {
		n := inFlight.Add(1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		runs.Add(1)
		return nil
	}, newTestLogger())

	require.NoError(t, trigger.Start(context.Background()))
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, time.Millisecond)
	require.NoError(t, trigger.Stop(context.Background()))
	assert.Equal(t, int64(1), maxInFlight.Load())
}

func TestFixedDelayTrigger_WaitsInitialDelay(t *testing.T) {
	var runs atomic.Int64
	trigger := NewFixedDelayTrigger(FixedDelayConfig{
		Name:         "warmup",
		InitialDelay: time.Hour,
		Delay:        time.Hour,
	}, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, newTestLogger())

	require.NoError(t, trigger.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, trigger.Stop(context.Background()))
	assert.Zero(t, runs.Load())
}

func TestFixedDelayTrigger_RejectsZeroDelay(t *testing.T) {
	trigger := NewFixedDelayTrigger(FixedDelayConfig{Name: "bad"}, func(ctx context.Context) error { return nil }, newTestLogger())
	assert.ErrorIs(t, trigger.Start(context.Background()), ErrInvalidConfig)
}
