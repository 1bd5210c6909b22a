package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardedTaskSkipsOverlappingRuns(t *testing.T) {
	var started atomic.Int32
	release := make(chan struct{})
	task := newGuardedTask("test", zerolog.Nop(), func(ctx context.Context) {
		started.Add(1)
		<-release
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		task.run(context.Background())
	}()

	// Wait until the first run holds the guard, then fire overlapping ticks.
	require.Eventually(t, func() bool { return started.Load() == 1 }, time.Second, time.Millisecond)
	task.run(context.Background())
	task.run(context.Background())
	assert.Equal(t, int32(1), started.Load())

	close(release)
	wg.Wait()

	// Guard released: the next tick runs again.
	task.run(context.Background())
	assert.Equal(t, int32(2), started.Load())
}

func TestGuardedTaskRecoversFromPanic(t *testing.T) {
	calls := 0
	task := newGuardedTask("test", zerolog.Nop(), func(ctx context.Context) {
		calls++
		panic("boom")
	})

	assert.NotPanics(t, func() { task.run(context.Background()) })

	// The guard must be released after a panic.
	assert.NotPanics(t, func() { task.run(context.Background()) })
	assert.Equal(t, 2, calls)
}

func TestSchedulerStartRunsImmediateGenerationPass(t *testing.T) {
	var generations atomic.Int32
	s, err := New(Config{GenerationTick: time.Hour, DispatchTick: time.Hour, APITick: time.Hour},
		func(ctx context.Context) error {
			generations.Add(1)
			return nil
		},
		func(ctx context.Context) {},
		func(ctx context.Context) {},
		zerolog.Nop(),
	)
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return generations.Load() == 1 }, time.Second, time.Millisecond)

	s.KickGeneration()
	assert.Eventually(t, func() bool { return generations.Load() == 2 }, time.Second, time.Millisecond)
}
