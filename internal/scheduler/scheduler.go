// Package scheduler runs the three periodic tasks of the engine on one
// process: generation replenishment, campaign dispatch, and the API queue.
// Each task is wrapped in a non-reentrant guard so a slow invocation makes
// the next timer fire a no-op; different tasks still interleave freely.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	generation *guardedTask
}

// Config carries the tick intervals for the three tasks.
type Config struct {
	GenerationTick time.Duration
	DispatchTick   time.Duration
	APITick        time.Duration
}

func New(
	cfg Config,
	generationRun func(context.Context) error,
	dispatchTick func(context.Context),
	apiTick func(context.Context),
	log zerolog.Logger,
) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron.New(),
		log:    log.With().Str("component", "scheduler").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}

	s.generation = newGuardedTask("generation", s.log, func(ctx context.Context) {
		if err := generationRun(ctx); err != nil {
			s.log.Error().Err(err).Msg("generation pass failed")
		}
	})
	dispatch := newGuardedTask("dispatch", s.log, dispatchTick)
	apiQueue := newGuardedTask("api_queue", s.log, apiTick)

	entries := []struct {
		spec string
		task *guardedTask
	}{
		{fmt.Sprintf("@every %s", cfg.GenerationTick), s.generation},
		{fmt.Sprintf("@every %s", cfg.DispatchTick), dispatch},
		{fmt.Sprintf("@every %s", cfg.APITick), apiQueue},
	}
	for _, e := range entries {
		task := e.task
		if _, err := s.cron.AddFunc(e.spec, func() { task.run(s.ctx) }); err != nil {
			cancel()
			return nil, fmt.Errorf("schedule %s: %w", task.name, err)
		}
	}
	return s, nil
}

// Start launches the cron loop and kicks an immediate generation pass so a
// freshly created campaign does not wait a full replenishment interval.
func (s *Scheduler) Start() {
	s.cron.Start()
	go s.generation.run(s.ctx)
	s.log.Info().Msg("scheduler started")
}

// KickGeneration requests an out-of-band generation pass (campaign start).
// Skipped silently if a pass is already running.
func (s *Scheduler) KickGeneration() {
	go s.generation.run(s.ctx)
}

// Stop cancels the task context and waits for in-flight ticks to drain.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// guardedTask drops overlapping invocations via a compare-and-swap flag.
// This is cooperative self-exclusion for one task, not a general lock.
type guardedTask struct {
	name    string
	running atomic.Bool
	fn      func(context.Context)
	log     zerolog.Logger
}

func newGuardedTask(name string, log zerolog.Logger, fn func(context.Context)) *guardedTask {
	return &guardedTask{name: name, fn: fn, log: log}
}

func (t *guardedTask) run(ctx context.Context) {
	if !t.running.CompareAndSwap(false, true) {
		t.log.Debug().Str("task", t.name).Msg("previous run still in progress, skipping tick")
		return
	}
	defer t.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			t.log.Error().
				Str("task", t.name).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("task panicked, tick abandoned")
		}
	}()
	t.fn(ctx)
}
