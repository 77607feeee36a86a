package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FixedDelayConfig configures a FixedDelayTrigger
type FixedDelayConfig struct {
	Name         string
	InitialDelay time.Duration
	Delay        time.Duration
	RunTimeout   time.Duration
}

// FixedDelayTrigger runs a job on one goroutine, waiting Delay after each run
// finishes before starting the next. Runs never overlap.
type FixedDelayTrigger struct {
	config FixedDelayConfig
	job    func(ctx context.Context) error
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewFixedDelayTrigger creates a new trigger for job
func NewFixedDelayTrigger(config FixedDelayConfig, job func(ctx context.Context) error, logger *zap.Logger) *FixedDelayTrigger {
	return &FixedDelayTrigger{
		config: config,
		job:    job,
		logger: logger,
	}
}

// Start starts the trigger loop
func (t *FixedDelayTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	if t.config.Delay <= 0 {
		t.mu.Unlock()
		return ErrInvalidConfig
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Fixed delay trigger started",
		zap.String("name", t.config.Name),
		zap.Duration("initial_delay", t.config.InitialDelay),
		zap.Duration("delay", t.config.Delay),
	)
	return nil
}

// Stop stops the trigger, waiting for an in-flight run until ctx expires
func (t *FixedDelayTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Fixed delay trigger stopped", zap.String("name", t.config.Name))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *FixedDelayTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	timer := time.NewTimer(t.config.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			t.runOnce(ctx)
			timer.Reset(t.config.Delay)
		}
	}
}

func (t *FixedDelayTrigger) runOnce(ctx context.Context) {
	runCtx := ctx
	if t.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.config.RunTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Scheduled run panicked",
				zap.String("name", t.config.Name),
				zap.Any("panic", r),
			)
		}
	}()

	start := time.Now()
	if err := t.job(runCtx); err != nil {
		t.logger.Error("Scheduled run failed",
			zap.String("name", t.config.Name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	t.logger.Debug("Scheduled run completed",
		zap.String("name", t.config.Name),
		zap.Duration("duration", time.Since(start)),
	)
}
