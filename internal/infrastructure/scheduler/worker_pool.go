package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of work run by the pool. Each task owns its own
// transaction boundary.
type Task struct {
	Name       string
	Run        func(ctx context.Context) error
	RetryCount int
	MaxRetries int
	notBefore  time.Time
}

// WorkerPoolConfig holds worker pool configuration
type WorkerPoolConfig struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
}

// DefaultWorkerPoolConfig returns default worker pool configuration
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:     4,
		QueueSize:   1024,
		TaskTimeout: 30 * time.Second,
		MaxRetries:  3,
		RetryDelay:  time.Second,
	}
}

// WorkerPool drains a bounded task queue with a fixed number of workers
type WorkerPool struct {
	config WorkerPoolConfig
	logger *zap.Logger

	tasks     chan *Task
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(config WorkerPoolConfig, logger *zap.Logger) (*WorkerPool, error) {
	if config.Workers <= 0 || config.QueueSize <= 0 {
		return nil, fmt.Errorf("%w: workers and queue size must be positive", ErrInvalidConfig)
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = DefaultWorkerPoolConfig().TaskTimeout
	}
	return &WorkerPool{
		config: config,
		logger: logger,
		tasks:  make(chan *Task, config.QueueSize),
	}, nil
}

// Start starts the workers
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = true
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.logger.Info("Worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize),
	)
	return nil
}

// Stop stops accepting tasks, lets workers drain the queue and waits for
// them until ctx expires
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("Worker pool stopped gracefully")
		return nil
	case <-ctx.Done():
		p.cancel()
		p.logger.Warn("Worker pool stop timed out")
		return ctx.Err()
	}
}

// Submit enqueues a task without blocking
func (p *WorkerPool) Submit(task *Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.isRunning {
		return ErrPoolNotRunning
	}
	if task.MaxRetries == 0 {
		task.MaxRetries = p.config.MaxRetries
	}

	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrTaskQueueFull
	}
}

// Go enqueues fn as a task and logs instead of returning queue errors
func (p *WorkerPool) Go(name string, fn func(ctx context.Context) error) {
	if err := p.Submit(&Task{Name: name, Run: fn}); err != nil {
		p.logger.Error("Failed to submit task", zap.String("task", name), zap.Error(err))
	}
}

// QueueLength returns the number of queued tasks
func (p *WorkerPool) QueueLength() int {
	return len(p.tasks)
}

func (p *WorkerPool) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()

	for task := range p.tasks {
		p.runTask(ctx, task, workerID)
	}
}

func (p *WorkerPool) runTask(ctx context.Context, task *Task, workerID int) {
	if wait := time.Until(task.notBefore); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}

	taskCtx, cancel := context.WithTimeout(ctx, p.config.TaskTimeout)
	defer cancel()

	err := p.safeRun(taskCtx, task)
	if err == nil {
		return
	}

	p.logger.Error("Task failed",
		zap.Int("worker_id", workerID),
		zap.String("task", task.Name),
		zap.Int("retry_count", task.RetryCount),
		zap.Error(err),
	)
	if task.RetryCount >= task.MaxRetries {
		return
	}
	task.RetryCount++
	task.notBefore = time.Now().Add(p.config.RetryDelay * time.Duration(1<<uint(task.RetryCount-1)))
	if err := p.Submit(task); err != nil {
		p.logger.Warn("Failed to re-queue task for retry",
			zap.String("task", task.Name),
			zap.Error(err),
		)
	}
}

func (p *WorkerPool) safeRun(ctx context.Context, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	return task.Run(ctx)
}
