package event

import (
	"context"
	"sync"
	"time"

	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RelayConfig holds configuration for the outbox relay
type RelayConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
	// ProcessingLease is how long a claimed entry may stay PROCESSING before
	// another relay takes it over.
	ProcessingLease time.Duration
}

// DefaultRelayConfig returns default configuration
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		BatchSize:        100,
		PollInterval:     5 * time.Second,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
		ProcessingLease:  5 * time.Minute,
	}
}

// RelayObserver is told the outcome of every relayed entry
type RelayObserver interface {
	OutboxRelayed(ctx context.Context, eventName string, status shared.OutboxStatus)
}

// OutboxRelay polls committed outbox entries and pushes them through a
// Transport, recording SENT, FAILED with backoff, or DEAD per entry.
type OutboxRelay struct {
	repo       shared.OutboxRepository
	transport  Transport
	serializer *EventSerializer
	config     RelayConfig
	observer   RelayObserver
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutboxRelay creates a new outbox relay
func NewOutboxRelay(
	repo shared.OutboxRepository,
	transport Transport,
	serializer *EventSerializer,
	config RelayConfig,
	logger *zap.Logger,
) *OutboxRelay {
	if config.ProcessingLease <= 0 {
		config.ProcessingLease = DefaultRelayConfig().ProcessingLease
	}
	return &OutboxRelay{
		repo:       repo,
		transport:  transport,
		serializer: serializer,
		config:     config,
		logger:     logger,
	}
}

// SetObserver registers an observer for relay outcomes
func (r *OutboxRelay) SetObserver(o RelayObserver) {
	r.observer = o
}

// Start launches the poll loop and, if enabled, the cleanup loop
func (r *OutboxRelay) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.processLoop(ctx)

	if r.config.CleanupEnabled {
		r.wg.Add(1)
		go r.cleanupLoop(ctx)
	}

	r.logger.Info("outbox relay started",
		zap.Int("batch_size", r.config.BatchSize),
		zap.Duration("poll_interval", r.config.PollInterval),
	)
	return nil
}

// Stop cancels the loops and waits for the in-flight batch
func (r *OutboxRelay) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("outbox relay stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *OutboxRelay) processLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch relays one batch each of pending entries, due retries and
// PROCESSING entries whose lease expired. It returns the number sent.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) int {
	sent := 0
	leaseCutoff := time.Now().Add(-r.config.ProcessingLease)

	pending, err := r.repo.FindPending(ctx, r.config.BatchSize)
	if err != nil {
		r.logger.Error("failed to find pending entries", zap.Error(err))
		return sent
	}
	sent += r.processEntries(ctx, pending, leaseCutoff)

	retryable, err := r.repo.FindRetryable(ctx, time.Now(), r.config.BatchSize)
	if err != nil {
		r.logger.Error("failed to find retryable entries", zap.Error(err))
		return sent
	}
	sent += r.processEntries(ctx, retryable, leaseCutoff)

	stale, err := r.repo.FindStaleProcessing(ctx, leaseCutoff, r.config.BatchSize)
	if err != nil {
		r.logger.Error("failed to find stale entries", zap.Error(err))
		return sent
	}
	if len(stale) > 0 {
		r.logger.Warn("reclaiming entries with expired processing lease", zap.Int("count", len(stale)))
	}
	return sent + r.processEntries(ctx, stale, leaseCutoff)
}

func (r *OutboxRelay) processEntries(ctx context.Context, entries []*shared.OutboxEntry, leaseCutoff time.Time) int {
	if len(entries) == 0 {
		return 0
	}

	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}

	claimed, err := r.repo.MarkProcessing(ctx, ids, leaseCutoff)
	if err != nil {
		r.logger.Error("failed to mark entries as processing", zap.Error(err))
		return 0
	}

	sent := 0
	for _, entry := range claimed {
		if r.processEntry(ctx, entry) {
			sent++
		}
	}
	return sent
}

func (r *OutboxRelay) processEntry(ctx context.Context, entry *shared.OutboxEntry) bool {
	event, err := r.serializer.Deserialize(entry.EventName, entry.Payload)
	if err == nil {
		err = r.transport.Send(ctx, Message{Entry: entry, Event: event})
	}

	if err != nil {
		r.logger.Error("failed to relay event",
			zap.String("event_key", entry.EventKey.String()),
			zap.String("event_name", entry.EventName),
			zap.Error(err),
		)
		entry.MarkFailed(err.Error())
		if entry.IsDead() {
			r.logger.Warn("event moved to dead letter",
				zap.String("event_key", entry.EventKey.String()),
				zap.String("event_name", entry.EventName),
				zap.String("aggregate_type", entry.AggregateType),
				zap.String("aggregate_id", entry.AggregateID),
				zap.Int("retry_count", entry.RetryCount),
				zap.String("last_error", entry.LastError),
			)
		}
	} else {
		entry.MarkSent()
	}

	if updateErr := r.repo.Update(ctx, entry); updateErr != nil {
		r.logger.Error("failed to update entry",
			zap.String("event_key", entry.EventKey.String()),
			zap.Error(updateErr),
		)
	}
	if r.observer != nil {
		r.observer.OutboxRelayed(ctx, entry.EventName, entry.Status)
	}
	return err == nil
}

func (r *OutboxRelay) cleanupLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Cleanup(ctx)
		}
	}
}

// Cleanup removes SENT entries older than the retention window
func (r *OutboxRelay) Cleanup(ctx context.Context) int64 {
	cutoff := time.Now().Add(-r.config.CleanupRetention)
	deleted, err := r.repo.DeleteSentBefore(ctx, cutoff)
	if err != nil {
		r.logger.Error("failed to cleanup old entries", zap.Error(err))
		return 0
	}

	if deleted > 0 {
		r.logger.Info("cleaned up old outbox entries",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
	return deleted
}
