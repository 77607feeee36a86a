package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOutboxRepository implements shared.OutboxRepository using GORM
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewGormOutboxRepository creates a new GORM-based outbox repository
func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// Save persists one or more outbox entries
func (r *GormOutboxRepository) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([]*models.OutboxEntryModel, len(entries))
	for i, e := range entries {
		rows[i] = models.OutboxEntryModelFromDomain(e)
	}
	if err := r.db.WithContext(ctx).Create(rows).Error; err != nil {
		return fmt.Errorf("failed to save outbox entries: %w", err)
	}
	return nil
}

// FindPending retrieves pending entries, oldest first
func (r *GormOutboxRepository) FindPending(ctx context.Context, limit int) ([]*shared.OutboxEntry, error) {
	var rows []models.OutboxEntryModel
	err := r.db.WithContext(ctx).
		Where("status = ?", shared.OutboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find pending outbox entries: %w", err)
	}
	return toDomainEntries(rows), nil
}

// FindRetryable retrieves failed entries whose next retry is due
func (r *GormOutboxRepository) FindRetryable(ctx context.Context, before time.Time, limit int) ([]*shared.OutboxEntry, error) {
	var rows []models.OutboxEntryModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", shared.OutboxStatusFailed, before).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find retryable outbox entries: %w", err)
	}
	return toDomainEntries(rows), nil
}

// FindStaleProcessing retrieves PROCESSING entries whose lease ran out
func (r *GormOutboxRepository) FindStaleProcessing(ctx context.Context, before time.Time, limit int) ([]*shared.OutboxEntry, error) {
	var rows []models.OutboxEntryModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at <= ?", shared.OutboxStatusProcessing, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find stale outbox entries: %w", err)
	}
	return toDomainEntries(rows), nil
}

// MarkProcessing claims the given entries with FOR UPDATE SKIP LOCKED and
// flips them to PROCESSING. Rows locked by another relay are skipped, and a
// PROCESSING row is only taken over when updated_at is at or before leaseCutoff.
func (r *GormOutboxRepository) MarkProcessing(ctx context.Context, ids []uuid.UUID, leaseCutoff time.Time) ([]*shared.OutboxEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []models.OutboxEntryModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("id IN ?", ids).
			Where("status IN ? OR (status = ? AND updated_at <= ?)",
				[]shared.OutboxStatus{shared.OutboxStatusPending, shared.OutboxStatusFailed},
				shared.OutboxStatusProcessing, leaseCutoff).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		claimed := make([]uuid.UUID, len(rows))
		for i := range rows {
			claimed[i] = rows[i].ID
		}

		now := time.Now()
		if err := tx.Model(&models.OutboxEntryModel{}).
			Where("id IN ?", claimed).
			Updates(map[string]any{
				"status":     shared.OutboxStatusProcessing,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}
		for i := range rows {
			rows[i].Status = shared.OutboxStatusProcessing
			rows[i].UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox entries: %w", err)
	}
	return toDomainEntries(rows), nil
}

// Update writes back the relay outcome of an entry
func (r *GormOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	entry.UpdatedAt = time.Now()
	if err := r.db.WithContext(ctx).Save(models.OutboxEntryModelFromDomain(entry)).Error; err != nil {
		return fmt.Errorf("failed to update outbox entry: %w", err)
	}
	return nil
}

// DeleteSentBefore deletes SENT entries processed before the given time
func (r *GormOutboxRepository) DeleteSentBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND processed_at < ?", shared.OutboxStatusSent, before).
		Delete(&models.OutboxEntryModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete sent outbox entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// FindByEventKey loads the entry written for an event
func (r *GormOutboxRepository) FindByEventKey(ctx context.Context, eventKey uuid.UUID) (*shared.OutboxEntry, error) {
	var row models.OutboxEntryModel
	err := r.db.WithContext(ctx).Where("event_key = ?", eventKey).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("outbox entry not found")
		}
		return nil, fmt.Errorf("failed to find outbox entry: %w", err)
	}
	return row.ToDomain(), nil
}

// CountByStatus returns the number of entries per status
func (r *GormOutboxRepository) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	var results []struct {
		Status shared.OutboxStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.OutboxEntryModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count outbox entries: %w", err)
	}

	counts := make(map[shared.OutboxStatus]int64, len(results))
	for _, r := range results {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func toDomainEntries(rows []models.OutboxEntryModel) []*shared.OutboxEntry {
	entries := make([]*shared.OutboxEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries
}

var _ shared.OutboxRepository = (*GormOutboxRepository)(nil)
