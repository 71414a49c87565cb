package metastore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mezzofs/mezzofs/pkg/metastore/models"
)

// ============================================
// SYNC EVENT OPERATIONS
// ============================================

func (s *Store) CreateSyncEvent(ctx context.Context, event *models.SyncEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Status == "" {
		event.Status = models.SyncPending
	}
	if event.MaxRetries == 0 {
		event.MaxRetries = models.DefaultMaxRetries
	}
	return s.db.WithContext(ctx).Create(event).Error
}

func (s *Store) GetSyncEvent(ctx context.Context, id string) (*models.SyncEvent, error) {
	var event models.SyncEvent
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrSyncEventNotFound)
	}
	return &event, nil
}

// UpdateSyncEvent persists status, retry bookkeeping and error message.
// Rows already in a terminal state are never modified.
func (s *Store) UpdateSyncEvent(ctx context.Context, event *models.SyncEvent) error {
	event.UpdatedAt = time.Now()
	result := s.db.WithContext(ctx).
		Model(&models.SyncEvent{}).
		Where("id = ? AND status NOT IN ?", event.ID,
			[]models.SyncEventStatus{models.SyncDone, models.SyncFailed}).
		Updates(map[string]any{
			"status":        event.Status,
			"retry_count":   event.RetryCount,
			"error_message": event.ErrorMessage,
			"processed_at":  event.ProcessedAt,
			"updated_at":    event.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Either missing or terminal; distinguish for the caller.
		var existing models.SyncEvent
		if err := s.db.WithContext(ctx).Where("id = ?", event.ID).First(&existing).Error; err != nil {
			return convertNotFoundError(err, models.ErrSyncEventNotFound)
		}
		return models.ErrSyncEventTerminal
	}
	return nil
}

// ListSyncEventsForEntity returns the outbox rows for one folder or file,
// newest first. Diagnostic endpoint.
func (s *Store) ListSyncEventsForEntity(ctx context.Context, targetType models.TargetType, entityID string) ([]*models.SyncEvent, error) {
	q := s.db.WithContext(ctx).Model(&models.SyncEvent{})
	if targetType == models.TargetFolder {
		q = q.Where("target_type = ? AND folder_id = ?", targetType, entityID)
	} else {
		q = q.Where("target_type = ? AND file_id = ?", targetType, entityID)
	}
	var events []*models.SyncEvent
	if err := q.Order("created_at DESC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// ListStaleSyncEvents returns PENDING and RETRYING events untouched since
// cutoff, for the sweeper to re-enqueue: PENDING rows whose producer
// crashed between commit and enqueue, RETRYING rows whose broker
// re-delivery was lost.
func (s *Store) ListStaleSyncEvents(ctx context.Context, cutoff time.Time, limit int) ([]*models.SyncEvent, error) {
	var events []*models.SyncEvent
	err := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]models.SyncEventStatus{models.SyncPending, models.SyncRetrying}, cutoff).
		Order("updated_at").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
