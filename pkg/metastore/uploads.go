package metastore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mezzofs/mezzofs/pkg/metastore/models"
)

// ============================================
// UPLOAD SESSION OPERATIONS
// ============================================

func (s *Store) CreateUploadSession(ctx context.Context, session *models.UploadSession) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.Status == "" {
		session.Status = models.UploadInit
	}
	return s.db.WithContext(ctx).Create(session).Error
}

// GetUploadSession loads a session with its completed parts, ordered by
// part number.
func (s *Store) GetUploadSession(ctx context.Context, id string) (*models.UploadSession, error) {
	var session models.UploadSession
	err := s.db.WithContext(ctx).
		Preload("Parts", func(db *gorm.DB) *gorm.DB { return db.Order("part_number") }).
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrUploadSessionNotFound)
	}
	return &session, nil
}

// GetUploadSessionForUpdate loads a session (without parts) under a row
// lock. Only meaningful inside WithTx.
func (s *Store) GetUploadSessionForUpdate(ctx context.Context, id string) (*models.UploadSession, error) {
	var session models.UploadSession
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrUploadSessionNotFound)
	}
	return &session, nil
}

// UpdateUploadSession persists mutable session fields. Terminal statuses
// are sticky: rows already terminal are never modified.
func (s *Store) UpdateUploadSession(ctx context.Context, session *models.UploadSession) error {
	session.UpdatedAt = time.Now()
	result := s.db.WithContext(ctx).
		Model(&models.UploadSession{}).
		Where("id = ? AND status NOT IN ?", session.ID,
			[]models.UploadStatus{models.UploadCompleted, models.UploadAborted, models.UploadExpired}).
		Updates(map[string]any{
			"status":         session.Status,
			"uploaded_bytes": session.UploadedBytes,
			"file_id":        session.FileID,
			"updated_at":     session.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var existing models.UploadSession
		if err := s.db.WithContext(ctx).Where("id = ?", session.ID).First(&existing).Error; err != nil {
			return convertNotFoundError(err, models.ErrUploadSessionNotFound)
		}
		return models.ErrUploadSessionTerminal
	}
	return nil
}

// UpsertUploadPart records a completed part. Re-uploads of the same part
// number overwrite the etag and size.
func (s *Store) UpsertUploadPart(ctx context.Context, part *models.UploadSessionPart) error {
	if part.ID == "" {
		part.ID = uuid.New().String()
	}
	part.UploadedAt = time.Now()
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "part_number"}},
			DoUpdates: clause.AssignmentColumns([]string{"e_tag", "size_bytes", "uploaded_at"}),
		}).
		Create(part).Error
}

// ListUploadParts returns the completed parts of a session in part order.
func (s *Store) ListUploadParts(ctx context.Context, sessionID string) ([]*models.UploadSessionPart, error) {
	var parts []*models.UploadSessionPart
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("part_number").
		Find(&parts).Error
	if err != nil {
		return nil, err
	}
	return parts, nil
}

// ListOverdueUploadSessions returns non-terminal sessions whose deadline
// has passed. Used by the periodic expiry sweep.
func (s *Store) ListOverdueUploadSessions(ctx context.Context, now time.Time) ([]*models.UploadSession, error) {
	var sessions []*models.UploadSession
	err := s.db.WithContext(ctx).
		Where("status NOT IN ? AND expires_at <= ?",
			[]models.UploadStatus{models.UploadCompleted, models.UploadAborted, models.UploadExpired}, now).
		Order("expires_at").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// DeleteUploadParts removes the part rows after completion or abort.
func (s *Store) DeleteUploadParts(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&models.UploadSessionPart{}).Error
}
