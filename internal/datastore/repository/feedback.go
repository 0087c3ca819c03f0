package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pulseboard/pulseboard/internal/datastore/entities"
)

// FeedbackRepository stores feedback submissions and answers the bounded
// time-range queries that volume_based and time_based rule conditions need.
type FeedbackRepository interface {
	Create(ctx context.Context, fb *entities.Feedback) error
	// CountSince returns the number of feedback rows for a tenant created
	// at or after the given time.
	CountSince(ctx context.Context, tenantID string, since time.Time) (int64, error)
	// LastCreatedAt returns the creation time of the tenant's most recent
	// feedback, or nil when the tenant has none.
	LastCreatedAt(ctx context.Context, tenantID string) (*time.Time, error)
}

// feedbackRepository implements FeedbackRepository.
type feedbackRepository struct {
	db *gorm.DB
}

// NewFeedbackRepository creates a new FeedbackRepository.
func NewFeedbackRepository(db *gorm.DB) FeedbackRepository {
	return &feedbackRepository{db: db}
}

func (r *feedbackRepository) Create(ctx context.Context, fb *entities.Feedback) error {
	if err := r.db.WithContext(ctx).Create(fb).Error; err != nil {
		return fmt.Errorf("failed to create feedback: %w", err)
	}
	return nil
}

func (r *feedbackRepository) CountSince(ctx context.Context, tenantID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.Feedback{}).
		Where("tenant_id = ? AND created_at >= ?", tenantID, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count feedback since %v: %w", since, err)
	}
	return count, nil
}

func (r *feedbackRepository) LastCreatedAt(ctx context.Context, tenantID string) (*time.Time, error) {
	var fb entities.Feedback
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		First(&fb).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last feedback time: %w", err)
	}
	return &fb.CreatedAt, nil
}
