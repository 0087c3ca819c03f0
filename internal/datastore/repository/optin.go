package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pulseboard/pulseboard/internal/datastore/entities"
)

// ErrOptInNotFound is returned when no consent record exists for a number.
var ErrOptInNotFound = errors.New("opt-in record not found")

// OptInRepository persists SMS consent records.
type OptInRepository interface {
	Get(ctx context.Context, phone, tenantID string) (*entities.OptInRecord, error)
	Upsert(ctx context.Context, record *entities.OptInRecord) error
}

// optInRepository implements OptInRepository.
type optInRepository struct {
	db *gorm.DB
}

// NewOptInRepository creates a new OptInRepository.
func NewOptInRepository(db *gorm.DB) OptInRepository {
	return &optInRepository{db: db}
}

func (r *optInRepository) Get(ctx context.Context, phone, tenantID string) (*entities.OptInRecord, error) {
	var rec entities.OptInRecord
	err := r.db.WithContext(ctx).
		Where("phone_number = ? AND tenant_id = ?", phone, tenantID).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOptInNotFound
		}
		return nil, fmt.Errorf("failed to get opt-in record: %w", err)
	}
	return &rec, nil
}

func (r *optInRepository) Upsert(ctx context.Context, record *entities.OptInRecord) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "phone_number"}, {Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "source", "opted_in_at", "opted_out_at", "updated_at",
		}),
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to upsert opt-in record: %w", err)
	}
	return nil
}
