package repositories

import (
	"context"
	"time"

	"github.com/anonto42/nano-midea/livechat/internal/models"
	"github.com/golang/glog"
	"gorm.io/gorm"
)

// PostgresFailureRepository implements FailureRepository for PostgreSQL
type PostgresFailureRepository struct {
	db *gorm.DB
}

// NewPostgresFailureRepository creates a new PostgresFailureRepository
func NewPostgresFailureRepository(db *gorm.DB) *PostgresFailureRepository {
	return &PostgresFailureRepository{db: db}
}

// Report records a failure
func (r *PostgresFailureRepository) Report(ctx context.Context, failure models.EntryFailure) error {
	if failure.CreatedAt.IsZero() {
		failure.CreatedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(&failure).Error
}

// GetByEntryID lists the failures recorded for an entry, oldest first
func (r *PostgresFailureRepository) GetByEntryID(ctx context.Context, entryID string) ([]models.EntryFailure, error) {
	var failures []models.EntryFailure
	err := r.db.WithContext(ctx).Where("entry_id = ?", entryID).Order("created_at asc").Find(&failures).Error
	return failures, err
}

// LogFailureRepository reports failures to the log only
type LogFailureRepository struct{}

// Report logs a failure
func (LogFailureRepository) Report(_ context.Context, failure models.EntryFailure) error {
	glog.Warningf("[failure]%s entry=%s transient=%t = %s\n", failure.Stage, failure.EntryID, failure.Transient, failure.Message)
	return nil
}
