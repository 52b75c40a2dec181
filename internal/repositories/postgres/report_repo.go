package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yoockh/medivoice/internal/models"
	"github.com/yoockh/medivoice/internal/utils"
)

// ReportRepo keeps the queryable consultation history.
type ReportRepo interface {
	Upsert(ctx context.Context, r *models.ReportRecord) error
	GetBySession(ctx context.Context, sessionID string) (*models.ReportRecord, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.ReportRecord, error)
	ListAll(ctx context.Context, limit, offset int) ([]models.ReportRecord, error)
}

type reportRepo struct {
	db *gorm.DB
}

func NewReportRepo(db *gorm.DB) ReportRepo {
	return &reportRepo{db: db}
}

func (r *reportRepo) Upsert(ctx context.Context, rec *models.ReportRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"specialist", "chief_complaint", "summary", "severity", "duration",
				"symptoms", "medications", "recommendations", "conversation_length",
				"degraded", "payload",
			}),
		}).
		Create(rec).Error
}

func (r *reportRepo) GetBySession(ctx context.Context, sessionID string) (*models.ReportRecord, error) {
	var rec models.ReportRecord
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &rec, err
}

func (r *reportRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.ReportRecord, error) {
	var rows []models.ReportRecord
	err := r.page(ctx, limit, offset).
		Where("user_id = ?", userID).
		Find(&rows).Error
	return rows, err
}

func (r *reportRepo) ListAll(ctx context.Context, limit, offset int) ([]models.ReportRecord, error) {
	var rows []models.ReportRecord
	err := r.page(ctx, limit, offset).Find(&rows).Error
	return rows, err
}

func (r *reportRepo) page(ctx context.Context, limit, offset int) *gorm.DB {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset)
}
