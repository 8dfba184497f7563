package analysis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mnemora/mnemora-backend/internal/domain/jobs"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
	"github.com/mnemora/mnemora-backend/internal/platform/memerr"
)

type ResultRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*jobs.AnalysisResult) ([]*jobs.AnalysisResult, error)
	ByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*jobs.AnalysisResult, error)
	ByRecord(ctx context.Context, tx *gorm.DB, recordID int64, limit int) ([]*jobs.AnalysisResult, error)
}

type resultRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResultRepo(db *gorm.DB, baseLog *logger.Logger) ResultRepo {
	return &resultRepo{db: db, log: baseLog.With("repo", "AnalysisResultRepo")}
}

func (r *resultRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *resultRepo) Create(ctx context.Context, tx *gorm.DB, rows []*jobs.AnalysisResult) ([]*jobs.AnalysisResult, error) {
	if len(rows) == 0 {
		return []*jobs.AnalysisResult{}, nil
	}
	now := time.Now().UTC()
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
	}
	if err := r.conn(tx).WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, memerr.MapStore("jobs.results.create", err)
	}
	return rows, nil
}

func (r *resultRepo) ByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*jobs.AnalysisResult, error) {
	var out []*jobs.AnalysisResult
	if err := r.conn(tx).WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, memerr.MapStore("jobs.results.by_job", err)
	}
	return out, nil
}

func (r *resultRepo) ByRecord(ctx context.Context, tx *gorm.DB, recordID int64, limit int) ([]*jobs.AnalysisResult, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	var out []*jobs.AnalysisResult
	if err := r.conn(tx).WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, memerr.MapStore("jobs.results.by_record", err)
	}
	return out, nil
}
