package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mnemora/mnemora-backend/internal/domain/jobs"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
	"github.com/mnemora/mnemora-backend/internal/platform/memerr"
)

type JobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, job *jobs.AnalysisJob) (*jobs.AnalysisJob, error)
	Get(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*jobs.AnalysisJob, error)
	List(ctx context.Context, tx *gorm.DB, status string, limit int) ([]*jobs.AnalysisJob, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	ClaimNextPending(ctx context.Context, tx *gorm.DB) (*jobs.AnalysisJob, error)
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{db: db, log: baseLog.With("repo", "AnalysisJobRepo")}
}

func (r *jobRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *jobRepo) Create(ctx context.Context, tx *gorm.DB, job *jobs.AnalysisJob) (*jobs.AnalysisJob, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = jobs.StatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if err := r.conn(tx).WithContext(ctx).Create(job).Error; err != nil {
		return nil, memerr.MapStore("jobs.create", err)
	}
	return job, nil
}

func (r *jobRepo) Get(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*jobs.AnalysisJob, error) {
	var job jobs.AnalysisJob
	err := r.conn(tx).WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, memerr.MapStore("jobs.get", err)
	}
	return &job, nil
}

func (r *jobRepo) List(ctx context.Context, tx *gorm.DB, status string, limit int) ([]*jobs.AnalysisJob, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := r.conn(tx).WithContext(ctx).Model(&jobs.AnalysisJob{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []*jobs.AnalysisJob
	if err := q.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, memerr.MapStore("jobs.list", err)
	}
	return out, nil
}

func (r *jobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	if err := r.conn(tx).WithContext(ctx).
		Model(&jobs.AnalysisJob{}).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return memerr.MapStore("jobs.update", err)
	}
	return nil
}

// ClaimNextPending flips the oldest pending job to running and returns it.
// Returns nil, nil when the queue is empty.
func (r *jobRepo) ClaimNextPending(ctx context.Context, tx *gorm.DB) (*jobs.AnalysisJob, error) {
	conn := r.conn(tx)
	var job jobs.AnalysisJob
	err := conn.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		if err := inner.
			Where("status = ?", jobs.StatusPending).
			Order("created_at ASC").
			First(&job).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		res := inner.Model(&jobs.AnalysisJob{}).
			Where("id = ? AND status = ?", job.ID, jobs.StatusPending).
			Updates(map[string]interface{}{
				"status":     jobs.StatusRunning,
				"started_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		job.Status = jobs.StatusRunning
		job.StartedAt = &now
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, memerr.MapStore("jobs.claim", err)
	}
	return &job, nil
}
