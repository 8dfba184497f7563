package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/mnemora/mnemora-backend/internal/data/repos/analysis"
	domainjobs "github.com/mnemora/mnemora-backend/internal/domain/jobs"
	"github.com/mnemora/mnemora-backend/internal/jobs"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
	"github.com/mnemora/mnemora-backend/internal/platform/memerr"
)

// JobView is a job plus its per-record results.
type JobView struct {
	Job     *domainjobs.AnalysisJob      `json:"job"`
	Results []*domainjobs.AnalysisResult `json:"results,omitempty"`
}

// JobsService is the read/enqueue surface over the analysis jobs ledger.
type JobsService interface {
	EnqueueReanalysis(ctx context.Context, recordIDs []int64) (*domainjobs.AnalysisJob, error)
	Get(ctx context.Context, id uuid.UUID) (*JobView, error)
	List(ctx context.Context, status string, limit int) ([]*domainjobs.AnalysisJob, error)
}

type jobsService struct {
	runner  *jobs.Runner
	jobs    analysis.JobRepo
	results analysis.ResultRepo
	log     *logger.Logger
}

func NewJobsService(runner *jobs.Runner, jobRepo analysis.JobRepo, resultRepo analysis.ResultRepo, baseLog *logger.Logger) JobsService {
	return &jobsService{
		runner:  runner,
		jobs:    jobRepo,
		results: resultRepo,
		log:     baseLog.With("service", "JobsService"),
	}
}

func (s *jobsService) EnqueueReanalysis(ctx context.Context, recordIDs []int64) (*domainjobs.AnalysisJob, error) {
	return s.runner.EnqueueReanalysis(ctx, recordIDs)
}

func (s *jobsService) Get(ctx context.Context, id uuid.UUID) (*JobView, error) {
	job, err := s.jobs.Get(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, memerr.New(memerr.KindInvalidInput, "jobs.get", "job not found")
	}
	results, err := s.results.ByJob(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	return &JobView{Job: job, Results: results}, nil
}

func (s *jobsService) List(ctx context.Context, status string, limit int) ([]*domainjobs.AnalysisJob, error) {
	return s.jobs.List(ctx, nil, status, limit)
}
