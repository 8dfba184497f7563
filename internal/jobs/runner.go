package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/mnemora/mnemora-backend/internal/data/repos/analysis"
	"github.com/mnemora/mnemora-backend/internal/data/repos/memories"
	domainjobs "github.com/mnemora/mnemora-backend/internal/domain/jobs"
	"github.com/mnemora/mnemora-backend/internal/modules/memory/analyzer"
	"github.com/mnemora/mnemora-backend/internal/observability"
	"github.com/mnemora/mnemora-backend/internal/platform/envutil"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
	"github.com/mnemora/mnemora-backend/internal/platform/memerr"
)

// Runner is the in-process queue for analysis jobs: one polling goroutine
// claiming pending jobs and re-running concept extraction per record.
type Runner struct {
	jobs     analysis.JobRepo
	results  analysis.ResultRepo
	repo     memories.MemoryRepo
	analyzer analyzer.Analyzer
	log      *logger.Logger
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewRunner(
	jobRepo analysis.JobRepo,
	resultRepo analysis.ResultRepo,
	memoryRepo memories.MemoryRepo,
	an analyzer.Analyzer,
	log *logger.Logger,
) *Runner {
	return &Runner{
		jobs:     jobRepo,
		results:  resultRepo,
		repo:     memoryRepo,
		analyzer: an,
		log:      log.With("component", "JobRunner"),
		interval: time.Duration(envutil.Int("JOBS_POLL_INTERVAL_MS", 1000)) * time.Millisecond,
	}
}

// EnqueueReanalysis creates a pending reanalysis job over the given record
// ids. The worker picks it up on its next poll.
func (r *Runner) EnqueueReanalysis(ctx context.Context, recordIDs []int64) (*domainjobs.AnalysisJob, error) {
	if len(recordIDs) == 0 {
		return nil, memerr.New(memerr.KindInvalidInput, "jobs.enqueue", "no record ids")
	}
	ids, err := json.Marshal(recordIDs)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindInternal, "jobs.enqueue", err)
	}
	job := &domainjobs.AnalysisJob{
		JobType:       domainjobs.TypeReanalysis,
		RecordIDs:     datatypes.JSON(ids),
		ProgressTotal: len(recordIDs),
	}
	created, err := r.jobs.Create(ctx, nil, job)
	if err != nil {
		return nil, err
	}
	r.log.Info("reanalysis job enqueued", "job_id", created.ID, "records", len(recordIDs))
	return created, nil
}

// Start launches the polling goroutine. Call Close to stop it.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				job, err := r.jobs.ClaimNextPending(ctx, nil)
				if err != nil {
					r.log.Warn("claim failed", "error", err)
					continue
				}
				if job == nil {
					continue
				}
				r.runJob(ctx, job)
			}
		}
	}()
}

// Close stops the worker and waits for an in-flight job to finish.
func (r *Runner) Close() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

func (r *Runner) runJob(ctx context.Context, job *domainjobs.AnalysisJob) {
	started := time.Now()
	log := r.log.With("job_id", job.ID, "job_type", job.JobType)

	// A panicking analyzer must not take the worker down with it.
	var jobErr error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("job panicked", "panic", rec)
				jobErr = fmt.Errorf("panic: %v", rec)
			}
		}()
		jobErr = r.process(ctx, job, log)
	}()

	now := time.Now().UTC()
	updates := map[string]interface{}{"completed_at": &now}
	status := domainjobs.StatusCompleted
	if jobErr != nil {
		status = domainjobs.StatusFailed
		updates["error_message"] = jobErr.Error()
	}
	updates["status"] = status
	if err := r.jobs.UpdateFields(ctx, nil, job.ID, updates); err != nil {
		log.Error("job status update failed", "error", err)
	}
	observability.Current().ObserveJob(job.JobType, status, time.Since(started))
	log.Info("job finished", "status", status, "elapsed_ms", time.Since(started).Milliseconds())
}

func (r *Runner) process(ctx context.Context, job *domainjobs.AnalysisJob, log *logger.Logger) error {
	if job.JobType != domainjobs.TypeReanalysis {
		return fmt.Errorf("unknown job type %q", job.JobType)
	}
	var recordIDs []int64
	if err := json.Unmarshal(job.RecordIDs, &recordIDs); err != nil {
		return fmt.Errorf("decode record ids: %w", err)
	}

	for i, id := range recordIDs {
		rec, err := r.repo.Get(ctx, nil, id)
		if err != nil {
			return err
		}
		if rec == nil {
			log.Warn("record gone, skipping", "record_id", id)
			r.progress(ctx, job, i+1)
			continue
		}
		concepts, err := r.analyzer.ExtractAndAnalyze(ctx, rec)
		if err != nil {
			return err
		}
		rows := make([]*domainjobs.AnalysisResult, 0, len(concepts))
		for _, c := range concepts {
			extracted, _ := json.Marshal(c.ExtractedConcepts)
			rows = append(rows, &domainjobs.AnalysisResult{
				JobID:             job.ID,
				RecordID:          id,
				AnalyzedType:      c.AnalyzedType,
				Confidence:        c.Confidence,
				ExtractedConcepts: datatypes.JSON(extracted),
			})
		}
		if len(rows) > 0 {
			if _, err := r.results.Create(ctx, nil, rows); err != nil {
				return err
			}
		}
		r.progress(ctx, job, i+1)
	}
	return nil
}

func (r *Runner) progress(ctx context.Context, job *domainjobs.AnalysisJob, current int) {
	if err := r.jobs.UpdateFields(ctx, nil, job.ID, map[string]interface{}{"progress_current": current}); err != nil {
		r.log.Warn("progress update failed", "job_id", job.ID, "error", err)
	}
}
