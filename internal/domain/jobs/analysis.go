package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const (
	// TypeReanalysis re-runs concept extraction over a batch of record ids.
	TypeReanalysis = "reanalysis"
)

// AnalysisJob tracks one batch of analyzer invocations over stored records.
type AnalysisJob struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Status          string         `gorm:"column:status;not null;index" json:"status"`
	JobType         string         `gorm:"column:job_type;not null;index" json:"job_type"`
	RecordIDs       datatypes.JSON `gorm:"column:record_ids_json" json:"record_ids"`
	ProgressCurrent int            `gorm:"column:progress_current;not null;default:0" json:"progress_current"`
	ProgressTotal   int            `gorm:"column:progress_total;not null;default:0" json:"progress_total"`
	CreatedAt       time.Time      `gorm:"not null;index" json:"created_at"`
	StartedAt       *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt     *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	ErrorMessage    string         `gorm:"column:error_message" json:"error_message,omitempty"`
}

func (AnalysisJob) TableName() string { return "analysis_jobs" }

// AnalysisResult is the per-record outcome of an analysis job.
type AnalysisResult struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobID             uuid.UUID      `gorm:"type:uuid;not null;index" json:"job_id"`
	RecordID          int64          `gorm:"column:record_id;not null;index" json:"record_id"`
	AnalyzedType      string         `gorm:"column:analyzed_type;not null" json:"analyzed_type"`
	Confidence        float64        `gorm:"column:confidence;not null;default:0" json:"confidence"`
	ExtractedConcepts datatypes.JSON `gorm:"column:extracted_concepts_json" json:"extracted_concepts"`
	Metadata          datatypes.JSON `gorm:"column:metadata_json" json:"metadata,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;index" json:"created_at"`
}

func (AnalysisResult) TableName() string { return "analysis_results" }
