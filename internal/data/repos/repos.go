package repos

import (
	"gorm.io/gorm"

	"github.com/mnemora/mnemora-backend/internal/data/repos/analysis"
	"github.com/mnemora/mnemora-backend/internal/data/repos/memories"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
)

type MemoryRepo = memories.MemoryRepo
type AnalysisJobRepo = analysis.JobRepo
type AnalysisResultRepo = analysis.ResultRepo

func NewMemoryRepo(db *gorm.DB, baseLog *logger.Logger) MemoryRepo {
	return memories.NewMemoryRepo(db, baseLog)
}

func NewAnalysisJobRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisJobRepo {
	return analysis.NewJobRepo(db, baseLog)
}

func NewAnalysisResultRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisResultRepo {
	return analysis.NewResultRepo(db, baseLog)
}
