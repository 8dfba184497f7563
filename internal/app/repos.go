package app

import (
	"gorm.io/gorm"

	"github.com/mnemora/mnemora-backend/internal/data/repos"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
)

type Repos struct {
	Memories        repos.MemoryRepo
	AnalysisJobs    repos.AnalysisJobRepo
	AnalysisResults repos.AnalysisResultRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("wiring repos")
	return Repos{
		Memories:        repos.NewMemoryRepo(db, log),
		AnalysisJobs:    repos.NewAnalysisJobRepo(db, log),
		AnalysisResults: repos.NewAnalysisResultRepo(db, log),
	}
}
