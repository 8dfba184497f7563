package app

import (
	"context"
	"fmt"

	"github.com/mnemora/mnemora-backend/internal/data/graph"
	dvector "github.com/mnemora/mnemora-backend/internal/data/vector"
	"github.com/mnemora/mnemora-backend/internal/jobs"
	"github.com/mnemora/mnemora-backend/internal/modules/memory/analyzer"
	"github.com/mnemora/mnemora-backend/internal/modules/memory/pipeline"
	"github.com/mnemora/mnemora-backend/internal/modules/memory/recency"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
	"github.com/mnemora/mnemora-backend/internal/services"
)

type Services struct {
	Engine    *pipeline.Engine
	Stats     services.StatsService
	Reconcile services.ReconcileService
	Jobs      services.JobsService
	JobRunner *jobs.Runner
}

func wireServices(ctx context.Context, log *logger.Logger, cfg Config, cl Clients, r Repos) (Services, error) {
	log.Info("wiring services")

	an := analyzer.New(cl.LLM, log)
	index := dvector.NewConceptIndex(cl.LLM, cl.Vector, log)

	var memoryGraph graph.MemoryGraph
	if cl.Neo4j != nil {
		g, err := graph.NewNeo4jMemoryGraph(ctx, cl.Neo4j, log)
		if err != nil {
			return Services{}, fmt.Errorf("init neo4j graph: %w", err)
		}
		memoryGraph = g
	} else {
		memoryGraph = graph.NewLocalMemoryGraph(log)
	}

	var cache recency.Cache
	if cfg.RecencyBackend == "redis" && cl.Redis != nil {
		rc, err := recency.NewRedisCache(cl.Redis, cfg.RecencyKey, cfg.RecencyCapacity, log)
		if err != nil {
			return Services{}, fmt.Errorf("init redis recency cache: %w", err)
		}
		cache = rc
	} else {
		if cfg.RecencyBackend == "redis" {
			log.Warn("redis recency backend selected but REDIS_ADDR unset, using in-process ring")
		}
		cache = recency.NewRing(cfg.RecencyCapacity)
	}

	engine := pipeline.NewEngine(r.Memories, index, memoryGraph, cache, an, log)
	runner := jobs.NewRunner(r.AnalysisJobs, r.AnalysisResults, r.Memories, an, log)

	return Services{
		Engine:    engine,
		Stats:     services.NewStatsService(r.Memories, memoryGraph, cache, log),
		Reconcile: services.NewReconcileService(r.Memories, index, memoryGraph, log),
		Jobs:      services.NewJobsService(runner, r.AnalysisJobs, r.AnalysisResults, log),
		JobRunner: runner,
	}, nil
}
