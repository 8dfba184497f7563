// Package pipeline hosts the memory engine: the ingest state machine that
// routes records across the relational, vector, graph, and recency stores,
// and the hybrid retrieval pipelines over the same stores.
package pipeline

import (
	"time"

	"github.com/mnemora/mnemora-backend/internal/data/graph"
	"github.com/mnemora/mnemora-backend/internal/data/repos/memories"
	dvector "github.com/mnemora/mnemora-backend/internal/data/vector"
	"github.com/mnemora/mnemora-backend/internal/domain/memory"
	"github.com/mnemora/mnemora-backend/internal/modules/memory/analyzer"
	"github.com/mnemora/mnemora-backend/internal/modules/memory/recency"
	"github.com/mnemora/mnemora-backend/internal/platform/envutil"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
)

type Engine struct {
	repo     memories.MemoryRepo
	index    dvector.ConceptIndex
	graph    graph.MemoryGraph
	cache    recency.Cache
	analyzer analyzer.Analyzer
	log      *logger.Logger
	tuning   *Tuning

	sqlTimeout    time.Duration
	vectorTimeout time.Duration
	graphTimeout  time.Duration

	highSimilarity  float64
	defaultStrategy string
	defaultDepth    int
}

func NewEngine(
	repo memories.MemoryRepo,
	index dvector.ConceptIndex,
	memoryGraph graph.MemoryGraph,
	cache recency.Cache,
	an analyzer.Analyzer,
	log *logger.Logger,
) *Engine {
	scoped := log.With("component", "MemoryEngine")

	strategy := envutil.Str("MEMORY_RERANK_DEFAULT", memory.StrategyHybrid)
	switch strategy {
	case memory.StrategyHybrid, memory.StrategyText, memory.StrategyLLM:
	default:
		scoped.Warn("unknown MEMORY_RERANK_DEFAULT, using hybrid", "value", strategy)
		strategy = memory.StrategyHybrid
	}

	return &Engine{
		repo:     repo,
		index:    index,
		graph:    memoryGraph,
		cache:    cache,
		analyzer: an,
		log:      scoped,
		tuning:   currentTuning(scoped),

		sqlTimeout:    time.Duration(envutil.Int("SQL_SEARCH_TIMEOUT_MS", 2000)) * time.Millisecond,
		vectorTimeout: time.Duration(envutil.Int("VECTOR_SEARCH_TIMEOUT_MS", 3000)) * time.Millisecond,
		graphTimeout:  time.Duration(envutil.Int("GRAPH_SEARCH_TIMEOUT_MS", 3000)) * time.Millisecond,

		highSimilarity:  envutil.Float("MEMORY_HIGH_SIMILARITY_THRESHOLD", 0.8),
		defaultStrategy: strategy,
		defaultDepth:    envutil.Int("MEMORY_GRAPH_DEPTH_DEFAULT", 2),
	}
}
