package pipeline

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	dvector "github.com/mnemora/mnemora-backend/internal/data/vector"
	"github.com/mnemora/mnemora-backend/internal/domain/memory"
	"github.com/mnemora/mnemora-backend/internal/observability"
	"github.com/mnemora/mnemora-backend/internal/platform/memerr"
)

// branches holds the raw fan-out output before merging.
type branches struct {
	sqlRows []*memory.Memory
	sqlErr  error
	vecHits []dvector.ConceptHit
	vecErr  error
}

// SearchIntelligent runs the concurrent SQL+vector fan-out, merges by record
// id, and reranks with the requested strategy. A failed branch contributes
// an empty list, never an aborted search.
func (e *Engine) SearchIntelligent(ctx context.Context, req memory.SearchRequest) (*memory.SearchResponse, error) {
	started := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "memory.search")
	defer span.End()

	if strings.TrimSpace(req.Query) == "" {
		return nil, memerr.New(memerr.KindInvalidInput, "search", "empty query")
	}
	span.SetAttributes(attribute.String("memory.query", req.Query))

	strategy := req.Strategy
	switch strategy {
	case memory.StrategyHybrid, memory.StrategyText, memory.StrategyLLM:
	case "":
		strategy = e.defaultStrategy
	default:
		return nil, memerr.New(memerr.KindInvalidInput, "search", "unknown strategy "+strategy)
	}

	br := e.fanOut(ctx, req.Query, req.Categories)

	results := mergeBranches(br.sqlRows, br.vecHits)
	resp := &memory.SearchResponse{
		Sources: memory.SearchSources{
			SQL:    branchReport(len(br.sqlRows), br.sqlErr),
			Vector: branchReport(len(br.vecHits), br.vecErr),
		},
		Strategy: strategy,
	}

	if req.EnableRerank == nil || *req.EnableRerank {
		resp.Strategy = e.rerank(ctx, strategy, req.Query, results, false)
		resp.Reranked = true
	}

	switch {
	case len(br.sqlRows) == 0 && len(br.vecHits) > 0:
		resp.Strategy = "vector_only"
	case br.vecErr != nil:
		resp.Strategy = "sql_only"
	}

	resp.Results = results
	resp.TotalFound = len(results)
	resp.ElapsedMS = time.Since(started).Milliseconds()

	observability.Current().ObserveSearch("intelligent", resp.Strategy, "ok", time.Since(started))
	return resp, nil
}

// SearchConcepts is the raw pass-through to the concept index, ordered by
// similarity. No merging, no rerank.
func (e *Engine) SearchConcepts(ctx context.Context, query string, k int, categories []string) ([]dvector.ConceptHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, memerr.New(memerr.KindInvalidInput, "search", "empty query")
	}
	if k <= 0 {
		k = e.tuning.Fanout.VectorK
	}
	return e.index.SearchSimilar(ctx, query, k, categories)
}

func (e *Engine) fanOut(ctx context.Context, query string, categories []string) *branches {
	br := &branches{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sqlCtx, cancel := context.WithTimeout(gctx, e.sqlTimeout)
		defer cancel()
		rows, err := e.repo.SearchBasic(sqlCtx, nil, query, categories, e.tuning.Fanout.SQLLimit)
		if err != nil {
			br.sqlErr = err
			observability.Current().IncSearchBranch("sql", "error")
			e.log.Warn("sql search branch failed", "error", err)
			return nil
		}
		br.sqlRows = rows
		observability.Current().IncSearchBranch("sql", "ok")
		return nil
	})
	g.Go(func() error {
		vecCtx, cancel := context.WithTimeout(gctx, e.vectorTimeout)
		defer cancel()
		hits, err := e.index.SearchSimilar(vecCtx, query, e.tuning.Fanout.VectorK, categories)
		if err != nil {
			br.vecErr = err
			observability.Current().IncSearchBranch("vector", "error")
			e.log.Warn("vector search branch failed", "error", err)
			return nil
		}
		br.vecHits = hits
		observability.Current().IncSearchBranch("vector", "ok")
		return nil
	})
	_ = g.Wait()
	return br
}

func branchReport(count int, err error) memory.BranchReport {
	r := memory.BranchReport{Count: count}
	if err != nil {
		r.Err = err.Error()
	}
	return r
}
