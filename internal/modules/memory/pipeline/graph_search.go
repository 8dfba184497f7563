package pipeline

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mnemora/mnemora-backend/internal/data/graph"
	"github.com/mnemora/mnemora-backend/internal/domain/memory"
	"github.com/mnemora/mnemora-backend/internal/observability"
	"github.com/mnemora/mnemora-backend/internal/platform/memerr"
)

// SearchGraph augments the hybrid fan-out with graph traversal: seed
// concepts from the first pass select graph records and neighborhoods, and
// the rerank blends a graph score into the final order.
func (e *Engine) SearchGraph(ctx context.Context, req memory.GraphSearchRequest) (*memory.GraphSearchResponse, error) {
	started := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "memory.search_graph")
	defer span.End()

	if strings.TrimSpace(req.Query) == "" {
		return nil, memerr.New(memerr.KindInvalidInput, "search", "empty query")
	}
	span.SetAttributes(attribute.String("memory.query", req.Query))

	depth := req.MaxDepth
	if depth == 0 {
		depth = e.defaultDepth
	}
	if depth < 1 {
		depth = 1
	}
	if depth > 3 {
		depth = 3
	}

	br := e.fanOut(ctx, req.Query, req.Categories)
	results := mergeBranches(br.sqlRows, br.vecHits)

	resp := &memory.GraphSearchResponse{
		Sources: memory.SearchSources{
			SQL:    branchReport(len(br.sqlRows), br.sqlErr),
			Vector: branchReport(len(br.vecHits), br.vecErr),
		},
		GraphContext: memory.GraphContext{
			Cluster: memory.GraphCluster{EdgeTypes: map[string]int{}},
		},
	}

	includeRelated := req.IncludeRelated == nil || *req.IncludeRelated
	if includeRelated {
		seeds := e.graphSeeds(br)
		graphHits, relationships, graphErr := e.traverse(ctx, seeds, results, depth, &resp.GraphContext)
		resp.Sources.Graph = branchReport(len(graphHits), graphErr)
		resp.Relationships = relationships
		resp.GraphContext.RelatedCount = len(graphHits)
		resp.GraphContext.Depth = depth
		results = mergeGraph(results, graphHits, relationships, req.Categories)
	}

	e.rerankHybrid(req.Query, results, true)
	sortResults(results)

	resp.Results = results
	resp.TotalFound = len(results)
	resp.ElapsedMS = time.Since(started).Milliseconds()

	observability.Current().ObserveSearch("graph", memory.StrategyHybrid, "ok", time.Since(started))
	return resp, nil
}

// graphSeeds unions the vector-hit concept titles with topic terms from the
// top SQL hits.
func (e *Engine) graphSeeds(br *branches) []string {
	seen := map[string]bool{}
	var seeds []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		seeds = append(seeds, s)
	}
	for _, hit := range br.vecHits {
		add(hit.Title)
	}
	for i, row := range br.sqlRows {
		if i >= e.tuning.Graph.SeedSQLHits {
			break
		}
		for _, tok := range tokenize(row.Topic) {
			add(tok)
		}
	}
	return seeds
}

// traverse runs the graph branch: concept match plus a bounded neighborhood
// walk per top seed record, sequential, under one branch timeout.
func (e *Engine) traverse(ctx context.Context, seeds []string, seedResults []memory.SearchResult, depth int, gc *memory.GraphContext) ([]graph.GraphRecord, []memory.GraphRelationship, error) {
	if len(seeds) == 0 {
		return nil, nil, nil
	}
	gctx, cancel := context.WithTimeout(ctx, e.graphTimeout)
	defer cancel()

	hits, err := e.graph.SearchByConcepts(gctx, seeds, e.tuning.Fanout.GraphLimit)
	if err != nil {
		observability.Current().IncSearchBranch("graph", "error")
		e.log.Warn("graph search branch failed", "error", err)
		return nil, nil, err
	}
	observability.Current().IncSearchBranch("graph", "ok")

	var relationships []memory.GraphRelationship
	seenRel := map[string]bool{}
	nodesTraversed := map[string]bool{}

	limit := e.tuning.Graph.SeedRecords
	if limit > len(seedResults) {
		limit = len(seedResults)
	}
	for i := 0; i < limit; i++ {
		nodeID := graph.NodeID(seedResults[i].RecordID)
		neighborhood, err := e.graph.Neighborhood(gctx, nodeID, depth, nil)
		if err != nil {
			e.log.Warn("neighborhood traversal failed", "node_id", nodeID, "error", err)
			continue
		}
		if neighborhood == nil {
			continue
		}
		nodesTraversed[neighborhood.Center.NodeID] = true
		for _, rec := range neighborhood.Related {
			nodesTraversed[rec.NodeID] = true
		}
		for _, rel := range neighborhood.Relationships {
			key := rel.FromNodeID + "|" + rel.ToNodeID + "|" + rel.Type
			if seenRel[key] {
				continue
			}
			seenRel[key] = true
			relationships = append(relationships, memory.GraphRelationship{
				FromRecordID: parseRecordID(rel.FromNodeID),
				ToRecordID:   parseRecordID(rel.ToNodeID),
				Type:         rel.Type,
				Strength:     rel.Strength,
			})
			gc.Cluster.EdgeTypes[rel.Type]++
		}
	}
	gc.Cluster.NodesTraversed = len(nodesTraversed)
	return hits, relationships, nil
}

func parseRecordID(nodeID string) int64 {
	id, _ := strconv.ParseInt(nodeID, 10, 64)
	return id
}
