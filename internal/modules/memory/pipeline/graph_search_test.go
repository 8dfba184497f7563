package pipeline

import (
	"context"
	"testing"

	"github.com/mnemora/mnemora-backend/internal/data/graph"
	dvector "github.com/mnemora/mnemora-backend/internal/data/vector"
	"github.com/mnemora/mnemora-backend/internal/domain/memory"
	"github.com/mnemora/mnemora-backend/internal/modules/memory/policy"
)

// seedSailingGraph stores record 1 in SQL and graph, record 2 in the graph
// only, and one concept-similar edge between them.
func seedSailingGraph(t *testing.T, f *engineFixture) int64 {
	t.Helper()
	ctx := context.Background()

	id := seedRow(t, f, policy.CategoryKern, "Sailing trip", "sailing across the bay at dawn")
	row, _ := f.repo.Get(ctx, nil, id)
	if _, err := f.graph.UpsertNode(ctx, row, []string{"sailing", "regatta"}); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}

	neighbor := &memory.Memory{ID: 2, Category: policy.CategoryKern, Topic: "Harbor evening", Date: "2026-08-20"}
	if _, err := f.graph.UpsertNode(ctx, neighbor, []string{"sailing", "harbor"}); err != nil {
		t.Fatalf("UpsertNode neighbor: %v", err)
	}
	if ok, err := f.graph.Link(ctx, graph.NodeID(id), graph.NodeID(2), graph.EdgeConceptSimilar, map[string]any{"strength": 0.6}); err != nil || !ok {
		t.Fatalf("Link: ok=%v err=%v", ok, err)
	}
	return id
}

func TestSearchGraphExpandsNeighborhood(t *testing.T) {
	f := newFixture(7)
	id := seedSailingGraph(t, f)
	f.index.hits = []dvector.ConceptHit{vectorHit(id, "sailing", 0.8)}

	resp, err := f.engine.SearchGraph(context.Background(), memory.GraphSearchRequest{Query: "sailing"})
	if err != nil {
		t.Fatalf("SearchGraph: %v", err)
	}
	if resp.GraphContext.Depth != 2 {
		t.Fatalf("default depth = %d, want 2", resp.GraphContext.Depth)
	}
	if resp.Sources.Graph.Count != 2 || resp.GraphContext.RelatedCount != 2 {
		t.Fatalf("graph branch count=%d related=%d, want 2", resp.Sources.Graph.Count, resp.GraphContext.RelatedCount)
	}

	// Record 2 exists only in the graph.
	graphOnly := findResult(resp.Results, 2)
	if graphOnly == nil || graphOnly.Source != memory.SourceGraph {
		t.Fatalf("record 2 should surface with source graph: %+v", graphOnly)
	}
	if graphOnly.GraphScore <= 0 {
		t.Fatalf("graph score = %v, want > 0", graphOnly.GraphScore)
	}

	var edge *memory.GraphRelationship
	for i := range resp.Relationships {
		if resp.Relationships[i].FromRecordID == id && resp.Relationships[i].ToRecordID == 2 {
			edge = &resp.Relationships[i]
		}
	}
	if edge == nil || edge.Type != graph.EdgeConceptSimilar {
		t.Fatalf("missing concept-similar edge, relationships: %+v", resp.Relationships)
	}
	if resp.GraphContext.Cluster.EdgeTypes[graph.EdgeConceptSimilar] == 0 {
		t.Fatal("edge type histogram should count the traversed edge")
	}
	if resp.GraphContext.Cluster.NodesTraversed < 2 {
		t.Fatalf("nodes traversed = %d", resp.GraphContext.Cluster.NodesTraversed)
	}
}

func TestSearchGraphIncludeRelatedFalse(t *testing.T) {
	f := newFixture(7)
	id := seedSailingGraph(t, f)
	f.index.hits = []dvector.ConceptHit{vectorHit(id, "sailing", 0.8)}

	resp, err := f.engine.SearchGraph(context.Background(), memory.GraphSearchRequest{
		Query:          "sailing",
		IncludeRelated: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("SearchGraph: %v", err)
	}
	if resp.Sources.Graph.Count != 0 || len(resp.Relationships) != 0 || resp.GraphContext.RelatedCount != 0 {
		t.Fatalf("traversal should be skipped: %+v", resp)
	}
	if findResult(resp.Results, 2) != nil {
		t.Fatal("graph-only records must not appear without traversal")
	}
}

func TestSearchGraphRespectsCategoryFilter(t *testing.T) {
	f := newFixture(7)
	ctx := context.Background()

	id := seedRow(t, f, policy.CategoryErlebnisse, "Sailing trip", "sailing across the bay at dawn")
	row, _ := f.repo.Get(ctx, nil, id)
	if _, err := f.graph.UpsertNode(ctx, row, []string{"sailing"}); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}

	inSet := &memory.Memory{ID: 2, Category: policy.CategoryErlebnisse, Topic: "Regatta day", Date: "2026-08-20"}
	if _, err := f.graph.UpsertNode(ctx, inSet, []string{"sailing"}); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}
	outOfSet := &memory.Memory{ID: 99, Category: policy.CategoryHumor, Topic: "Boat pun", Date: "2026-08-20"}
	if _, err := f.graph.UpsertNode(ctx, outOfSet, []string{"sailing"}); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}

	resp, err := f.engine.SearchGraph(ctx, memory.GraphSearchRequest{
		Query:      "sailing",
		Categories: []string{policy.CategoryErlebnisse},
	})
	if err != nil {
		t.Fatalf("SearchGraph: %v", err)
	}
	if findResult(resp.Results, 99) != nil {
		t.Fatal("graph-only record outside the requested categories must be dropped")
	}
	if res := findResult(resp.Results, 2); res == nil || res.Source != memory.SourceGraph {
		t.Fatalf("in-set graph-only record should survive the filter: %+v", res)
	}
	for _, res := range resp.Results {
		if res.Source != memory.SourceVector && res.Category != policy.CategoryErlebnisse {
			t.Fatalf("result %d has category %q from source %q", res.RecordID, res.Category, res.Source)
		}
	}
}

func TestSearchGraphDepthClamp(t *testing.T) {
	f := newFixture(7)
	seedRow(t, f, policy.CategoryKern, "Sailing trip", "sailing across the bay")

	resp, err := f.engine.SearchGraph(context.Background(), memory.GraphSearchRequest{Query: "sailing", MaxDepth: 9})
	if err != nil {
		t.Fatalf("SearchGraph: %v", err)
	}
	if resp.GraphContext.Depth != 3 {
		t.Fatalf("depth = %d, want clamp to 3", resp.GraphContext.Depth)
	}

	resp, err = f.engine.SearchGraph(context.Background(), memory.GraphSearchRequest{Query: "sailing", MaxDepth: -1})
	if err != nil {
		t.Fatalf("SearchGraph: %v", err)
	}
	if resp.GraphContext.Depth != 1 {
		t.Fatalf("depth = %d, want clamp to 1", resp.GraphContext.Depth)
	}
}

func TestSearchGraphDepthOneStopsAtDirectNeighbors(t *testing.T) {
	f := newFixture(7)
	ctx := context.Background()
	id := seedSailingGraph(t, f)

	// Second hop: 2 -> 3.
	far := &memory.Memory{ID: 3, Category: policy.CategoryKern, Topic: "Chandlery visit", Date: "2026-08-19"}
	if _, err := f.graph.UpsertNode(ctx, far, []string{"harbor", "gear"}); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}
	if ok, err := f.graph.Link(ctx, graph.NodeID(2), graph.NodeID(3), graph.EdgeConceptSimilar, nil); err != nil || !ok {
		t.Fatalf("Link: ok=%v err=%v", ok, err)
	}
	f.index.hits = []dvector.ConceptHit{vectorHit(id, "sailing", 0.8)}

	resp, err := f.engine.SearchGraph(context.Background(), memory.GraphSearchRequest{Query: "sailing", MaxDepth: 1})
	if err != nil {
		t.Fatalf("SearchGraph: %v", err)
	}
	for _, rel := range resp.Relationships {
		if rel.FromRecordID == 2 && rel.ToRecordID == 3 {
			t.Fatal("depth 1 must not traverse the second hop")
		}
	}
}
