package pipeline

import (
	"context"
	"testing"
	"time"

	dvector "github.com/mnemora/mnemora-backend/internal/data/vector"
	"github.com/mnemora/mnemora-backend/internal/domain/memory"
	"github.com/mnemora/mnemora-backend/internal/modules/memory/policy"
	"github.com/mnemora/mnemora-backend/internal/platform/memerr"
)

func seedRow(t *testing.T, f *engineFixture, category, topic, content string) int64 {
	t.Helper()
	id, err := f.repo.Insert(context.Background(), nil, category, topic, content, "2026-08-26")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return id
}

func vectorHit(recordID int64, title string, sim float64) dvector.ConceptHit {
	return dvector.ConceptHit{
		ConceptID:       "x",
		Title:           title,
		Description:     "description of " + title,
		Similarity:      sim,
		SourceRecordID:  recordID,
		SourceCategory:  policy.CategoryKern,
		SourceTopic:     title,
		SourceDate:      "2026-08-20",
		SourceCreatedAt: time.Now().UTC().Add(-time.Hour),
	}
}

func findResult(results []memory.SearchResult, id int64) *memory.SearchResult {
	for i := range results {
		if results[i].RecordID == id {
			return &results[i]
		}
	}
	return nil
}

func TestSearchIntelligentMergesBranches(t *testing.T) {
	f := newFixture(7)
	id := seedRow(t, f, policy.CategoryKern, "Sailing trip", "sailing across the bay at dawn")
	seedRow(t, f, policy.CategoryHumor, "Cooking", "burned the pasta again")
	f.index.hits = []dvector.ConceptHit{
		vectorHit(id, "sailing", 0.91),
		vectorHit(777, "sailing knots", 0.64),
	}

	resp, err := f.engine.SearchIntelligent(context.Background(), memory.SearchRequest{Query: "sailing"})
	if err != nil {
		t.Fatalf("SearchIntelligent: %v", err)
	}
	if resp.TotalFound != 2 {
		t.Fatalf("TotalFound = %d, want 2", resp.TotalFound)
	}
	if resp.Sources.SQL.Count != 1 || resp.Sources.Vector.Count != 2 {
		t.Fatalf("branch counts sql=%d vector=%d", resp.Sources.SQL.Count, resp.Sources.Vector.Count)
	}
	if !resp.Reranked || resp.Strategy != memory.StrategyHybrid {
		t.Fatalf("reranked=%v strategy=%q", resp.Reranked, resp.Strategy)
	}

	both := findResult(resp.Results, id)
	if both == nil || both.Source != memory.SourceBoth {
		t.Fatalf("record %d should carry source both: %+v", id, both)
	}
	if both.VectorSimilarity != 0.91 {
		t.Fatalf("similarity = %v", both.VectorSimilarity)
	}

	// The vector-only result is rebuilt from concept back-pointers.
	orphan := findResult(resp.Results, 777)
	if orphan == nil || orphan.Source != memory.SourceVector {
		t.Fatalf("record 777 should carry source vector: %+v", orphan)
	}
	if orphan.Topic != "sailing knots" || orphan.Content == "" {
		t.Fatalf("orphan not reconstructed: %+v", orphan)
	}
}

func TestSearchIntelligentVectorOnlyStrategy(t *testing.T) {
	f := newFixture(7)
	f.index.hits = []dvector.ConceptHit{vectorHit(777, "sailing", 0.8)}

	resp, err := f.engine.SearchIntelligent(context.Background(), memory.SearchRequest{Query: "sailing"})
	if err != nil {
		t.Fatalf("SearchIntelligent: %v", err)
	}
	if resp.Strategy != "vector_only" {
		t.Fatalf("strategy = %q, want vector_only", resp.Strategy)
	}
}

func TestSearchIntelligentSQLOnlyOnVectorError(t *testing.T) {
	f := newFixture(7)
	seedRow(t, f, policy.CategoryKern, "Sailing trip", "sailing across the bay")
	f.index.failNext = true

	resp, err := f.engine.SearchIntelligent(context.Background(), memory.SearchRequest{Query: "sailing"})
	if err != nil {
		t.Fatalf("a failed branch must not abort the search: %v", err)
	}
	if resp.Strategy != "sql_only" {
		t.Fatalf("strategy = %q, want sql_only", resp.Strategy)
	}
	if resp.Sources.Vector.Err == "" {
		t.Fatal("vector branch error should be reported")
	}
	if resp.TotalFound != 1 {
		t.Fatalf("TotalFound = %d", resp.TotalFound)
	}
}

func TestSearchIntelligentValidation(t *testing.T) {
	f := newFixture(7)
	if _, err := f.engine.SearchIntelligent(context.Background(), memory.SearchRequest{Query: "  "}); !memerr.IsKind(err, memerr.KindInvalidInput) {
		t.Fatalf("empty query: %v", err)
	}
	if _, err := f.engine.SearchIntelligent(context.Background(), memory.SearchRequest{Query: "x", Strategy: "bogus"}); !memerr.IsKind(err, memerr.KindInvalidInput) {
		t.Fatalf("unknown strategy: %v", err)
	}
}

func TestSearchIntelligentRerankDisabled(t *testing.T) {
	f := newFixture(7)
	seedRow(t, f, policy.CategoryKern, "Sailing trip", "sailing across the bay")

	resp, err := f.engine.SearchIntelligent(context.Background(), memory.SearchRequest{
		Query:        "sailing",
		Strategy:     memory.StrategyText,
		EnableRerank: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("SearchIntelligent: %v", err)
	}
	if resp.Reranked {
		t.Fatal("rerank should be skipped")
	}
	if resp.Strategy != memory.StrategyText {
		t.Fatalf("strategy = %q", resp.Strategy)
	}
	if resp.Results[0].Score != 0 {
		t.Fatalf("unreranked results keep zero scores, got %v", resp.Results[0].Score)
	}
}

func TestSearchIntelligentLLMOrdersByScores(t *testing.T) {
	f := newFixture(7)
	id1 := seedRow(t, f, policy.CategoryKern, "Sailing trip", "sailing in spring")
	id2 := seedRow(t, f, policy.CategoryKern, "Sailing race", "sailing the big race")
	f.analyzer.scores = map[string]float64{"1": 0.2, "2": 0.9}

	resp, err := f.engine.SearchIntelligent(context.Background(), memory.SearchRequest{
		Query:    "sailing",
		Strategy: memory.StrategyLLM,
	})
	if err != nil {
		t.Fatalf("SearchIntelligent: %v", err)
	}
	if resp.Strategy != memory.StrategyLLM {
		t.Fatalf("strategy = %q", resp.Strategy)
	}
	if resp.Results[0].RecordID != id2 || resp.Results[1].RecordID != id1 {
		t.Fatalf("llm scores should order results, got %d then %d", resp.Results[0].RecordID, resp.Results[1].RecordID)
	}
}

func TestSearchIntelligentLLMFallsBackToText(t *testing.T) {
	f := newFixture(7)
	seedRow(t, f, policy.CategoryKern, "Sailing trip", "sailing across the bay")
	f.analyzer.scoreErr = memerr.New(memerr.KindAnalyzerUnavailable, "analyzer.score", "llm down")

	resp, err := f.engine.SearchIntelligent(context.Background(), memory.SearchRequest{
		Query:    "sailing",
		Strategy: memory.StrategyLLM,
	})
	if err != nil {
		t.Fatalf("SearchIntelligent: %v", err)
	}
	if resp.Strategy != memory.StrategyText {
		t.Fatalf("strategy = %q, want text fallback", resp.Strategy)
	}
	if resp.Results[0].Score <= 0 {
		t.Fatal("text fallback should still score matching results")
	}
}

func TestSearchConcepts(t *testing.T) {
	f := newFixture(7)
	f.index.hits = []dvector.ConceptHit{vectorHit(5, "sailing", 0.7)}

	if _, err := f.engine.SearchConcepts(context.Background(), " ", 0, nil); !memerr.IsKind(err, memerr.KindInvalidInput) {
		t.Fatalf("empty query: %v", err)
	}
	hits, err := f.engine.SearchConcepts(context.Background(), "sailing", 0, nil)
	if err != nil {
		t.Fatalf("SearchConcepts: %v", err)
	}
	if len(hits) != 1 || hits[0].Title != "sailing" {
		t.Fatalf("hits = %+v", hits)
	}
}
