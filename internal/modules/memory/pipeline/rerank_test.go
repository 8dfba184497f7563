package pipeline

import (
	"testing"
	"time"

	"github.com/mnemora/mnemora-backend/internal/data/graph"
	dvector "github.com/mnemora/mnemora-backend/internal/data/vector"
	"github.com/mnemora/mnemora-backend/internal/domain/memory"
)

func TestTextScoreRanksOverlap(t *testing.T) {
	query := tokenize("sailing regatta")
	match := textScore(query, "Sailing regatta", "we sailed the regatta course")
	miss := textScore(query, "Cooking", "pasta and tomatoes")
	if match <= miss {
		t.Fatalf("match=%v miss=%v", match, miss)
	}
	if miss != 0 {
		t.Fatalf("unrelated doc should score 0, got %v", miss)
	}
	if got := textScore(nil, "anything", "at all"); got != 0 {
		t.Fatalf("empty query scores %v", got)
	}
}

func TestRecencyDecay(t *testing.T) {
	now := time.Now().UTC()
	fresh := recencyDecay(now, now, 30)
	if fresh < 0.99 || fresh > 1 {
		t.Fatalf("fresh decay = %v", fresh)
	}
	half := recencyDecay(now, now.Add(-30*24*time.Hour), 30)
	if half < 0.49 || half > 0.51 {
		t.Fatalf("half-life decay = %v", half)
	}
	if recencyDecay(now, time.Time{}, 30) != 0 {
		t.Fatal("zero created_at decays to 0")
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("Segeln, über die Bucht! A x1")
	want := []string{"segeln", "über", "die", "bucht", "x1"}
	if len(got) != len(want) {
		t.Fatalf("tokens = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tokens = %v, want %v", got, want)
		}
	}
}

func TestSortResultsTieRules(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	results := []memory.SearchResult{
		{RecordID: 1, Score: 0.5, CreatedAt: base},
		{RecordID: 2, Score: 0.5, CreatedAt: base.Add(time.Hour)},
		{RecordID: 3, Score: 0.9, CreatedAt: base},
		{RecordID: 4, Score: 0.5, CreatedAt: base.Add(time.Hour)},
	}
	sortResults(results)

	wantOrder := []int64{3, 4, 2, 1}
	for i, want := range wantOrder {
		if results[i].RecordID != want {
			t.Fatalf("position %d = record %d, want %d", i, results[i].RecordID, want)
		}
	}
}

func TestMergeBranchesSources(t *testing.T) {
	rows := []*memory.Memory{
		{ID: 1, Topic: "Sailing trip", Content: "bay crossing", Category: "kernerinnerungen"},
	}
	hits := []dvector.ConceptHit{
		{SourceRecordID: 1, Similarity: 0.7},
		{SourceRecordID: 1, Similarity: 0.9},
		{SourceRecordID: 42, Title: "knots", Description: "rope work", Similarity: 0.6, SourceTopic: "Knots"},
		{SourceRecordID: 0, Similarity: 0.5}, // dropped: no back-pointer
	}

	merged := mergeBranches(rows, hits)
	if len(merged) != 2 {
		t.Fatalf("merged %d results, want 2", len(merged))
	}
	if merged[0].Source != memory.SourceBoth || merged[0].VectorSimilarity != 0.9 {
		t.Fatalf("record 1 merged wrong: %+v", merged[0])
	}
	if merged[1].Source != memory.SourceVector || merged[1].Topic != "Knots" || merged[1].Content != "rope work" {
		t.Fatalf("record 42 not reconstructed: %+v", merged[1])
	}
}

func TestMergeGraphScores(t *testing.T) {
	results := []memory.SearchResult{{RecordID: 1, Source: memory.SourceSQL}}
	hits := []graph.GraphRecord{
		{RecordID: 2, Topic: "Harbor evening", Category: "kernerinnerungen"},
	}
	rels := []memory.GraphRelationship{
		{FromRecordID: 1, ToRecordID: 2, Type: graph.EdgeConceptSimilar, Strength: 0.4},
		{FromRecordID: 3, ToRecordID: 2, Type: graph.EdgeSameCategory, Strength: 0.8},
	}

	merged := mergeGraph(results, hits, rels, nil)
	if len(merged) != 2 {
		t.Fatalf("merged %d results, want 2", len(merged))
	}
	two := findResult(merged, 2)
	if two == nil || two.Source != memory.SourceGraph {
		t.Fatalf("record 2: %+v", two)
	}
	// Two edges into the set, mean strength 0.6.
	if two.GraphScore < 1.19 || two.GraphScore > 1.21 {
		t.Fatalf("graph score = %v, want 1.2", two.GraphScore)
	}
	one := findResult(merged, 1)
	if one.GraphScore < 0.39 || one.GraphScore > 0.41 {
		t.Fatalf("record 1 graph score = %v, want 0.4", one.GraphScore)
	}
}
