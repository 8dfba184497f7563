package vector

import (
	"context"
	"fmt"
	"testing"

	"github.com/mnemora/mnemora-backend/internal/domain/memory"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
	"github.com/mnemora/mnemora-backend/internal/platform/memerr"
	platformvector "github.com/mnemora/mnemora-backend/internal/platform/vector"
)

type fakeEmbedder struct {
	calls [][]string
	fail  bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if f.fail {
		return nil, fmt.Errorf("embedding backend down")
	}
	f.calls = append(f.calls, inputs)
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{float32(len(inputs[i])), 1, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeEmbedder) GenerateText(ctx context.Context, system, user string) (string, error) {
	return "", fmt.Errorf("not implemented")
}

type fakeStore struct {
	points  map[string]platformvector.Point
	queries []platformvector.Filter
	matches []platformvector.Match
	deleted []string
	failUp  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{points: map[string]platformvector.Point{}}
}

func (f *fakeStore) Upsert(ctx context.Context, points []platformvector.Point) error {
	if f.failUp {
		return fmt.Errorf("upsert rejected")
	}
	for _, p := range points {
		f.points[p.ID] = p
	}
	return nil
}

func (f *fakeStore) Query(ctx context.Context, q []float32, topK int, filter platformvector.Filter) ([]platformvector.Match, error) {
	f.queries = append(f.queries, filter)
	return f.matches, nil
}

func (f *fakeStore) DeleteByIDs(ctx context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

func testRecord() *memory.Memory {
	return &memory.Memory{
		ID:       42,
		Date:     "2026-08-01",
		Category: "kernerinnerungen",
		Topic:    "harbor walk",
		Content:  "we walked along the harbor at dusk",
	}
}

func TestStoreConceptsUpsertsWithBackPointers(t *testing.T) {
	emb := &fakeEmbedder{}
	store := newFakeStore()
	idx := NewConceptIndex(emb, store, logger.NewNop())

	concepts := []memory.Concept{
		{Title: "harbor", Description: "a walk along the harbor", AnalyzedType: "erlebnisse", Confidence: 0.9},
		{Title: "dusk", Description: "evening light over water", AnalyzedType: "erlebnisse", Confidence: 0.8},
	}
	receipt, err := idx.StoreConcepts(context.Background(), testRecord(), concepts)
	if err != nil {
		t.Fatalf("StoreConcepts: %v", err)
	}
	if !receipt.Success || receipt.CountStored != 2 {
		t.Fatalf("receipt: %+v", receipt)
	}

	p, ok := store.points["42:0"]
	if !ok {
		t.Fatalf("expected point 42:0, have %v", store.points)
	}
	if p.Payload["source_record_id"] != "42" || p.Payload["source_category"] != "kernerinnerungen" {
		t.Fatalf("back-pointers missing: %+v", p.Payload)
	}

	// Re-storing the same record must overwrite, not accumulate.
	if _, err := idx.StoreConcepts(context.Background(), testRecord(), concepts); err != nil {
		t.Fatalf("StoreConcepts again: %v", err)
	}
	if len(store.points) != 2 {
		t.Fatalf("duplicate accumulation: %d points", len(store.points))
	}
}

func TestStoreConceptsEmbedFailureMapsToVectorKind(t *testing.T) {
	idx := NewConceptIndex(&fakeEmbedder{fail: true}, newFakeStore(), logger.NewNop())
	_, err := idx.StoreConcepts(context.Background(), testRecord(), []memory.Concept{{Description: "x"}})
	if !memerr.IsKind(err, memerr.KindVectorUnavailable) {
		t.Fatalf("want vector_unavailable, got %v", err)
	}
}

func TestSearchSimilarFiltersAndReconstructs(t *testing.T) {
	emb := &fakeEmbedder{}
	store := newFakeStore()
	store.matches = []platformvector.Match{
		{
			ID:    "42:0",
			Score: 0.91,
			Payload: map[string]any{
				"title":             "harbor",
				"description":       "a walk along the harbor",
				"analyzed_type":     "erlebnisse",
				"source_record_id":  "42",
				"source_category":   "kernerinnerungen",
				"source_topic":      "harbor walk",
				"source_date":       "2026-08-01",
				"source_created_at": "2026-08-01T18:00:00Z",
			},
		},
	}
	idx := NewConceptIndex(emb, store, logger.NewNop())

	hits, err := idx.SearchSimilar(context.Background(), "harbor at dusk", 0, []string{"kernerinnerungen", "humor"})
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("want 1 hit, got %d", len(hits))
	}
	h := hits[0]
	if h.SourceRecordID != 42 || h.SourceCategory != "kernerinnerungen" || h.Similarity != 0.91 {
		t.Fatalf("hit reconstruction: %+v", h)
	}
	if h.SourceCreatedAt.IsZero() {
		t.Fatalf("source_created_at not parsed")
	}

	if len(store.queries) != 1 {
		t.Fatalf("want 1 query, got %d", len(store.queries))
	}
	any := store.queries[0].AnyOf["source_category"]
	if len(any) != 2 || any[0] != "kernerinnerungen" {
		t.Fatalf("category filter not forwarded: %+v", store.queries[0])
	}
}

func TestSearchSimilarRejectsEmptyQuery(t *testing.T) {
	idx := NewConceptIndex(&fakeEmbedder{}, newFakeStore(), logger.NewNop())
	if _, err := idx.SearchSimilar(context.Background(), "   ", 5, nil); !memerr.IsKind(err, memerr.KindInvalidInput) {
		t.Fatalf("want invalid_input, got %v", err)
	}
}

func TestDeleteByRecord(t *testing.T) {
	store := newFakeStore()
	idx := NewConceptIndex(&fakeEmbedder{}, store, logger.NewNop())
	if err := idx.DeleteByRecord(context.Background(), testRecord(), 3); err != nil {
		t.Fatalf("DeleteByRecord: %v", err)
	}
	if len(store.deleted) != 3 || store.deleted[0] != "42:0" || store.deleted[2] != "42:2" {
		t.Fatalf("deleted ids: %v", store.deleted)
	}
}
