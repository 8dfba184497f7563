package chromem

import (
	"context"
	"testing"

	"github.com/mnemora/mnemora-backend/internal/platform/logger"
	"github.com/mnemora/mnemora-backend/internal/platform/vector"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(logger.NewNop(), "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	err := s.Upsert(context.Background(), []vector.Point{
		{ID: "1:0", Values: []float32{1, 0, 0}, Payload: map[string]any{"source_category": "humor", "source_record_id": int64(1)}},
		{ID: "2:0", Values: []float32{0.9, 0.1, 0}, Payload: map[string]any{"source_category": "erlebnisse", "source_record_id": int64(2)}},
		{ID: "3:0", Values: []float32{0, 0, 1}, Payload: map[string]any{"source_category": "humor", "source_record_id": int64(3)}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
}

func TestQueryOrdersBySimilarity(t *testing.T) {
	s := newStore(t)
	seed(t, s)

	matches, err := s.Query(context.Background(), []float32{1, 0, 0}, 3, vector.Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
	if matches[0].ID != "1:0" {
		t.Errorf("closest match = %s, want 1:0", matches[0].ID)
	}
	for _, m := range matches {
		if m.Score < 0 || m.Score > 1 {
			t.Errorf("score %f out of [0,1]", m.Score)
		}
	}
}

func TestQueryCategoryFilter(t *testing.T) {
	s := newStore(t)
	seed(t, s)

	matches, err := s.Query(context.Background(), []float32{1, 0, 0}, 3, vector.Filter{
		AnyOf: map[string][]string{"source_category": {"humor"}},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for _, m := range matches {
		if m.Payload["source_category"] != "humor" {
			t.Errorf("filter leaked category %v", m.Payload["source_category"])
		}
	}
}

func TestUpsertIsIdempotentByID(t *testing.T) {
	s := newStore(t)
	seed(t, s)
	seed(t, s)

	matches, err := s.Query(context.Background(), []float32{1, 0, 0}, 10, vector.Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	seen := map[string]int{}
	for _, m := range matches {
		seen[m.ID]++
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("duplicate id %s after re-upsert", id)
		}
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 distinct ids, got %d", len(seen))
	}
}

func TestDeleteByIDs(t *testing.T) {
	s := newStore(t)
	seed(t, s)

	if err := s.DeleteByIDs(context.Background(), []string{"1:0", "3:0"}); err != nil {
		t.Fatalf("DeleteByIDs: %v", err)
	}
	matches, err := s.Query(context.Background(), []float32{1, 0, 0}, 10, vector.Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "2:0" {
		t.Fatalf("expected only 2:0 to remain, got %+v", matches)
	}
}
