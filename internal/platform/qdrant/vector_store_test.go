package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/mnemora/mnemora-backend/internal/platform/logger"
	"github.com/mnemora/mnemora-backend/internal/platform/vector"
)

type fakeQdrant struct {
	collectionExists atomic.Bool
	lastUpsert       atomic.Value // map[string]any
	lastSearch       atomic.Value // map[string]any
	searchResult     []map[string]any
}

func (f *fakeQdrant) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/collections/memory_concepts", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if !f.collectionExists.Load() {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"status":{"error":"Not found"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"result":{"config":{"params":{"vectors":{"size":4,"distance":"Cosine"}}}},"status":"ok"}`))
		case http.MethodPut:
			f.collectionExists.Store(true)
			_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/collections/memory_concepts/points", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode upsert body: %v", err)
		}
		f.lastUpsert.Store(body)
		_, _ = w.Write([]byte(`{"result":{"status":"acknowledged"},"status":"ok"}`))
	})
	mux.HandleFunc("/collections/memory_concepts/points/search", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode search body: %v", err)
		}
		f.lastSearch.Store(body)
		resp := map[string]any{"result": f.searchResult, "status": "ok"}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/collections/memory_concepts/points/delete", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"status":"acknowledged"},"status":"ok"}`))
	})
	return mux
}

func newTestStore(t *testing.T, f *fakeQdrant) *Store {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	s, err := NewStore(logger.NewNop(), Config{
		URL:        srv.URL,
		Collection: "memory_concepts",
		VectorDim:  4,
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestStoreCreatesMissingCollection(t *testing.T) {
	f := &fakeQdrant{}
	_ = newTestStore(t, f)
	if !f.collectionExists.Load() {
		t.Fatal("expected collection to be created on bootstrap")
	}
}

func TestUpsertWritesDeterministicPointIDs(t *testing.T) {
	f := &fakeQdrant{}
	f.collectionExists.Store(true)
	s := newTestStore(t, f)

	pts := []vector.Point{
		{ID: "42:0", Values: []float32{1, 0, 0, 0}, Payload: map[string]any{"source_category": "humor"}},
	}
	if err := s.Upsert(context.Background(), pts); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Upsert(context.Background(), pts); err != nil {
		t.Fatalf("Upsert again: %v", err)
	}

	body, _ := f.lastUpsert.Load().(map[string]any)
	rows, _ := body["points"].([]any)
	if len(rows) != 1 {
		t.Fatalf("expected one point, got %d", len(rows))
	}
	row := rows[0].(map[string]any)
	if row["id"] != s.pointID("42:0") {
		t.Errorf("point id not deterministic: %v", row["id"])
	}
	payload := row["payload"].(map[string]any)
	if payload[payloadVectorIDKey] != "42:0" {
		t.Errorf("payload vector id = %v", payload[payloadVectorIDKey])
	}
}

func TestUpsertRejectsDimensionMismatch(t *testing.T) {
	f := &fakeQdrant{}
	f.collectionExists.Store(true)
	s := newTestStore(t, f)

	err := s.Upsert(context.Background(), []vector.Point{{ID: "1:0", Values: []float32{1, 2}}})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestQueryFilterAndScoreClamp(t *testing.T) {
	f := &fakeQdrant{
		searchResult: []map[string]any{
			{"id": "p1", "score": 0.91, "payload": map[string]any{payloadVectorIDKey: "7:0", "source_category": "humor"}},
			{"id": "p2", "score": 1.2, "payload": map[string]any{payloadVectorIDKey: "7:1"}},
		},
	}
	f.collectionExists.Store(true)
	s := newTestStore(t, f)

	matches, err := s.Query(context.Background(), []float32{1, 0, 0, 0}, 5, vector.Filter{
		AnyOf: map[string][]string{"source_category": {"humor", "erlebnisse"}},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "7:1" || matches[0].Score != 1 {
		t.Errorf("scores not clamped/sorted: %+v", matches)
	}

	body, _ := f.lastSearch.Load().(map[string]any)
	filter, ok := body["filter"].(map[string]any)
	if !ok {
		t.Fatal("expected filter in search request")
	}
	must, _ := filter["must"].([]any)
	if len(must) != 1 {
		t.Fatalf("expected one must condition, got %v", filter)
	}
}

func TestQueryEmptyVector(t *testing.T) {
	f := &fakeQdrant{}
	f.collectionExists.Store(true)
	s := newTestStore(t, f)

	if _, err := s.Query(context.Background(), nil, 5, vector.Filter{}); err == nil {
		t.Fatal("expected validation error for empty query vector")
	}
}
