// Package chromem backs the vector contract with an embedded chromem-go
// collection, so local and test deployments need no external vector engine.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/mnemora/mnemora-backend/internal/platform/logger"
	"github.com/mnemora/mnemora-backend/internal/platform/vector"
)

const collectionName = "memory_concepts"

// Store implements vector.Store on an in-process chromem collection.
// Embeddings always come from the caller; the collection's own embedding
// function is never used.
type Store struct {
	mu         sync.Mutex
	db         *chromemgo.DB
	collection *chromemgo.Collection
	log        *logger.Logger
}

var _ vector.Store = (*Store)(nil)

// NewStoreFromEnv opens a persistent collection under CHROMEM_PATH, or an
// in-memory one when the variable is unset.
func NewStoreFromEnv(log *logger.Logger) (*Store, error) {
	path := strings.TrimSpace(os.Getenv("CHROMEM_PATH"))
	return NewStore(log, path)
}

func NewStore(log *logger.Logger, path string) (*Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	var db *chromemgo.DB
	var err error
	if path == "" {
		db = chromemgo.NewDB()
	} else {
		db, err = chromemgo.NewPersistentDB(path, true)
		if err != nil {
			return nil, fmt.Errorf("chromem open %q: %w", path, err)
		}
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, rejectInternalEmbedding)
	if err != nil {
		return nil, fmt.Errorf("chromem collection: %w", err)
	}

	s := &Store{
		db:         db,
		collection: collection,
		log:        log.With("service", "ChromemVectorStore"),
	}
	s.log.Info("chromem vector store selected", "provider", "chromem", "path", path, "documents", collection.Count())
	return s, nil
}

// rejectInternalEmbedding guards against documents reaching chromem without
// a caller-provided vector.
func rejectInternalEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("chromem store only accepts external embeddings")
}

func (s *Store) Upsert(ctx context.Context, points []vector.Point) error {
	if len(points) == 0 {
		return nil
	}
	docs := make([]chromemgo.Document, 0, len(points))
	for _, p := range points {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return fmt.Errorf("vector id is required")
		}
		if len(p.Values) == 0 {
			return fmt.Errorf("vector %q has empty values", id)
		}
		content, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("encode payload for %q: %w", id, err)
		}
		docs = append(docs, chromemgo.Document{
			ID:        id,
			Metadata:  stringMetadata(p.Payload),
			Embedding: p.Values,
			Content:   string(content),
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// AddDocuments upserts by document id.
	return s.collection.AddDocuments(ctx, docs, 1)
}

func (s *Store) Query(ctx context.Context, q []float32, topK int, filter vector.Filter) ([]vector.Match, error) {
	if len(q) == 0 {
		return nil, fmt.Errorf("query vector required")
	}
	if topK <= 0 {
		topK = 10
	}

	s.mu.Lock()
	total := s.collection.Count()
	s.mu.Unlock()
	if total == 0 {
		return nil, nil
	}

	// Over-fetch and filter in-process: chromem's where clause is a single
	// conjunction of equalities and cannot express any-of category sets.
	fetch := topK * 4
	if fetch > total {
		fetch = total
	}
	results, err := s.collection.QueryEmbedding(ctx, q, fetch, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]vector.Match, 0, len(results))
	for _, r := range results {
		payload := decodePayload(r.Content)
		if !matchesFilter(payload, filter) {
			continue
		}
		out = append(out, vector.Match{
			ID:      r.ID,
			Score:   clampScore(float64(r.Similarity)),
			Payload: payload,
		})
		if len(out) == topK {
			break
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	return out, nil
}

func (s *Store) DeleteByIDs(ctx context.Context, ids []string) error {
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	if len(clean) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collection.Delete(ctx, nil, nil, clean...)
}

func stringMetadata(payload map[string]any) map[string]string {
	if len(payload) == 0 {
		return nil
	}
	out := make(map[string]string, len(payload))
	for k, v := range payload {
		switch t := v.(type) {
		case string:
			out[k] = t
		case fmt.Stringer:
			out[k] = t.String()
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}

func decodePayload(content string) map[string]any {
	if strings.TrimSpace(content) == "" {
		return map[string]any{}
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return map[string]any{}
	}
	return payload
}

func matchesFilter(payload map[string]any, f vector.Filter) bool {
	for k, want := range f.Equals {
		if payloadString(payload, k) != want {
			return false
		}
	}
	for k, wants := range f.AnyOf {
		if len(wants) == 0 {
			continue
		}
		got := payloadString(payload, k)
		found := false
		for _, w := range wants {
			if got == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func payloadString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
