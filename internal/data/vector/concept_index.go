// Package vector binds the embedding provider and the generic vector store
// into a concept-level index: concepts go in with their source back-pointers,
// similarity hits come out reconstructable without the relational row.
package vector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mnemora/mnemora-backend/internal/domain/memory"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
	"github.com/mnemora/mnemora-backend/internal/platform/memerr"
	"github.com/mnemora/mnemora-backend/internal/platform/openai"
	platformvector "github.com/mnemora/mnemora-backend/internal/platform/vector"
)

const defaultSearchK = 20

// StoreReceipt reports a StoreConcepts outcome. Partial failures surface in
// Errors while Success reflects whether anything was persisted.
type StoreReceipt struct {
	Success     bool     `json:"success"`
	CountStored int      `json:"count_stored"`
	Errors      []string `json:"errors,omitempty"`
}

// ConceptHit is one similarity result with enough back-pointer data to stand
// alone when the source row is gone.
type ConceptHit struct {
	ConceptID       string    `json:"concept_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	AnalyzedType    string    `json:"analyzed_type"`
	Mood            string    `json:"mood"`
	Similarity      float64   `json:"similarity"`
	SourceRecordID  int64     `json:"source_record_id"`
	SourceCategory  string    `json:"source_category"`
	SourceTopic     string    `json:"source_topic"`
	SourceDate      string    `json:"source_date"`
	SourceCreatedAt time.Time `json:"source_created_at"`
}

type ConceptIndex interface {
	StoreConcepts(ctx context.Context, rec *memory.Memory, concepts []memory.Concept) (*StoreReceipt, error)
	SearchSimilar(ctx context.Context, query string, k int, categories []string) ([]ConceptHit, error)
	DeleteByRecord(ctx context.Context, rec *memory.Memory, conceptCount int) error
}

type conceptIndex struct {
	embedder openai.Client
	store    platformvector.Store
	log      *logger.Logger
}

func NewConceptIndex(embedder openai.Client, store platformvector.Store, log *logger.Logger) ConceptIndex {
	return &conceptIndex{
		embedder: embedder,
		store:    store,
		log:      log.With("component", "ConceptIndex"),
	}
}

func (ci *conceptIndex) StoreConcepts(ctx context.Context, rec *memory.Memory, concepts []memory.Concept) (*StoreReceipt, error) {
	receipt := &StoreReceipt{}
	if rec == nil || len(concepts) == 0 {
		receipt.Success = true
		return receipt, nil
	}

	concepts = memory.AttachSource(rec, concepts)

	inputs := make([]string, len(concepts))
	for i, c := range concepts {
		inputs[i] = embeddingText(c)
	}
	vectors, err := ci.embedder.Embed(ctx, inputs)
	if err != nil {
		return receipt, memerr.MapVector("vector.embed", err)
	}
	if len(vectors) != len(concepts) {
		return receipt, memerr.New(memerr.KindVectorUnavailable, "vector.embed",
			fmt.Sprintf("embedding count mismatch: want %d, got %d", len(concepts), len(vectors)))
	}

	points := make([]platformvector.Point, 0, len(concepts))
	for i, c := range concepts {
		points = append(points, platformvector.Point{
			ID:     c.ID,
			Values: vectors[i],
			Payload: map[string]any{
				"title":             c.Title,
				"description":       c.Description,
				"analyzed_type":     c.AnalyzedType,
				"confidence":        c.Confidence,
				"mood":              c.Mood,
				"keywords":          strings.Join(c.Keywords, ","),
				"source_record_id":  strconv.FormatInt(c.SourceRecordID, 10),
				"source_category":   c.SourceCategory,
				"source_topic":      c.SourceTopic,
				"source_date":       c.SourceDate,
				"source_created_at": c.SourceCreatedAt.UTC().Format(time.RFC3339),
			},
		})
	}

	if err := ci.store.Upsert(ctx, points); err != nil {
		receipt.Errors = append(receipt.Errors, err.Error())
		return receipt, memerr.MapVector("vector.upsert", err)
	}
	receipt.Success = true
	receipt.CountStored = len(points)
	ci.log.Debug("concepts stored", "record_id", rec.ID, "count", receipt.CountStored)
	return receipt, nil
}

func (ci *conceptIndex) SearchSimilar(ctx context.Context, query string, k int, categories []string) ([]ConceptHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, memerr.New(memerr.KindInvalidInput, "vector.search", "empty query")
	}
	if k <= 0 {
		k = defaultSearchK
	}

	vectors, err := ci.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, memerr.MapVector("vector.search.embed", err)
	}
	if len(vectors) != 1 {
		return nil, memerr.New(memerr.KindVectorUnavailable, "vector.search.embed", "no embedding returned for query")
	}

	var filter platformvector.Filter
	if len(categories) > 0 {
		filter.AnyOf = map[string][]string{"source_category": categories}
	}

	matches, err := ci.store.Query(ctx, vectors[0], k, filter)
	if err != nil {
		return nil, memerr.MapVector("vector.search", err)
	}

	hits := make([]ConceptHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, hitFromMatch(m))
	}
	return hits, nil
}

// DeleteByRecord removes the concepts previously stored for a record. The
// count bounds the derived id range; ids that never existed are ignored by
// both backends.
func (ci *conceptIndex) DeleteByRecord(ctx context.Context, rec *memory.Memory, conceptCount int) error {
	if rec == nil || conceptCount <= 0 {
		return nil
	}
	ids := make([]string, 0, conceptCount)
	for i := 0; i < conceptCount; i++ {
		ids = append(ids, fmt.Sprintf("%d:%d", rec.ID, i))
	}
	if err := ci.store.DeleteByIDs(ctx, ids); err != nil {
		return memerr.MapVector("vector.delete", err)
	}
	return nil
}

func embeddingText(c memory.Concept) string {
	var b strings.Builder
	if c.Title != "" {
		b.WriteString(c.Title)
		b.WriteString("\n")
	}
	b.WriteString(c.Description)
	if len(c.Keywords) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(c.Keywords, ", "))
	}
	return b.String()
}

func hitFromMatch(m platformvector.Match) ConceptHit {
	hit := ConceptHit{
		ConceptID:  m.ID,
		Similarity: m.Score,
	}
	hit.Title = payloadString(m.Payload, "title")
	hit.Description = payloadString(m.Payload, "description")
	hit.AnalyzedType = payloadString(m.Payload, "analyzed_type")
	hit.Mood = payloadString(m.Payload, "mood")
	hit.SourceCategory = payloadString(m.Payload, "source_category")
	hit.SourceTopic = payloadString(m.Payload, "source_topic")
	hit.SourceDate = payloadString(m.Payload, "source_date")
	if raw := payloadString(m.Payload, "source_record_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			hit.SourceRecordID = id
		}
	}
	if raw := payloadString(m.Payload, "source_created_at"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			hit.SourceCreatedAt = ts
		}
	}
	return hit
}

func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	switch v := payload[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}
