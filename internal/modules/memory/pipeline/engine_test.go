package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/mnemora/mnemora-backend/internal/data/graph"
	dvector "github.com/mnemora/mnemora-backend/internal/data/vector"
	"github.com/mnemora/mnemora-backend/internal/domain/memory"
	"github.com/mnemora/mnemora-backend/internal/modules/memory/analyzer"
	"github.com/mnemora/mnemora-backend/internal/modules/memory/policy"
	"github.com/mnemora/mnemora-backend/internal/modules/memory/recency"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
	"github.com/mnemora/mnemora-backend/internal/platform/memerr"
)

// fakeRepo is an in-memory MemoryRepo.
type fakeRepo struct {
	mu     sync.Mutex
	rows   map[int64]*memory.Memory
	nextID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: map[int64]*memory.Memory{}}
}

func (f *fakeRepo) Insert(ctx context.Context, tx *gorm.DB, category, topic, content, date string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.rows[f.nextID] = &memory.Memory{
		ID: f.nextID, Category: category, Topic: topic, Content: content, Date: date,
		CreatedAt: time.Now().UTC(),
	}
	return f.nextID, nil
}

func (f *fakeRepo) Get(ctx context.Context, tx *gorm.DB, id int64) (*memory.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (f *fakeRepo) Delete(ctx context.Context, tx *gorm.DB, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[id]
	delete(f.rows, id)
	return ok, nil
}

func (f *fakeRepo) Relocate(ctx context.Context, tx *gorm.DB, id int64, newCategory string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return false, nil
	}
	row.Category = newCategory
	return true, nil
}

func (f *fakeRepo) SearchBasic(ctx context.Context, tx *gorm.DB, query string, categories []string, limit int) ([]*memory.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	needle := strings.ToLower(query)
	var out []*memory.Memory
	for _, row := range f.rows {
		if needle != "" && !strings.Contains(strings.ToLower(row.Topic), needle) &&
			!strings.Contains(strings.ToLower(row.Content), needle) {
			continue
		}
		if len(categories) > 0 && !containsString(categories, row.Category) {
			continue
		}
		cp := *row
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeRepo) ByCategory(ctx context.Context, tx *gorm.DB, category string, limit int) ([]*memory.Memory, error) {
	return f.SearchBasic(ctx, tx, "", []string{category}, limit)
}

func (f *fakeRepo) Recent(ctx context.Context, tx *gorm.DB, limit int) ([]*memory.Memory, error) {
	return f.SearchBasic(ctx, tx, "", nil, limit)
}

func (f *fakeRepo) Stats(ctx context.Context, tx *gorm.DB) (*memory.StoreStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &memory.StoreStats{PerCategory: map[string]int64{}}
	for _, row := range f.rows {
		stats.PerCategory[row.Category]++
		stats.Total++
	}
	return stats, nil
}

// fakeIndex is an in-memory ConceptIndex.
type fakeIndex struct {
	mu       sync.Mutex
	stored   map[int64][]memory.Concept
	hits     []dvector.ConceptHit
	failNext bool
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{stored: map[int64][]memory.Concept{}}
}

func (f *fakeIndex) StoreConcepts(ctx context.Context, rec *memory.Memory, concepts []memory.Concept) (*dvector.StoreReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		return &dvector.StoreReceipt{}, memerr.New(memerr.KindVectorUnavailable, "vector.upsert", "backend down")
	}
	f.stored[rec.ID] = memory.AttachSource(rec, concepts)
	return &dvector.StoreReceipt{Success: true, CountStored: len(concepts)}, nil
}

func (f *fakeIndex) SearchSimilar(ctx context.Context, query string, k int, categories []string) ([]dvector.ConceptHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		return nil, memerr.New(memerr.KindVectorUnavailable, "vector.search", "backend down")
	}
	return f.hits, nil
}

func (f *fakeIndex) DeleteByRecord(ctx context.Context, rec *memory.Memory, conceptCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.stored, rec.ID)
	return nil
}

// fakeAnalyzer returns canned concepts and judgments.
type fakeAnalyzer struct {
	concepts    []memory.Concept
	extractErr  error
	significant bool
	reason      string
	scores      map[string]float64
	scoreErr    error
}

func (f *fakeAnalyzer) ExtractAndAnalyze(ctx context.Context, rec *memory.Memory) ([]memory.Concept, error) {
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	out := make([]memory.Concept, len(f.concepts))
	copy(out, f.concepts)
	return out, nil
}

func (f *fakeAnalyzer) JudgeSignificance(ctx context.Context, rec *memory.Memory, t policy.AnalyzedType) (*analyzer.Judgment, error) {
	reason := f.reason
	if reason == "" {
		reason = "routine event"
	}
	return &analyzer.Judgment{Significant: f.significant, Reason: reason}, nil
}

func (f *fakeAnalyzer) ScoreRelevance(ctx context.Context, query string, candidates []analyzer.Candidate) (map[string]float64, error) {
	if f.scoreErr != nil {
		return nil, f.scoreErr
	}
	return f.scores, nil
}

func conceptsOf(analyzedType string, titles ...string) []memory.Concept {
	out := make([]memory.Concept, 0, len(titles))
	for _, title := range titles {
		out = append(out, memory.Concept{
			Title:        title,
			Description:  "description of " + title,
			AnalyzedType: analyzedType,
			Confidence:   0.9,
			Mood:         memory.MoodNeutral,
			Keywords:     []string{title + "-kw"},
		})
	}
	return out
}

type engineFixture struct {
	engine   *Engine
	repo     *fakeRepo
	index    *fakeIndex
	graph    graph.MemoryGraph
	cache    *recency.Ring
	analyzer *fakeAnalyzer
}

func newFixture(capacity int) *engineFixture {
	f := &engineFixture{
		repo:     newFakeRepo(),
		index:    newFakeIndex(),
		graph:    graph.NewLocalMemoryGraph(logger.NewNop()),
		cache:    recency.NewRing(capacity),
		analyzer: &fakeAnalyzer{},
	}
	f.engine = NewEngine(f.repo, f.index, f.graph, f.cache, f.analyzer, logger.NewNop())
	return f
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func boolPtr(b bool) *bool { return &b }
