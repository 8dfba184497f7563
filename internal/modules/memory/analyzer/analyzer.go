// Package analyzer is the LLM gateway of the memory engine: concept
// extraction, significance judgment, and batched relevance scoring. Calls
// are rate-limited and serialized per record id.
package analyzer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/mnemora/mnemora-backend/internal/domain/memory"
	"github.com/mnemora/mnemora-backend/internal/modules/memory/policy"
	"github.com/mnemora/mnemora-backend/internal/platform/envutil"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
	"github.com/mnemora/mnemora-backend/internal/platform/memerr"
	"github.com/mnemora/mnemora-backend/internal/platform/openai"
)

// Judgment is the significance verdict for one record.
type Judgment struct {
	Significant bool   `json:"significant"`
	Reason      string `json:"reason"`
}

// Candidate is one search hit submitted for batched relevance scoring.
type Candidate struct {
	ID      string
	Topic   string
	Content string
}

type Analyzer interface {
	// ExtractAndAnalyze returns 2-4 self-contained concepts for rec.
	// Malformed output is retried once, then kind analyzer_malformed.
	ExtractAndAnalyze(ctx context.Context, rec *memory.Memory) ([]memory.Concept, error)
	// JudgeSignificance decides permanent storage for non-factual types.
	// Never fatal: transport or malformed output degrades to not
	// significant with a reason.
	JudgeSignificance(ctx context.Context, rec *memory.Memory, analyzedType policy.AnalyzedType) (*Judgment, error)
	// ScoreRelevance scores candidates against a query in one call,
	// values in [0,1] keyed by candidate id.
	ScoreRelevance(ctx context.Context, query string, candidates []Candidate) (map[string]float64, error)
}

type recordLock struct {
	mu   sync.Mutex
	refs int
}

type gateway struct {
	llm     openai.Client
	limiter *rate.Limiter
	log     *logger.Logger

	mu    sync.Mutex
	locks map[int64]*recordLock
}

func New(llm openai.Client, log *logger.Logger) Analyzer {
	rps := envutil.Float("ANALYZER_RPS", 2)
	if rps <= 0 {
		rps = 2
	}
	return &gateway{
		llm:     llm,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		log:     log.With("component", "Analyzer"),
		locks:   map[int64]*recordLock{},
	}
}

// lockRecord serializes analyzer calls per record id so a request retry
// cannot run two analyses of the same record concurrently. Entries are
// refcounted and dropped when the last holder releases, so the map only
// tracks in-flight ids.
func (g *gateway) lockRecord(id int64) func() {
	g.mu.Lock()
	l, ok := g.locks[id]
	if !ok {
		l = &recordLock{}
		g.locks[id] = l
	}
	l.refs++
	g.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		g.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(g.locks, id)
		}
		g.mu.Unlock()
	}
}

func (g *gateway) ExtractAndAnalyze(ctx context.Context, rec *memory.Memory) ([]memory.Concept, error) {
	if rec == nil {
		return nil, memerr.New(memerr.KindInvalidInput, "analyze", "nil record")
	}
	unlock := g.lockRecord(rec.ID)
	defer unlock()

	system, user := promptExtract(rec.Category, rec.Topic, rec.Content)

	var lastParseErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, memerr.Wrap(memerr.KindTimeout, "analyze", err)
		}
		out, err := g.llm.GenerateJSON(ctx, system, user, "memory_concepts", schemaExtract())
		if err != nil {
			return nil, memerr.Wrap(memerr.KindAnalyzerUnavailable, "analyze", err)
		}
		concepts, parseErr := parseConcepts(out)
		if parseErr == nil {
			return concepts, nil
		}
		lastParseErr = parseErr
		g.log.Warn("analyzer output malformed", "record_id", rec.ID, "attempt", attempt+1, "error", parseErr)
	}
	return nil, memerr.Wrap(memerr.KindAnalyzerMalformed, "analyze", lastParseErr)
}

func (g *gateway) JudgeSignificance(ctx context.Context, rec *memory.Memory, analyzedType policy.AnalyzedType) (*Judgment, error) {
	if rec == nil {
		return &Judgment{Significant: false, Reason: "no record to judge"}, nil
	}
	unlock := g.lockRecord(rec.ID)
	defer unlock()

	system, user := promptJudge(string(analyzedType), rec.Category, rec.Topic, rec.Content)

	for attempt := 0; attempt < 2; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return &Judgment{Significant: false, Reason: "judgment unavailable: " + err.Error()}, nil
		}
		out, err := g.llm.GenerateJSON(ctx, system, user, "memory_significance", schemaJudge())
		if err != nil {
			g.log.Warn("significance judgment failed, defaulting to not significant",
				"record_id", rec.ID, "error", err)
			return &Judgment{Significant: false, Reason: "judgment unavailable: " + err.Error()}, nil
		}
		significant, ok := out["significant"].(bool)
		if !ok {
			continue
		}
		reason, _ := out["reason"].(string)
		if strings.TrimSpace(reason) == "" {
			reason = "no reason given"
		}
		return &Judgment{Significant: significant, Reason: reason}, nil
	}
	return &Judgment{Significant: false, Reason: "judgment output malformed"}, nil
}

func (g *gateway) ScoreRelevance(ctx context.Context, query string, candidates []Candidate) (map[string]float64, error) {
	if len(candidates) == 0 {
		return map[string]float64{}, nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, memerr.Wrap(memerr.KindTimeout, "rerank", err)
	}

	items := make([]string, 0, len(candidates))
	for _, c := range candidates {
		content := c.Content
		if len(content) > 400 {
			content = content[:400]
		}
		items = append(items, fmt.Sprintf("[%s] %s: %s", c.ID, c.Topic, content))
	}
	system, user := promptScore(query, items)

	out, err := g.llm.GenerateJSON(ctx, system, user, "memory_relevance", schemaScore())
	if err != nil {
		return nil, memerr.Wrap(memerr.KindAnalyzerUnavailable, "rerank", err)
	}

	raw, ok := out["scores"].([]any)
	if !ok {
		return nil, memerr.New(memerr.KindAnalyzerMalformed, "rerank", "scores missing from analyzer output")
	}
	scores := make(map[string]float64, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["id"].(string)
		if id == "" {
			continue
		}
		scores[id] = clamp01(numberOf(m["score"]))
	}
	return scores, nil
}

func parseConcepts(out map[string]any) ([]memory.Concept, error) {
	raw, ok := out["concepts"].([]any)
	if !ok {
		return nil, fmt.Errorf("concepts missing from analyzer output")
	}
	concepts := make([]memory.Concept, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("concept %d is not an object", i)
		}
		title, _ := m["title"].(string)
		description, _ := m["description"].(string)
		if strings.TrimSpace(title) == "" || strings.TrimSpace(description) == "" {
			return nil, fmt.Errorf("concept %d missing title or description", i)
		}
		rawType, _ := m["analyzed_type"].(string)
		analyzedType, ok := policy.ParseAnalyzedType(rawType)
		if !ok {
			return nil, fmt.Errorf("concept %d has unknown analyzed_type %q", i, rawType)
		}
		mood, _ := m["mood"].(string)
		switch mood {
		case memory.MoodPositive, memory.MoodNeutral, memory.MoodNegative:
		default:
			mood = memory.MoodNeutral
		}
		concepts = append(concepts, memory.Concept{
			Title:             strings.TrimSpace(title),
			Description:       strings.TrimSpace(description),
			AnalyzedType:      string(analyzedType),
			Confidence:        clamp01(numberOf(m["confidence"])),
			Mood:              mood,
			Keywords:          stringsOf(m["keywords"]),
			ExtractedConcepts: stringsOf(m["extracted_concepts"]),
		})
	}
	// Zero concepts is valid output; the pipeline routes it to the caller
	// category with significance false.
	return concepts, nil
}

func numberOf(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func stringsOf(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
