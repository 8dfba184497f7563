package pipeline

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mnemora/mnemora-backend/internal/domain/memory"
	"github.com/mnemora/mnemora-backend/internal/modules/memory/analyzer"
)

// rerank scores and sorts results in place according to the strategy.
// Returns the strategy actually applied (llm falls back to text when the
// analyzer is unavailable).
func (e *Engine) rerank(ctx context.Context, strategy string, query string, results []memory.SearchResult, graphWeights bool) string {
	switch strategy {
	case memory.StrategyText:
		e.rerankText(query, results)
	case memory.StrategyLLM:
		if err := e.rerankLLM(ctx, query, results); err != nil {
			e.log.Warn("llm rerank failed, falling back to text", "error", err)
			e.rerankText(query, results)
			strategy = memory.StrategyText
		}
	default:
		e.rerankHybrid(query, results, graphWeights)
		strategy = memory.StrategyHybrid
	}
	sortResults(results)
	return strategy
}

func (e *Engine) rerankText(query string, results []memory.SearchResult) {
	queryTokens := tokenize(query)
	for i := range results {
		results[i].Score = textScore(queryTokens, results[i].Topic, results[i].Content)
	}
}

func (e *Engine) rerankHybrid(query string, results []memory.SearchResult, graphWeights bool) {
	queryTokens := tokenize(query)
	now := time.Now().UTC()
	halfLife := e.tuning.Rerank.HalfLifeDays

	wText := e.tuning.Rerank.Hybrid.Text
	wVector := e.tuning.Rerank.Hybrid.Vector
	wRecency := e.tuning.Rerank.Hybrid.Recency
	wGraph := 0.0
	if graphWeights {
		wText = e.tuning.Rerank.Graph.Text
		wVector = e.tuning.Rerank.Graph.Vector
		wRecency = e.tuning.Rerank.Graph.Recency
		wGraph = e.tuning.Rerank.Graph.Graph
	}

	for i := range results {
		r := &results[i]
		score := wText*textScore(queryTokens, r.Topic, r.Content) +
			wVector*r.VectorSimilarity +
			wRecency*recencyDecay(now, r.CreatedAt, halfLife)
		if graphWeights {
			score += wGraph * clampUnit(r.GraphScore)
		}
		r.Score = score
	}
}

func (e *Engine) rerankLLM(ctx context.Context, query string, results []memory.SearchResult) error {
	if len(results) == 0 {
		return nil
	}
	candidates := make([]analyzer.Candidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, analyzer.Candidate{
			ID:      strconv.FormatInt(r.RecordID, 10),
			Topic:   r.Topic,
			Content: r.Content,
		})
	}
	scores, err := e.analyzer.ScoreRelevance(ctx, query, candidates)
	if err != nil {
		return err
	}
	for i := range results {
		results[i].Score = scores[strconv.FormatInt(results[i].RecordID, 10)]
	}
	return nil
}

// textScore blends token-overlap Jaccard with a length-normalized term
// frequency (BM25 without corpus statistics), both in [0,1].
func textScore(queryTokens []string, topic, content string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	docTokens := tokenize(topic + " " + content)
	if len(docTokens) == 0 {
		return 0
	}

	docSet := make(map[string]int, len(docTokens))
	for _, t := range docTokens {
		docSet[t]++
	}
	querySet := make(map[string]bool, len(queryTokens))
	for _, t := range queryTokens {
		querySet[t] = true
	}

	shared := 0
	for t := range querySet {
		if docSet[t] > 0 {
			shared++
		}
	}
	union := len(querySet) + len(docSet) - shared
	jaccard := 0.0
	if union > 0 {
		jaccard = float64(shared) / float64(union)
	}

	// BM25-lite: saturated term frequency with document-length damping.
	const k1 = 1.2
	const b = 0.75
	avgLen := 64.0
	norm := k1 * (1 - b + b*float64(len(docTokens))/avgLen)
	var tfScore float64
	for t := range querySet {
		tf := float64(docSet[t])
		tfScore += (tf * (k1 + 1)) / (tf + norm)
	}
	tfScore /= float64(len(querySet)) * (k1 + 1) // normalize to [0,1]

	return 0.5*jaccard + 0.5*tfScore
}

// recencyDecay is exponential over age with a configurable half-life.
func recencyDecay(now, createdAt time.Time, halfLifeDays float64) float64 {
	if createdAt.IsZero() || halfLifeDays <= 0 {
		return 0
	}
	ageDays := now.Sub(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Pow(0.5, ageDays/halfLifeDays)
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && !('À' <= r && r <= 'ſ')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}

func clampUnit(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
