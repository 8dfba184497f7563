package analyzer

import (
	"context"
	"fmt"
	"testing"

	"github.com/mnemora/mnemora-backend/internal/domain/memory"
	"github.com/mnemora/mnemora-backend/internal/modules/memory/policy"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
	"github.com/mnemora/mnemora-backend/internal/platform/memerr"
)

type fakeLLM struct {
	responses []map[string]any
	errs      []error
	calls     int
}

func (f *fakeLLM) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return nil, fmt.Errorf("unexpected call %d", i)
}

func (f *fakeLLM) GenerateText(ctx context.Context, system, user string) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func goodConceptOutput() map[string]any {
	concept := func(title, analyzedType string) map[string]any {
		return map[string]any{
			"title":              title,
			"description":        "a self-contained description of " + title,
			"analyzed_type":      analyzedType,
			"confidence":         0.85,
			"mood":               "neutral",
			"keywords":           []any{"one", "two", "three"},
			"extracted_concepts": []any{title, "context"},
		}
	}
	return map[string]any{
		"concepts": []any{
			concept("harbor walk", "erlebnisse"),
			concept("evening calm", "bewusstsein"),
		},
	}
}

func testRec() *memory.Memory {
	return &memory.Memory{ID: 7, Category: "kernerinnerungen", Topic: "harbor", Content: "we walked along the harbor"}
}

func TestExtractAndAnalyzeParsesConcepts(t *testing.T) {
	llm := &fakeLLM{responses: []map[string]any{goodConceptOutput()}}
	a := New(llm, logger.NewNop())

	concepts, err := a.ExtractAndAnalyze(context.Background(), testRec())
	if err != nil {
		t.Fatalf("ExtractAndAnalyze: %v", err)
	}
	if len(concepts) != 2 {
		t.Fatalf("want 2 concepts, got %d", len(concepts))
	}
	c := concepts[0]
	if c.Title != "harbor walk" || c.AnalyzedType != "erlebnisse" || c.Confidence != 0.85 {
		t.Fatalf("concept parse: %+v", c)
	}
	if len(c.Keywords) != 3 {
		t.Fatalf("keywords: %v", c.Keywords)
	}
}

func TestExtractAndAnalyzeRetriesMalformedOnce(t *testing.T) {
	llm := &fakeLLM{responses: []map[string]any{
		{"concepts": []any{map[string]any{"title": ""}}},
		goodConceptOutput(),
	}}
	a := New(llm, logger.NewNop())

	concepts, err := a.ExtractAndAnalyze(context.Background(), testRec())
	if err != nil {
		t.Fatalf("ExtractAndAnalyze after retry: %v", err)
	}
	if llm.calls != 2 {
		t.Fatalf("want 2 calls, got %d", llm.calls)
	}
	if len(concepts) != 2 {
		t.Fatalf("want 2 concepts, got %d", len(concepts))
	}
}

func TestExtractAndAnalyzeMalformedTwiceFails(t *testing.T) {
	bad := map[string]any{"concepts": []any{map[string]any{"title": "x", "description": "y", "analyzed_type": "unbekannt"}}}
	llm := &fakeLLM{responses: []map[string]any{bad, bad}}
	a := New(llm, logger.NewNop())

	_, err := a.ExtractAndAnalyze(context.Background(), testRec())
	if !memerr.IsKind(err, memerr.KindAnalyzerMalformed) {
		t.Fatalf("want analyzer_malformed, got %v", err)
	}
	if llm.calls != 2 {
		t.Fatalf("want 2 calls, got %d", llm.calls)
	}
}

func TestExtractAndAnalyzeTransportFailure(t *testing.T) {
	llm := &fakeLLM{errs: []error{fmt.Errorf("connection refused")}}
	a := New(llm, logger.NewNop())

	_, err := a.ExtractAndAnalyze(context.Background(), testRec())
	if !memerr.IsKind(err, memerr.KindAnalyzerUnavailable) {
		t.Fatalf("want analyzer_unavailable, got %v", err)
	}
	if llm.calls != 1 {
		t.Fatalf("transport failures must not be retried here, got %d calls", llm.calls)
	}
}

func TestExtractAndAnalyzeZeroConceptsIsValid(t *testing.T) {
	llm := &fakeLLM{responses: []map[string]any{{"concepts": []any{}}}}
	a := New(llm, logger.NewNop())

	concepts, err := a.ExtractAndAnalyze(context.Background(), testRec())
	if err != nil {
		t.Fatalf("zero concepts must not error: %v", err)
	}
	if len(concepts) != 0 {
		t.Fatalf("want 0 concepts, got %d", len(concepts))
	}
}

func TestJudgeSignificance(t *testing.T) {
	llm := &fakeLLM{responses: []map[string]any{
		{"significant": true, "reason": "first-time establishment of a pattern"},
	}}
	a := New(llm, logger.NewNop())

	j, err := a.JudgeSignificance(context.Background(), testRec(), policy.TypeErlebnisse)
	if err != nil {
		t.Fatalf("JudgeSignificance: %v", err)
	}
	if !j.Significant || j.Reason == "" {
		t.Fatalf("judgment: %+v", j)
	}
}

func TestJudgeSignificanceTransportFailureDegrades(t *testing.T) {
	llm := &fakeLLM{errs: []error{fmt.Errorf("gateway timeout")}}
	a := New(llm, logger.NewNop())

	j, err := a.JudgeSignificance(context.Background(), testRec(), policy.TypeHumor)
	if err != nil {
		t.Fatalf("judgment failure must not be fatal: %v", err)
	}
	if j.Significant {
		t.Fatalf("default bias must be not significant: %+v", j)
	}
	if j.Reason == "" {
		t.Fatalf("degraded judgment needs a reason")
	}
}

func TestJudgeSignificanceMalformedDegrades(t *testing.T) {
	bad := map[string]any{"reason": "no verdict"}
	llm := &fakeLLM{responses: []map[string]any{bad, bad}}
	a := New(llm, logger.NewNop())

	j, err := a.JudgeSignificance(context.Background(), testRec(), policy.TypeHumor)
	if err != nil {
		t.Fatalf("malformed judgment must not be fatal: %v", err)
	}
	if j.Significant {
		t.Fatalf("default bias must be not significant: %+v", j)
	}
}

func TestRecordLocksDropWhenReleased(t *testing.T) {
	llm := &fakeLLM{responses: []map[string]any{
		goodConceptOutput(),
		goodConceptOutput(),
		{"significant": false, "reason": "routine"},
	}}
	a := New(llm, logger.NewNop())
	g := a.(*gateway)

	for _, id := range []int64{1, 2} {
		rec := testRec()
		rec.ID = id
		if _, err := a.ExtractAndAnalyze(context.Background(), rec); err != nil {
			t.Fatalf("ExtractAndAnalyze %d: %v", id, err)
		}
	}
	// The judge path releases its entry too.
	if _, err := a.JudgeSignificance(context.Background(), testRec(), policy.TypeErlebnisse); err != nil {
		t.Fatalf("JudgeSignificance: %v", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.locks) != 0 {
		t.Fatalf("lock map should only hold in-flight ids, has %d entries", len(g.locks))
	}
}

func TestScoreRelevance(t *testing.T) {
	llm := &fakeLLM{responses: []map[string]any{
		{"scores": []any{
			map[string]any{"id": "12", "score": 0.9},
			map[string]any{"id": "34", "score": 1.7},
		}},
	}}
	a := New(llm, logger.NewNop())

	scores, err := a.ScoreRelevance(context.Background(), "harbor", []Candidate{
		{ID: "12", Topic: "harbor walk", Content: "..."},
		{ID: "34", Topic: "boat pun", Content: "..."},
	})
	if err != nil {
		t.Fatalf("ScoreRelevance: %v", err)
	}
	if scores["12"] != 0.9 {
		t.Fatalf("score 12: %v", scores["12"])
	}
	if scores["34"] != 1 {
		t.Fatalf("score 34 must clamp to 1, got %v", scores["34"])
	}
}
