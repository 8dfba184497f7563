package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/mnemora/mnemora-backend/internal/data/graph"
	"github.com/mnemora/mnemora-backend/internal/domain/memory"
	"github.com/mnemora/mnemora-backend/internal/modules/memory/policy"
	"github.com/mnemora/mnemora-backend/internal/observability"
	"github.com/mnemora/mnemora-backend/internal/platform/memerr"
)

const maxTopicLen = 512

// placement is the outcome of the judge step.
type placement struct {
	keepPermanent   bool
	recencyEligible bool
	analyzedType    policy.AnalyzedType
	category        string
	reason          string
}

// analyzedLabel is the type reported back to the caller; a record with no
// concepts carries its caller category instead.
func (p placement) analyzedLabel() string {
	if p.analyzedType != "" {
		return string(p.analyzedType)
	}
	return p.category
}

// Ingest runs one record through the state machine: persist tentative,
// analyze, judge, index and link concurrently, finalize, recency. Only the
// tentative insert and the analyzer are fatal; every other failure degrades
// a response flag.
func (e *Engine) Ingest(ctx context.Context, req memory.IngestRequest) (*memory.IngestResult, error) {
	started := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "memory.ingest")
	defer span.End()

	// Validate.
	if err := validateIngest(req); err != nil {
		observability.Current().ObserveIngest("invalid", "none", "rejected", time.Since(started))
		return nil, err
	}

	// Persist tentative.
	today := time.Now().UTC().Format("2006-01-02")
	id, err := e.repo.Insert(ctx, nil, req.Category, req.Topic, req.Content, today)
	if err != nil {
		e.log.Error("ingest persist failed", "error", err)
		observability.Current().ObserveIngest("unknown", "none", "failed", time.Since(started))
		return nil, memerr.Wrap(memerr.KindStoreUnavailable, "persist", err)
	}
	span.SetAttributes(attribute.Int64("memory.record_id", id))

	rec := &memory.Memory{
		ID:        id,
		Date:      today,
		Category:  req.Category,
		Topic:     req.Topic,
		Content:   req.Content,
		CreatedAt: time.Now().UTC(),
	}

	// Analyze. A failure here aborts the ingest and removes the tentative
	// row; concepts never reached any index.
	concepts, err := e.analyzer.ExtractAndAnalyze(ctx, rec)
	if err != nil {
		if _, delErr := e.repo.Delete(ctx, nil, id); delErr != nil {
			e.log.Warn("tentative row cleanup failed", "record_id", id, "error", delErr)
		}
		observability.Current().ObserveIngest("unknown", "none", "failed", time.Since(started))
		return nil, err
	}

	pl := e.judge(ctx, rec, concepts)

	result := &memory.IngestResult{
		Success:            true,
		AnalyzedCategory:   pl.analyzedLabel(),
		SignificanceReason: pl.reason,
	}

	// Index concepts and link the graph concurrently; neither depends on
	// the other and neither failure aborts the ingest.
	seeds := conceptSeeds(concepts)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		receipt, err := e.index.StoreConcepts(gctx, rec, concepts)
		if err != nil {
			e.log.Warn("vector indexing failed", "record_id", id, "error", err)
			return nil
		}
		result.StoredInVector = receipt.Success && receipt.CountStored > 0
		return nil
	})
	g.Go(func() error {
		if !pl.keepPermanent && len(seeds) == 0 {
			return nil
		}
		stored, created := e.linkGraph(gctx, rec, seeds, req.ForcedRelationships)
		result.StoredInGraph = stored
		result.RelationshipsCreated = created
		return nil
	})
	_ = g.Wait()

	// Finalize the relational row: keep (relocating if the policy category
	// differs) or delete. No tentative row survives this step.
	if pl.keepPermanent {
		result.StoredInPermanent = true
		result.MemoryID = id
		if pl.category != req.Category {
			if _, err := e.repo.Relocate(ctx, nil, id, pl.category); err != nil {
				e.log.Warn("relocate failed, record keeps caller category", "record_id", id, "error", err)
			}
		}
	} else {
		if _, err := e.repo.Delete(ctx, nil, id); err != nil {
			e.log.Warn("tentative row delete failed", "record_id", id, "error", err)
		}
	}

	// Recency keeps the original id even though the row is gone.
	if pl.recencyEligible && e.cache != nil {
		slot := memory.RecencySlot{
			RecordID:   id,
			Category:   req.Category,
			Topic:      req.Topic,
			Content:    req.Content,
			InsertedAt: time.Now().UTC(),
		}
		if err := e.cache.Append(ctx, slot); err != nil {
			e.log.Warn("recency append failed", "record_id", id, "error", err)
		} else if n, err := e.cache.Len(ctx); err == nil && n > 0 {
			result.StoredInRecency = true
			observability.Current().SetRecencyFill(n)
		}
	}

	observability.Current().ObserveIngest(string(pl.analyzedType), placementLabel(result), "ok", time.Since(started))
	e.log.Info("ingest finished",
		"record_id", id,
		"analyzed_category", result.AnalyzedCategory,
		"permanent", result.StoredInPermanent,
		"vector", result.StoredInVector,
		"graph", result.StoredInGraph,
		"recency", result.StoredInRecency,
		"relationships", result.RelationshipsCreated,
	)
	return result, nil
}

func validateIngest(req memory.IngestRequest) error {
	if !policy.IsValidCategory(req.Category) {
		return memerr.New(memerr.KindInvalidInput, "validate", fmt.Sprintf("unknown category %q", req.Category))
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return memerr.New(memerr.KindInvalidInput, "validate", "empty topic")
	}
	if len([]rune(topic)) > maxTopicLen {
		return memerr.New(memerr.KindInvalidInput, "validate", "topic exceeds 512 characters")
	}
	if strings.TrimSpace(req.Content) == "" {
		return memerr.New(memerr.KindInvalidInput, "validate", "empty content")
	}
	return nil
}

// judge derives the routing decision. The first concept's analyzed type is
// authoritative; factual types never reach permanent storage or recency.
func (e *Engine) judge(ctx context.Context, rec *memory.Memory, concepts []memory.Concept) placement {
	if len(concepts) == 0 {
		return placement{
			category: rec.Category,
			reason:   "no concepts extracted",
		}
	}

	analyzedType, _ := policy.ParseAnalyzedType(concepts[0].AnalyzedType)
	pl := placement{
		analyzedType: analyzedType,
		category:     policy.MapToStorage(analyzedType),
	}

	if policy.IsFactual(analyzedType) {
		pl.reason = fmt.Sprintf("type %s is never stored permanently", analyzedType)
		return pl
	}

	judgment, err := e.analyzer.JudgeSignificance(ctx, rec, analyzedType)
	if err != nil || judgment == nil {
		pl.reason = "judgment unavailable"
		pl.recencyEligible = true
		return pl
	}
	pl.keepPermanent = judgment.Significant
	pl.recencyEligible = !judgment.Significant
	pl.reason = judgment.Reason
	return pl
}

// linkGraph upserts the record node, creates forced edges first, then the
// strongest applicable inferred edge per related neighbor.
func (e *Engine) linkGraph(ctx context.Context, rec *memory.Memory, seeds []string, forced []memory.ForcedRelationship) (stored bool, created int) {
	nodeID, err := e.graph.UpsertNode(ctx, rec, seeds)
	if err != nil {
		e.log.Warn("graph upsert failed", "record_id", rec.ID, "error", err)
		return false, 0
	}
	stored = true

	// Forced edges run before inferred ones so their properties win.
	for _, f := range forced {
		if f.TargetID == 0 || f.Type == "" {
			continue
		}
		ok, err := e.graph.Link(ctx, nodeID, graph.NodeID(f.TargetID), f.Type, f.Properties)
		if err != nil {
			e.log.Warn("forced relationship failed", "record_id", rec.ID, "target", f.TargetID, "error", err)
			continue
		}
		if !ok {
			e.log.Warn("forced relationship target missing", "record_id", rec.ID, "target", f.TargetID)
			continue
		}
		created++
	}

	related, err := e.graph.FindRelated(ctx, rec, seeds)
	if err != nil {
		e.log.Warn("graph find-related failed", "record_id", rec.ID, "error", err)
		return stored, created
	}
	for _, neighbor := range related {
		edgeType := graph.EdgeConceptSimilar
		if neighbor.OverlapScore > e.highSimilarity {
			edgeType = graph.EdgeHighlySimilar
		}
		props := map[string]any{"strength": neighbor.OverlapScore}
		if ok, err := e.graph.Link(ctx, nodeID, neighbor.NodeID, edgeType, props); err == nil && ok {
			created++
		}
		if neighbor.Category == rec.Category {
			if ok, err := e.graph.Link(ctx, nodeID, neighbor.NodeID, graph.EdgeSameCategory, nil); err == nil && ok {
				created++
			}
		}
		if neighbor.Date != "" && neighbor.Date == rec.Date {
			if ok, err := e.graph.Link(ctx, nodeID, neighbor.NodeID, graph.EdgeTemporalAdjacent, nil); err == nil && ok {
				created++
			}
		}
	}
	return stored, created
}

func conceptSeeds(concepts []memory.Concept) []string {
	seen := map[string]bool{}
	var seeds []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		seeds = append(seeds, s)
	}
	for _, c := range concepts {
		add(c.Title)
		for _, k := range c.Keywords {
			add(k)
		}
	}
	return seeds
}

func placementLabel(r *memory.IngestResult) string {
	switch {
	case r.StoredInPermanent:
		return "permanent"
	case r.StoredInRecency:
		return "recency"
	default:
		return "none"
	}
}
