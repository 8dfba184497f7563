package pipeline

import (
	"sort"

	"github.com/mnemora/mnemora-backend/internal/data/graph"
	dvector "github.com/mnemora/mnemora-backend/internal/data/vector"
	"github.com/mnemora/mnemora-backend/internal/domain/memory"
)

// mergeBranches joins the SQL and vector fan-out by record id. Records seen
// by both branches carry source "both" plus the vector similarity; vector-only
// entries are reconstructed from concept back-pointers because their parent
// row may be gone.
func mergeBranches(sqlRows []*memory.Memory, vectorHits []dvector.ConceptHit) []memory.SearchResult {
	byID := make(map[int64]*memory.SearchResult, len(sqlRows)+len(vectorHits))
	order := make([]int64, 0, len(sqlRows)+len(vectorHits))

	for _, row := range sqlRows {
		if row == nil {
			continue
		}
		if _, ok := byID[row.ID]; ok {
			continue
		}
		byID[row.ID] = &memory.SearchResult{
			RecordID:  row.ID,
			Category:  row.Category,
			Topic:     row.Topic,
			Content:   row.Content,
			Date:      row.Date,
			CreatedAt: row.CreatedAt,
			Source:    memory.SourceSQL,
		}
		order = append(order, row.ID)
	}

	for _, hit := range vectorHits {
		if hit.SourceRecordID == 0 {
			continue
		}
		if existing, ok := byID[hit.SourceRecordID]; ok {
			existing.Source = memory.SourceBoth
			if hit.Similarity > existing.VectorSimilarity {
				existing.VectorSimilarity = hit.Similarity
			}
			continue
		}
		byID[hit.SourceRecordID] = &memory.SearchResult{
			RecordID:         hit.SourceRecordID,
			Category:         hit.SourceCategory,
			Topic:            hit.SourceTopic,
			Content:          hit.Description,
			Date:             hit.SourceDate,
			CreatedAt:        hit.SourceCreatedAt,
			Source:           memory.SourceVector,
			VectorSimilarity: hit.Similarity,
		}
		order = append(order, hit.SourceRecordID)
	}

	out := make([]memory.SearchResult, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

// mergeGraph folds graph hits into an existing result set. Graph-only
// entries get source "graph" and must match the requested categories when the
// caller restricted them; every result receives a graph score from the edges
// pointing into the seed record set.
func mergeGraph(results []memory.SearchResult, graphHits []graph.GraphRecord, relationships []memory.GraphRelationship, categories []string) []memory.SearchResult {
	byID := make(map[int64]int, len(results))
	for i := range results {
		byID[results[i].RecordID] = i
	}

	allowed := map[string]bool{}
	for _, c := range categories {
		allowed[c] = true
	}

	for _, hit := range graphHits {
		if hit.RecordID == 0 {
			continue
		}
		if len(allowed) > 0 && !allowed[hit.Category] {
			continue
		}
		if _, ok := byID[hit.RecordID]; ok {
			continue
		}
		results = append(results, memory.SearchResult{
			RecordID: hit.RecordID,
			Category: hit.Category,
			Topic:    hit.Topic,
			Date:     hit.Date,
			Source:   memory.SourceGraph,
		})
		byID[hit.RecordID] = len(results) - 1
	}

	// edge count into the seed set times mean edge strength, per record
	type agg struct {
		count    int
		strength float64
	}
	edges := map[int64]*agg{}
	addEdge := func(id int64, strength float64) {
		a, ok := edges[id]
		if !ok {
			a = &agg{}
			edges[id] = a
		}
		a.count++
		a.strength += strength
	}
	for _, rel := range relationships {
		if _, ok := byID[rel.FromRecordID]; ok {
			addEdge(rel.FromRecordID, rel.Strength)
		}
		if _, ok := byID[rel.ToRecordID]; ok {
			addEdge(rel.ToRecordID, rel.Strength)
		}
	}
	for id, a := range edges {
		if a.count == 0 {
			continue
		}
		results[byID[id]].GraphScore = float64(a.count) * (a.strength / float64(a.count))
	}
	return results
}

// sortResults applies the tie rules: higher score first, then newer
// created_at, then higher record id.
func sortResults(results []memory.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.After(results[j].CreatedAt)
		}
		return results[i].RecordID > results[j].RecordID
	})
}
