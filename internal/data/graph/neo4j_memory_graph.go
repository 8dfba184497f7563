package graph

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/mnemora/mnemora-backend/internal/domain/memory"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
	"github.com/mnemora/mnemora-backend/internal/platform/memerr"
	"github.com/mnemora/mnemora-backend/internal/platform/neo4jdb"
)

type neo4jMemoryGraph struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

// NewNeo4jMemoryGraph wraps a connected driver. The uniqueness constraint
// is created best-effort; restricted users keep working without it.
func NewNeo4jMemoryGraph(ctx context.Context, client *neo4jdb.Client, log *logger.Logger) (MemoryGraph, error) {
	if client == nil || client.Driver == nil {
		return nil, fmt.Errorf("neo4j memory graph: nil client")
	}
	g := &neo4jMemoryGraph{client: client, log: log.With("component", "Neo4jMemoryGraph")}

	session := g.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	if res, err := session.Run(ctx, `CREATE CONSTRAINT memory_node_id_unique IF NOT EXISTS FOR (m:Memory) REQUIRE m.id IS UNIQUE`, nil); err != nil {
		g.log.Warn("neo4j schema init failed (continuing)", "error", err)
	} else {
		_, _ = res.Consume(ctx)
	}
	return g, nil
}

func (g *neo4jMemoryGraph) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return g.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: g.client.Database,
	})
}

func (g *neo4jMemoryGraph) UpsertNode(ctx context.Context, rec *memory.Memory, concepts []string) (string, error) {
	if rec == nil {
		return "", memerr.New(memerr.KindInvalidInput, "graph.upsert", "nil record")
	}
	nodeID := NodeID(rec.ID)

	session := g.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (m:Memory {id: $id})
SET m.record_id = $record_id,
    m.category = $category,
    m.topic = $topic,
    m.date = $date,
    m.concepts = $concepts,
    m.synced_at = $synced_at
`, map[string]any{
			"id":        nodeID,
			"record_id": rec.ID,
			"category":  rec.Category,
			"topic":     rec.Topic,
			"date":      rec.Date,
			"concepts":  toAnySlice(concepts),
			"synced_at": time.Now().UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return "", memerr.MapGraph("graph.upsert", err)
	}
	return nodeID, nil
}

func (g *neo4jMemoryGraph) Link(ctx context.Context, fromNodeID, toNodeID, edgeType string, props map[string]any) (bool, error) {
	if edgeType == "" || fromNodeID == "" || toNodeID == "" {
		return false, memerr.New(memerr.KindInvalidInput, "graph.link", "missing edge endpoint or type")
	}

	session := g.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	created, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// Relationship types cannot be parameterized; the type lives on a
		// property of a single RELATES relationship kind.
		res, err := tx.Run(ctx, `
MATCH (a:Memory {id: $from})
MATCH (b:Memory {id: $to})
MERGE (a)-[e:RELATES {type: $type}]->(b)
SET e.strength = coalesce($props.strength, e.strength, 0.5),
    e += $props
RETURN count(e) AS n
`, map[string]any{
			"from":  fromNodeID,
			"to":    toNodeID,
			"type":  edgeType,
			"props": normalizeProps(props),
		})
		if err != nil {
			return false, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return false, err
		}
		n, _ := rec.Get("n")
		count, _ := n.(int64)
		return count > 0, nil
	})
	if err != nil {
		if isNoSingleRecord(err) {
			return false, nil
		}
		return false, memerr.MapGraph("graph.link", err)
	}
	ok, _ := created.(bool)
	return ok, nil
}

func (g *neo4jMemoryGraph) FindRelated(ctx context.Context, rec *memory.Memory, seeds []string) ([]RelatedNode, error) {
	if rec == nil || len(seeds) == 0 {
		return nil, nil
	}

	session := g.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	rows, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (m:Memory)
WHERE m.id <> $self AND size([c IN m.concepts WHERE c IN $seeds]) > 0
WITH m, [c IN m.concepts WHERE c IN $seeds] AS shared
RETURN m.id AS id, m.record_id AS record_id, m.category AS category,
       m.topic AS topic, m.date AS date, shared, size(m.concepts) AS total
ORDER BY size(shared) DESC
LIMIT 25
`, map[string]any{
			"self":  NodeID(rec.ID),
			"seeds": toAnySlice(seeds),
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, memerr.MapGraph("graph.find_related", err)
	}

	records, _ := rows.([]*neo4j.Record)
	out := make([]RelatedNode, 0, len(records))
	for _, r := range records {
		node := RelatedNode{
			NodeID:   recordString(r, "id"),
			RecordID: recordInt(r, "record_id"),
			Category: recordString(r, "category"),
			Topic:    recordString(r, "topic"),
			Date:     recordString(r, "date"),
		}
		node.SharedConcepts = recordStrings(r, "shared")
		total := recordInt(r, "total")
		union := int64(len(seeds)) + total - int64(len(node.SharedConcepts))
		if union > 0 {
			node.OverlapScore = float64(len(node.SharedConcepts)) / float64(union)
		}
		out = append(out, node)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OverlapScore > out[j].OverlapScore })
	return out, nil
}

func (g *neo4jMemoryGraph) SearchByConcepts(ctx context.Context, seeds []string, limit int) ([]GraphRecord, error) {
	if len(seeds) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	session := g.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	rows, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (m:Memory)
WITH m, size([c IN m.concepts WHERE c IN $seeds]) AS matches
WHERE matches > 0
RETURN m.id AS id, m.record_id AS record_id, m.category AS category,
       m.topic AS topic, m.date AS date, m.concepts AS concepts, matches
ORDER BY matches DESC
LIMIT $limit
`, map[string]any{
			"seeds": toAnySlice(seeds),
			"limit": limit,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, memerr.MapGraph("graph.search_concepts", err)
	}

	records, _ := rows.([]*neo4j.Record)
	out := make([]GraphRecord, 0, len(records))
	for _, r := range records {
		out = append(out, GraphRecord{
			NodeID:     recordString(r, "id"),
			RecordID:   recordInt(r, "record_id"),
			Category:   recordString(r, "category"),
			Topic:      recordString(r, "topic"),
			Date:       recordString(r, "date"),
			Concepts:   recordStrings(r, "concepts"),
			MatchCount: int(recordInt(r, "matches")),
		})
	}
	return out, nil
}

func (g *neo4jMemoryGraph) Neighborhood(ctx context.Context, nodeID string, depth int, types []string) (*NeighborhoodResult, error) {
	depth = clampDepth(depth)

	session := g.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf(`
MATCH (center:Memory {id: $id})
OPTIONAL MATCH path = (center)-[:RELATES*1..%d]-(peer:Memory)
WHERE ALL(e IN relationships(path) WHERE size($types) = 0 OR e.type IN $types)
WITH center, collect(DISTINCT peer) AS peers, collect(path) AS paths
RETURN center.id AS id, center.record_id AS record_id, center.category AS category,
       center.topic AS topic, center.date AS date, center.concepts AS concepts,
       [p IN peers | {id: p.id, record_id: p.record_id, category: p.category,
                      topic: p.topic, date: p.date, concepts: p.concepts}] AS related,
       [p IN paths | [e IN relationships(p) |
           {from: startNode(e).id, to: endNode(e).id, type: e.type,
            strength: coalesce(e.strength, 0.5)}]] AS rel_paths
`, depth), map[string]any{
			"id":    nodeID,
			"types": toAnySlice(types),
		})
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		if isNoSingleRecord(err) {
			return nil, nil
		}
		return nil, memerr.MapGraph("graph.neighborhood", err)
	}

	rec, _ := result.(*neo4j.Record)
	if rec == nil {
		return nil, nil
	}

	out := &NeighborhoodResult{
		Center: GraphRecord{
			NodeID:   recordString(rec, "id"),
			RecordID: recordInt(rec, "record_id"),
			Category: recordString(rec, "category"),
			Topic:    recordString(rec, "topic"),
			Date:     recordString(rec, "date"),
			Concepts: recordStrings(rec, "concepts"),
		},
		Depth:     depth,
		EdgeTypes: map[string]int{},
	}

	if raw, ok := rec.Get("related"); ok {
		if list, ok := raw.([]any); ok {
			for _, item := range list {
				m, ok := item.(map[string]any)
				if ok && m["id"] != nil {
					out.Related = append(out.Related, GraphRecord{
						NodeID:   anyString(m["id"]),
						RecordID: anyInt(m["record_id"]),
						Category: anyString(m["category"]),
						Topic:    anyString(m["topic"]),
						Date:     anyString(m["date"]),
						Concepts: anyStrings(m["concepts"]),
					})
				}
			}
		}
	}

	seen := map[string]bool{}
	if raw, ok := rec.Get("rel_paths"); ok {
		if paths, ok := raw.([]any); ok {
			for _, p := range paths {
				edges, ok := p.([]any)
				if !ok {
					continue
				}
				for _, e := range edges {
					m, ok := e.(map[string]any)
					if !ok {
						continue
					}
					rel := Relationship{
						FromNodeID: anyString(m["from"]),
						ToNodeID:   anyString(m["to"]),
						Type:       anyString(m["type"]),
						Strength:   anyFloat(m["strength"]),
					}
					key := rel.FromNodeID + "|" + rel.ToNodeID + "|" + rel.Type
					if seen[key] {
						continue
					}
					seen[key] = true
					out.Relationships = append(out.Relationships, rel)
					out.EdgeTypes[rel.Type]++
				}
			}
		}
	}
	out.NodesTraversed = len(out.Related) + 1
	return out, nil
}

func (g *neo4jMemoryGraph) RemoveNode(ctx context.Context, recordID int64) error {
	session := g.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (m:Memory {id: $id}) DETACH DELETE m`, map[string]any{"id": NodeID(recordID)})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return memerr.MapGraph("graph.remove", err)
	}
	return nil
}

func (g *neo4jMemoryGraph) Stats(ctx context.Context) (*GraphStats, error) {
	session := g.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (m:Memory)
OPTIONAL MATCH (m)-[e:RELATES]->()
WITH count(DISTINCT m) AS nodes, collect(e) AS edges
UNWIND CASE WHEN size(edges) = 0 THEN [null] ELSE edges END AS edge
WITH nodes, edge WHERE edge IS NOT NULL
RETURN nodes, count(edge) AS edge_count, collect(edge.type) AS edge_types
`, nil)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, memerr.MapGraph("graph.stats", err)
	}

	stats := &GraphStats{EdgesByType: map[string]int64{}}
	records, _ := result.([]*neo4j.Record)
	if len(records) > 0 {
		r := records[0]
		stats.NodeCount = recordInt(r, "nodes")
		stats.EdgeCount = recordInt(r, "edge_count")
		for _, t := range recordStrings(r, "edge_types") {
			stats.EdgesByType[t]++
		}
	} else if nodes, err := g.countNodes(ctx); err == nil {
		stats.NodeCount = nodes
	}

	top, err := g.topConnected(ctx, 5)
	if err == nil {
		stats.TopConnected = top
	}
	return stats, nil
}

func (g *neo4jMemoryGraph) countNodes(ctx context.Context) (int64, error) {
	session := g.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (m:Memory) RETURN count(m) AS n`, nil)
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		return 0, err
	}
	rec, _ := result.(*neo4j.Record)
	if rec == nil {
		return 0, nil
	}
	return recordInt(rec, "n"), nil
}

func (g *neo4jMemoryGraph) topConnected(ctx context.Context, limit int) ([]ConnectedNode, error) {
	session := g.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (m:Memory)
OPTIONAL MATCH (m)-[e:RELATES]-()
WITH m, count(e) AS degree
WHERE degree > 0
RETURN m.id AS id, m.topic AS topic, degree
ORDER BY degree DESC
LIMIT $limit
`, map[string]any{"limit": limit})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	records, _ := result.([]*neo4j.Record)
	out := make([]ConnectedNode, 0, len(records))
	for _, r := range records {
		out = append(out, ConnectedNode{
			NodeID: recordString(r, "id"),
			Topic:  recordString(r, "topic"),
			Degree: recordInt(r, "degree"),
		})
	}
	return out, nil
}

func isNoSingleRecord(err error) bool {
	if err == nil {
		return false
	}
	var usage *neo4j.UsageError
	if ok := asUsageError(err, &usage); ok {
		return true
	}
	return false
}

func asUsageError(err error, target **neo4j.UsageError) bool {
	u, ok := err.(*neo4j.UsageError)
	if ok {
		*target = u
	}
	return ok
}

func normalizeProps(props map[string]any) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	return props
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func recordString(r *neo4j.Record, key string) string {
	v, _ := r.Get(key)
	return anyString(v)
}

func recordInt(r *neo4j.Record, key string) int64 {
	v, _ := r.Get(key)
	return anyInt(v)
}

func recordStrings(r *neo4j.Record, key string) []string {
	v, _ := r.Get(key)
	return anyStrings(v)
}

func anyString(v any) string {
	s, _ := v.(string)
	return s
}

func anyInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	default:
		return 0
	}
}

func anyFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func anyStrings(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
