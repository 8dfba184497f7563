package graph

import (
	"context"
	"errors"
	"sort"
	"sync"

	dgraph "github.com/dominikbraun/graph"

	"github.com/mnemora/mnemora-backend/internal/domain/memory"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
	"github.com/mnemora/mnemora-backend/internal/platform/memerr"
)

type edgeMeta struct {
	strength float64
	props    map[string]any
}

// localMemoryGraph keeps the structure in a dominikbraun/graph instance and
// node payloads in a map beside it. The library stores one edge per vertex
// pair, so typed edges between the same two records live in the edge's Data
// as a type -> metadata map.
type localMemoryGraph struct {
	mu    sync.RWMutex
	g     dgraph.Graph[string, string]
	nodes map[string]GraphRecord
	log   *logger.Logger
}

func NewLocalMemoryGraph(log *logger.Logger) MemoryGraph {
	return &localMemoryGraph{
		g:     dgraph.New(dgraph.StringHash, dgraph.Directed()),
		nodes: map[string]GraphRecord{},
		log:   log.With("component", "LocalMemoryGraph"),
	}
}

// typedEdges unwraps the type -> metadata map carried in an edge's Data.
func typedEdges(e dgraph.Edge[string]) map[string]edgeMeta {
	if m, ok := e.Properties.Data.(map[string]edgeMeta); ok {
		return m
	}
	return map[string]edgeMeta{}
}

func (l *localMemoryGraph) UpsertNode(ctx context.Context, rec *memory.Memory, concepts []string) (string, error) {
	if rec == nil {
		return "", memerr.New(memerr.KindInvalidInput, "graph.upsert", "nil record")
	}
	nodeID := NodeID(rec.ID)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.g.AddVertex(nodeID); err != nil && !errors.Is(err, dgraph.ErrVertexAlreadyExists) {
		return "", memerr.MapGraph("graph.upsert", err)
	}
	l.nodes[nodeID] = GraphRecord{
		NodeID:   nodeID,
		RecordID: rec.ID,
		Category: rec.Category,
		Topic:    rec.Topic,
		Date:     rec.Date,
		Concepts: append([]string(nil), concepts...),
	}
	return nodeID, nil
}

func (l *localMemoryGraph) Link(ctx context.Context, fromNodeID, toNodeID, edgeType string, props map[string]any) (bool, error) {
	if edgeType == "" || fromNodeID == "" || toNodeID == "" {
		return false, memerr.New(memerr.KindInvalidInput, "graph.link", "missing edge endpoint or type")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.nodes[fromNodeID]; !ok {
		return false, nil
	}
	if _, ok := l.nodes[toNodeID]; !ok {
		return false, nil
	}

	strength := 0.5
	if props != nil {
		if s, ok := props["strength"].(float64); ok {
			strength = s
		}
	}
	meta := edgeMeta{strength: strength, props: props}

	existing, err := l.g.Edge(fromNodeID, toNodeID)
	switch {
	case err == nil:
		byType := typedEdges(existing)
		byType[edgeType] = meta
		if err := l.g.UpdateEdge(fromNodeID, toNodeID, dgraph.EdgeData(byType)); err != nil {
			return false, memerr.MapGraph("graph.link", err)
		}
	case errors.Is(err, dgraph.ErrEdgeNotFound):
		if err := l.g.AddEdge(fromNodeID, toNodeID, dgraph.EdgeData(map[string]edgeMeta{edgeType: meta})); err != nil {
			return false, memerr.MapGraph("graph.link", err)
		}
	default:
		return false, memerr.MapGraph("graph.link", err)
	}
	return true, nil
}

func (l *localMemoryGraph) FindRelated(ctx context.Context, rec *memory.Memory, seeds []string) ([]RelatedNode, error) {
	if rec == nil || len(seeds) == 0 {
		return nil, nil
	}
	self := NodeID(rec.ID)
	seedSet := toSet(seeds)

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []RelatedNode
	for id, node := range l.nodes {
		if id == self {
			continue
		}
		var shared []string
		for _, c := range node.Concepts {
			if seedSet[c] {
				shared = append(shared, c)
			}
		}
		if len(shared) == 0 {
			continue
		}
		sort.Strings(shared)
		union := len(seeds) + len(node.Concepts) - len(shared)
		score := 0.0
		if union > 0 {
			score = float64(len(shared)) / float64(union)
		}
		out = append(out, RelatedNode{
			NodeID:         id,
			RecordID:       node.RecordID,
			Category:       node.Category,
			Topic:          node.Topic,
			Date:           node.Date,
			SharedConcepts: shared,
			OverlapScore:   score,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OverlapScore != out[j].OverlapScore {
			return out[i].OverlapScore > out[j].OverlapScore
		}
		return out[i].NodeID < out[j].NodeID
	})
	if len(out) > 25 {
		out = out[:25]
	}
	return out, nil
}

func (l *localMemoryGraph) SearchByConcepts(ctx context.Context, seeds []string, limit int) ([]GraphRecord, error) {
	if len(seeds) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	seedSet := toSet(seeds)

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []GraphRecord
	for _, node := range l.nodes {
		matches := 0
		for _, c := range node.Concepts {
			if seedSet[c] {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		n := node
		n.MatchCount = matches
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MatchCount != out[j].MatchCount {
			return out[i].MatchCount > out[j].MatchCount
		}
		return out[i].NodeID < out[j].NodeID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *localMemoryGraph) Neighborhood(ctx context.Context, nodeID string, depth int, types []string) (*NeighborhoodResult, error) {
	depth = clampDepth(depth)
	typeSet := toSet(types)

	l.mu.RLock()
	defer l.mu.RUnlock()

	center, ok := l.nodes[nodeID]
	if !ok {
		return nil, nil
	}

	adjacency, err := l.g.AdjacencyMap()
	if err != nil {
		return nil, memerr.MapGraph("graph.neighborhood", err)
	}
	predecessors, err := l.g.PredecessorMap()
	if err != nil {
		return nil, memerr.MapGraph("graph.neighborhood", err)
	}

	out := &NeighborhoodResult{
		Center:    center,
		Depth:     depth,
		EdgeTypes: map[string]int{},
	}

	visited := map[string]bool{nodeID: true}
	seenEdges := map[string]bool{}
	frontier := []string{nodeID}
	for hop := 0; hop < depth; hop++ {
		var next []string
		for _, cur := range frontier {
			var peers []string
			for _, e := range adjacency[cur] {
				peers = recordEdge(peers, e, e.Target, typeSet, seenEdges, out)
			}
			for _, e := range predecessors[cur] {
				peers = recordEdge(peers, e, e.Source, typeSet, seenEdges, out)
			}
			for _, n := range peers {
				if visited[n] {
					continue
				}
				visited[n] = true
				if node, ok := l.nodes[n]; ok {
					out.Related = append(out.Related, node)
				}
				next = append(next, n)
			}
		}
		frontier = next
	}
	sort.SliceStable(out.Related, func(i, j int) bool { return out.Related[i].NodeID < out.Related[j].NodeID })
	out.NodesTraversed = len(visited)
	return out, nil
}

// recordEdge collects every typed edge matching the filter and returns the
// peer ids reached through at least one of them.
func recordEdge(peers []string, e dgraph.Edge[string], peer string, typeSet map[string]bool, seenEdges map[string]bool, out *NeighborhoodResult) []string {
	matched := false
	for edgeType, meta := range typedEdges(e) {
		if len(typeSet) > 0 && !typeSet[edgeType] {
			continue
		}
		matched = true
		key := e.Source + "|" + e.Target + "|" + edgeType
		if seenEdges[key] {
			continue
		}
		seenEdges[key] = true
		out.Relationships = append(out.Relationships, Relationship{
			FromNodeID: e.Source,
			ToNodeID:   e.Target,
			Type:       edgeType,
			Strength:   meta.strength,
		})
		out.EdgeTypes[edgeType]++
	}
	if matched {
		peers = append(peers, peer)
	}
	return peers
}

func (l *localMemoryGraph) RemoveNode(ctx context.Context, recordID int64) error {
	nodeID := NodeID(recordID)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.nodes[nodeID]; !ok {
		return nil
	}

	adjacency, err := l.g.AdjacencyMap()
	if err != nil {
		return memerr.MapGraph("graph.remove", err)
	}
	predecessors, err := l.g.PredecessorMap()
	if err != nil {
		return memerr.MapGraph("graph.remove", err)
	}
	for to := range adjacency[nodeID] {
		if err := l.g.RemoveEdge(nodeID, to); err != nil && !errors.Is(err, dgraph.ErrEdgeNotFound) {
			return memerr.MapGraph("graph.remove", err)
		}
	}
	for from := range predecessors[nodeID] {
		if err := l.g.RemoveEdge(from, nodeID); err != nil && !errors.Is(err, dgraph.ErrEdgeNotFound) {
			return memerr.MapGraph("graph.remove", err)
		}
	}
	if err := l.g.RemoveVertex(nodeID); err != nil && !errors.Is(err, dgraph.ErrVertexNotFound) {
		return memerr.MapGraph("graph.remove", err)
	}
	delete(l.nodes, nodeID)
	return nil
}

func (l *localMemoryGraph) Stats(ctx context.Context) (*GraphStats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := &GraphStats{EdgesByType: map[string]int64{}}
	order, err := l.g.Order()
	if err != nil {
		return nil, memerr.MapGraph("graph.stats", err)
	}
	stats.NodeCount = int64(order)

	edges, err := l.g.Edges()
	if err != nil {
		return nil, memerr.MapGraph("graph.stats", err)
	}
	degree := map[string]int64{}
	for _, e := range edges {
		for edgeType := range typedEdges(e) {
			stats.EdgeCount++
			stats.EdgesByType[edgeType]++
			degree[e.Source]++
			degree[e.Target]++
		}
	}

	for id, d := range degree {
		topic := l.nodes[id].Topic
		stats.TopConnected = append(stats.TopConnected, ConnectedNode{NodeID: id, Topic: topic, Degree: d})
	}
	sort.SliceStable(stats.TopConnected, func(i, j int) bool {
		if stats.TopConnected[i].Degree != stats.TopConnected[j].Degree {
			return stats.TopConnected[i].Degree > stats.TopConnected[j].Degree
		}
		return stats.TopConnected[i].NodeID < stats.TopConnected[j].NodeID
	})
	if len(stats.TopConnected) > 5 {
		stats.TopConnected = stats.TopConnected[:5]
	}
	return stats, nil
}

func toSet(in []string) map[string]bool {
	if len(in) == 0 {
		return nil
	}
	set := make(map[string]bool, len(in))
	for _, s := range in {
		set[s] = true
	}
	return set
}
