// Package graph stores memory records as nodes keyed by record id, with
// concept lists on the node and typed edges between records. Two backends:
// Neo4j (driver sessions, UNWIND+MERGE batches) and an in-process graph for
// deployments without a graph service.
package graph

import (
	"context"
	"strconv"

	"github.com/mnemora/mnemora-backend/internal/domain/memory"
)

// Edge types the ingest pipeline infers. Forced edges from callers may use
// any non-empty type string.
const (
	EdgeHighlySimilar    = "HIGHLY_SIMILAR"
	EdgeConceptSimilar   = "CONCEPT_SIMILAR"
	EdgeSameCategory     = "SAME_CATEGORY"
	EdgeTemporalAdjacent = "TEMPORAL_ADJACENT"
)

// RelatedNode is a candidate neighbor returned by FindRelated. OverlapScore
// is the Jaccard overlap of the two concept sets, in [0,1].
type RelatedNode struct {
	NodeID         string   `json:"node_id"`
	RecordID       int64    `json:"record_id"`
	Category       string   `json:"category"`
	Topic          string   `json:"topic"`
	Date           string   `json:"date"`
	SharedConcepts []string `json:"shared_concepts"`
	OverlapScore   float64  `json:"overlap_score"`
}

// GraphRecord is a record reconstructed from its node.
type GraphRecord struct {
	NodeID     string   `json:"node_id"`
	RecordID   int64    `json:"record_id"`
	Category   string   `json:"category"`
	Topic      string   `json:"topic"`
	Date       string   `json:"date"`
	Concepts   []string `json:"concepts"`
	MatchCount int      `json:"match_count"`
}

// Relationship is one edge of a neighborhood traversal.
type Relationship struct {
	FromNodeID string  `json:"from_node_id"`
	ToNodeID   string  `json:"to_node_id"`
	Type       string  `json:"type"`
	Strength   float64 `json:"strength"`
}

// NeighborhoodResult is the center record plus everything reachable within
// the requested depth.
type NeighborhoodResult struct {
	Center         GraphRecord    `json:"center"`
	Related        []GraphRecord  `json:"related"`
	Relationships  []Relationship `json:"relationships"`
	Depth          int            `json:"depth"`
	NodesTraversed int            `json:"nodes_traversed"`
	EdgeTypes      map[string]int `json:"edge_types"`
}

// ConnectedNode is one entry of the top-connected ranking in GraphStats.
type ConnectedNode struct {
	NodeID string `json:"node_id"`
	Topic  string `json:"topic"`
	Degree int64  `json:"degree"`
}

type GraphStats struct {
	NodeCount    int64            `json:"node_count"`
	EdgeCount    int64            `json:"edge_count"`
	EdgesByType  map[string]int64 `json:"edges_by_type"`
	TopConnected []ConnectedNode  `json:"top_connected"`
}

// MemoryGraph is the graph-store contract consumed by the pipelines.
// Implementations must be safe for concurrent use.
type MemoryGraph interface {
	// UpsertNode creates or refreshes the node for rec and returns its
	// node id. Concepts replace the previous concept list.
	UpsertNode(ctx context.Context, rec *memory.Memory, concepts []string) (string, error)
	// Link creates or updates a typed edge. Returns false when either
	// endpoint is missing.
	Link(ctx context.Context, fromNodeID, toNodeID, edgeType string, props map[string]any) (bool, error)
	// FindRelated returns neighbors sharing concepts with the seed set,
	// strongest overlap first. The node for rec itself is excluded.
	FindRelated(ctx context.Context, rec *memory.Memory, seeds []string) ([]RelatedNode, error)
	// SearchByConcepts returns records matching any seed concept, ranked
	// by match count.
	SearchByConcepts(ctx context.Context, seeds []string, limit int) ([]GraphRecord, error)
	// Neighborhood traverses up to depth hops from nodeID. Depth clamps
	// to [1,3]. Empty types means all edge types.
	Neighborhood(ctx context.Context, nodeID string, depth int, types []string) (*NeighborhoodResult, error)
	// RemoveNode detaches and deletes a record's node. Missing nodes are
	// not an error.
	RemoveNode(ctx context.Context, recordID int64) error
	Stats(ctx context.Context) (*GraphStats, error)
}

func clampDepth(depth int) int {
	if depth < 1 {
		return 1
	}
	if depth > 3 {
		return 3
	}
	return depth
}

// NodeID derives the canonical node id for a record. Both backends key
// nodes this way so ids survive backend swaps.
func NodeID(recordID int64) string {
	return strconv.FormatInt(recordID, 10)
}
