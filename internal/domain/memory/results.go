package memory

import "time"

// Result sources reported per search hit.
const (
	SourceSQL    = "sql"
	SourceVector = "vector"
	SourceBoth   = "both"
	SourceGraph  = "graph"
)

// Rerank strategies accepted by search requests.
const (
	StrategyHybrid = "hybrid"
	StrategyText   = "text"
	StrategyLLM    = "llm"
)

// ForcedRelationship is a caller-requested edge created during ingest before
// any inferred edges. Unknown targets are skipped and counted as soft errors.
type ForcedRelationship struct {
	TargetID   int64          `json:"target_id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

type IngestRequest struct {
	Category            string               `json:"category"`
	Topic               string               `json:"topic"`
	Content             string               `json:"content"`
	ForcedRelationships []ForcedRelationship `json:"forced_relationships,omitempty"`
}

// IngestResult reports what each store accepted. MemoryID is 0 when the
// record was not kept permanently.
type IngestResult struct {
	Success              bool   `json:"success"`
	MemoryID             int64  `json:"memory_id"`
	StoredInPermanent    bool   `json:"stored_in_permanent"`
	StoredInVector       bool   `json:"stored_in_vector"`
	StoredInGraph        bool   `json:"stored_in_graph"`
	StoredInRecency      bool   `json:"stored_in_recency"`
	RelationshipsCreated int    `json:"relationships_created"`
	AnalyzedCategory     string `json:"analyzed_category"`
	SignificanceReason   string `json:"significance_reason"`
}

type SearchRequest struct {
	Query      string   `json:"query"`
	Categories []string `json:"categories,omitempty"`
	// EnableRerank defaults to true when nil.
	EnableRerank *bool  `json:"enable_rerank,omitempty"`
	Strategy     string `json:"strategy,omitempty"`
}

// SearchResult is one merged hit. Vector-only entries are reconstructed from
// concept back-pointers; their parent row may no longer exist.
type SearchResult struct {
	RecordID         int64     `json:"record_id"`
	Category         string    `json:"category"`
	Topic            string    `json:"topic"`
	Content          string    `json:"content"`
	Date             string    `json:"date"`
	CreatedAt        time.Time `json:"created_at"`
	Source           string    `json:"source"`
	VectorSimilarity float64   `json:"vector_similarity,omitempty"`
	GraphScore       float64   `json:"graph_score,omitempty"`
	Score            float64   `json:"score"`
}

// BranchReport carries per-branch fan-out outcomes; Err is empty on success.
type BranchReport struct {
	Count int    `json:"count"`
	Err   string `json:"err,omitempty"`
}

type SearchSources struct {
	SQL    BranchReport `json:"sql"`
	Vector BranchReport `json:"vector"`
	Graph  BranchReport `json:"graph,omitempty"`
}

type SearchResponse struct {
	Results    []SearchResult `json:"results"`
	Sources    SearchSources  `json:"sources"`
	Reranked   bool           `json:"reranked"`
	Strategy   string         `json:"strategy"`
	TotalFound int            `json:"total_found"`
	ElapsedMS  int64          `json:"elapsed_ms"`
}

type GraphSearchRequest struct {
	Query      string   `json:"query"`
	Categories []string `json:"categories,omitempty"`
	// IncludeRelated defaults to true when nil.
	IncludeRelated *bool `json:"include_related,omitempty"`
	MaxDepth       int   `json:"max_depth,omitempty"`
}

// GraphRelationship is one traversed edge surfaced in graph search output.
type GraphRelationship struct {
	FromRecordID int64   `json:"from_record_id"`
	ToRecordID   int64   `json:"to_record_id"`
	Type         string  `json:"type"`
	Strength     float64 `json:"strength"`
}

type GraphCluster struct {
	NodesTraversed int            `json:"nodes_traversed"`
	EdgeTypes      map[string]int `json:"edge_types"`
}

type GraphContext struct {
	RelatedCount int          `json:"related_count"`
	Depth        int          `json:"depth"`
	Cluster      GraphCluster `json:"cluster"`
}

type GraphSearchResponse struct {
	Results       []SearchResult      `json:"results"`
	Sources       SearchSources       `json:"sources"`
	Relationships []GraphRelationship `json:"relationships"`
	GraphContext  GraphContext        `json:"graph_context"`
	TotalFound    int                 `json:"total_found"`
	ElapsedMS     int64               `json:"elapsed_ms"`
}
