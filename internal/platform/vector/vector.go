// Package vector defines the generic vector-index contract the memory
// engine's concept index is built on. Implementations: qdrant (REST) and
// chromem (embedded).
package vector

import "context"

// Point is one stored vector. Payload carries the concept fields and the
// source back-pointers; values are strings or numbers only so every backend
// can filter on them.
type Point struct {
	ID      string
	Values  []float32
	Payload map[string]any
}

// Match is one similarity hit, score in [0,1], higher is better.
type Match struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Store is the backend contract. Upsert is keyed by Point.ID so re-storing
// the same id must not accumulate duplicates. Filter entries are exact-match
// equality on payload fields; a key mapped to multiple values (via
// FilterAnyKey) matches any of them.
type Store interface {
	Upsert(ctx context.Context, points []Point) error
	Query(ctx context.Context, q []float32, topK int, filter Filter) ([]Match, error)
	DeleteByIDs(ctx context.Context, ids []string) error
}

// Filter is a conjunction of payload conditions. Each entry matches when the
// payload field equals the value, or any value for multi-valued entries.
type Filter struct {
	Equals map[string]string
	AnyOf  map[string][]string
}

// Empty reports whether the filter constrains nothing.
func (f Filter) Empty() bool {
	return len(f.Equals) == 0 && len(f.AnyOf) == 0
}
