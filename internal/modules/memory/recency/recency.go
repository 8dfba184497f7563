// Package recency holds the bounded FIFO of recent non-permanent records.
package recency

import (
	"context"
	"sync"

	"github.com/mnemora/mnemora-backend/internal/domain/memory"
)

// Cache is the recency contract consumed by the ingest pipeline. Entries are
// strictly insertion-ordered; Dump returns newest-first. Implementations may
// persist, consumers must not rely on it.
type Cache interface {
	Append(ctx context.Context, slot memory.RecencySlot) error
	Dump(ctx context.Context) ([]memory.RecencySlot, error)
	Len(ctx context.Context) (int, error)
}

// Ring is the process-local cache: one mutex around a bounded slice.
type Ring struct {
	mu       sync.Mutex
	slots    []memory.RecencySlot // oldest first
	capacity int
}

func NewRing(capacity int) *Ring {
	if capacity < 0 {
		capacity = 0
	}
	return &Ring{capacity: capacity}
}

// Append pushes a slot, evicting the oldest when the ring is full. With
// capacity 0 nothing is ever retained.
func (r *Ring) Append(_ context.Context, slot memory.RecencySlot) error {
	if r.capacity == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots = append(r.slots, slot)
	if len(r.slots) > r.capacity {
		r.slots = r.slots[len(r.slots)-r.capacity:]
	}
	return nil
}

// Dump returns the current entries newest-first.
func (r *Ring) Dump(_ context.Context) ([]memory.RecencySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]memory.RecencySlot, len(r.slots))
	for i, s := range r.slots {
		out[len(r.slots)-1-i] = s
	}
	return out, nil
}

func (r *Ring) Len(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots), nil
}
