package memory

import "time"

// RecencySlot is one entry in the bounded recency cache. Slots reference the
// original record id even when the row was deleted during finalize.
type RecencySlot struct {
	RecordID   int64     `json:"record_id"`
	Category   string    `json:"category"`
	Topic      string    `json:"topic"`
	Content    string    `json:"content"`
	InsertedAt time.Time `json:"inserted_at"`
}
