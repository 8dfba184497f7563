package memory

import (
	"fmt"
	"time"
)

// Mood values the analyzer may assign to a concept.
const (
	MoodPositive = "positive"
	MoodNeutral  = "neutral"
	MoodNegative = "negative"
)

// Concept is a self-contained semantic fragment extracted from one record.
// Concepts are the unit stored in the vector index; they are never durable
// on their own and never rewritten, only appended.
type Concept struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	AnalyzedType      string   `json:"analyzed_type"`
	Confidence        float64  `json:"confidence"`
	Mood              string   `json:"mood"`
	Keywords          []string `json:"keywords"`
	ExtractedConcepts []string `json:"extracted_concepts"`

	// Back-pointers copied from the parent record. They survive deletion of
	// the parent row and allow search results to be reconstructed from the
	// index alone.
	SourceRecordID  int64     `json:"source_record_id"`
	SourceCategory  string    `json:"source_category"`
	SourceTopic     string    `json:"source_topic"`
	SourceDate      string    `json:"source_date"`
	SourceCreatedAt time.Time `json:"source_created_at"`
}

// AttachSource derives stable concept ids from the parent record and copies
// the back-pointer metadata. Ids are "<record_id>:<index>" so re-analyzing a
// record upserts instead of accumulating duplicates.
func AttachSource(rec *Memory, concepts []Concept) []Concept {
	if rec == nil || len(concepts) == 0 {
		return concepts
	}
	out := make([]Concept, len(concepts))
	for i, c := range concepts {
		c.ID = fmt.Sprintf("%d:%d", rec.ID, i)
		c.SourceRecordID = rec.ID
		c.SourceCategory = rec.Category
		c.SourceTopic = rec.Topic
		c.SourceDate = rec.Date
		c.SourceCreatedAt = rec.CreatedAt
		out[i] = c
	}
	return out
}
