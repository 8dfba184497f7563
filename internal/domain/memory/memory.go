package memory

import (
	"time"
)

// Memory is the durable unit of the store. Rows are tentative between the
// ingest insert and the finalize step; readers must tolerate their
// disappearance.
type Memory struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Date      string    `gorm:"column:date;size:10;not null;index" json:"date"`
	Category  string    `gorm:"column:category;size:64;not null;index" json:"category"`
	Topic     string    `gorm:"column:topic;size:512;not null" json:"topic"`
	Content   string    `gorm:"column:content;type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (Memory) TableName() string { return "memories" }

// StoreStats aggregates the relational store.
type StoreStats struct {
	PerCategory map[string]int64 `json:"per_category"`
	Total       int64            `json:"total"`
}
