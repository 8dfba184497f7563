package memories

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mnemora/mnemora-backend/internal/domain/memory"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
	"github.com/mnemora/mnemora-backend/internal/platform/memerr"
)

const searchCap = 50

type MemoryRepo interface {
	Insert(ctx context.Context, tx *gorm.DB, category, topic, content, date string) (int64, error)
	Get(ctx context.Context, tx *gorm.DB, id int64) (*memory.Memory, error)
	Delete(ctx context.Context, tx *gorm.DB, id int64) (bool, error)
	Relocate(ctx context.Context, tx *gorm.DB, id int64, newCategory string) (bool, error)
	SearchBasic(ctx context.Context, tx *gorm.DB, query string, categories []string, limit int) ([]*memory.Memory, error)
	ByCategory(ctx context.Context, tx *gorm.DB, category string, limit int) ([]*memory.Memory, error)
	Recent(ctx context.Context, tx *gorm.DB, limit int) ([]*memory.Memory, error)
	Stats(ctx context.Context, tx *gorm.DB) (*memory.StoreStats, error)
}

type memoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMemoryRepo(db *gorm.DB, log *logger.Logger) MemoryRepo {
	return &memoryRepo{db: db, log: log.With("repo", "MemoryRepo")}
}

func (r *memoryRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *memoryRepo) Insert(ctx context.Context, tx *gorm.DB, category, topic, content, date string) (int64, error) {
	if strings.TrimSpace(content) == "" {
		return 0, memerr.New(memerr.KindInvalidInput, "store.insert", "empty content")
	}
	if strings.TrimSpace(category) == "" {
		return 0, memerr.New(memerr.KindInvalidInput, "store.insert", "empty category")
	}
	row := &memory.Memory{
		Date:      date,
		Category:  category,
		Topic:     topic,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.conn(tx).WithContext(ctx).Create(row).Error; err != nil {
		return 0, memerr.MapStore("store.insert", err)
	}
	return row.ID, nil
}

func (r *memoryRepo) Get(ctx context.Context, tx *gorm.DB, id int64) (*memory.Memory, error) {
	var row memory.Memory
	err := r.conn(tx).WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, memerr.MapStore("store.get", err)
	}
	return &row, nil
}

func (r *memoryRepo) Delete(ctx context.Context, tx *gorm.DB, id int64) (bool, error) {
	res := r.conn(tx).WithContext(ctx).Delete(&memory.Memory{}, "id = ?", id)
	if res.Error != nil {
		return false, memerr.MapStore("store.delete", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *memoryRepo) Relocate(ctx context.Context, tx *gorm.DB, id int64, newCategory string) (bool, error) {
	if strings.TrimSpace(newCategory) == "" {
		return false, memerr.New(memerr.KindInvalidInput, "store.relocate", "empty category")
	}
	res := r.conn(tx).WithContext(ctx).
		Model(&memory.Memory{}).
		Where("id = ?", id).
		Update("category", newCategory)
	if res.Error != nil {
		return false, memerr.MapStore("store.relocate", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SearchBasic matches a case-insensitive substring against topic and content,
// optionally restricted to a category set, newest first.
func (r *memoryRepo) SearchBasic(ctx context.Context, tx *gorm.DB, query string, categories []string, limit int) ([]*memory.Memory, error) {
	if limit <= 0 || limit > searchCap {
		limit = searchCap
	}
	q := r.conn(tx).WithContext(ctx).Model(&memory.Memory{})
	if needle := strings.TrimSpace(query); needle != "" {
		pattern := "%" + strings.ToLower(needle) + "%"
		q = q.Where("LOWER(topic) LIKE ? OR LOWER(content) LIKE ?", pattern, pattern)
	}
	if len(categories) > 0 {
		q = q.Where("category IN ?", categories)
	}
	var out []*memory.Memory
	if err := q.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, memerr.MapStore("store.search", err)
	}
	return out, nil
}

func (r *memoryRepo) ByCategory(ctx context.Context, tx *gorm.DB, category string, limit int) ([]*memory.Memory, error) {
	if limit <= 0 || limit > searchCap {
		limit = searchCap
	}
	var out []*memory.Memory
	if err := r.conn(tx).WithContext(ctx).
		Model(&memory.Memory{}).
		Where("category = ?", category).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, memerr.MapStore("store.by_category", err)
	}
	return out, nil
}

func (r *memoryRepo) Recent(ctx context.Context, tx *gorm.DB, limit int) ([]*memory.Memory, error) {
	if limit <= 0 || limit > searchCap {
		limit = searchCap
	}
	var out []*memory.Memory
	if err := r.conn(tx).WithContext(ctx).
		Model(&memory.Memory{}).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, memerr.MapStore("store.recent", err)
	}
	return out, nil
}

func (r *memoryRepo) Stats(ctx context.Context, tx *gorm.DB) (*memory.StoreStats, error) {
	type bucket struct {
		Category string
		Count    int64
	}
	var rows []bucket
	if err := r.conn(tx).WithContext(ctx).
		Model(&memory.Memory{}).
		Select("category, COUNT(*) AS count").
		Group("category").
		Find(&rows).Error; err != nil {
		return nil, memerr.MapStore("store.stats", err)
	}
	stats := &memory.StoreStats{PerCategory: make(map[string]int64, len(rows))}
	for _, b := range rows {
		stats.PerCategory[b.Category] = b.Count
		stats.Total += b.Count
	}
	return stats, nil
}
