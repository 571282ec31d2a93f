package repository

import (
	"context"
	"time"

	"anoa.com/lostfound/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CandidateFilter narrows the items a subject item is scored against.
type CandidateFilter struct {
	Type      entity.ItemType
	Category  string // empty means any category
	From      time.Time
	To        time.Time
	ExcludeID uuid.UUID
	Limit     int
}

type Stats struct {
	Total    int64 `json:"total"`
	Lost     int64 `json:"lost"`
	Found    int64 `json:"found"`
	Active   int64 `json:"active"`
	Resolved int64 `json:"resolved"`
}

type ItemRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Item, error)
	FindCandidates(ctx context.Context, filter CandidateFilter) ([]*entity.Item, error)
	FindActive(ctx context.Context, limit int) ([]*entity.Item, error)
	FindActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]*entity.Item, error)
	HasMatchLink(ctx context.Context, itemID, matchedItemID uuid.UUID) (bool, error)
	CreateMatchPair(ctx context.Context, itemA, itemB uuid.UUID, score float64, matchedAt time.Time) error
	ArchiveResolvedBefore(ctx context.Context, cutoff time.Time, note string) ([]uuid.UUID, error)
	CountStats(ctx context.Context) (*Stats, error)
	CountCreatedSince(ctx context.Context, since time.Time) (map[entity.ItemType]int64, error)
}

type itemRepository struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) ItemRepository {
	return &itemRepository{db: db}
}

func (r *itemRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Item, error) {
	var item entity.Item
	if err := r.db.WithContext(ctx).
		Preload("MatchLinks").
		First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *itemRepository) FindCandidates(ctx context.Context, filter CandidateFilter) ([]*entity.Item, error) {
	query := r.db.WithContext(ctx).
		Where("type = ? AND status = ?", filter.Type, entity.ItemStatusActive).
		Where("date BETWEEN ? AND ?", filter.From, filter.To).
		Where("id <> ?", filter.ExcludeID)

	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}

	var items []*entity.Item
	if err := query.Limit(filter.Limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *itemRepository) FindActive(ctx context.Context, limit int) ([]*entity.Item, error) {
	var items []*entity.Item
	err := r.db.WithContext(ctx).
		Where("status = ?", entity.ItemStatusActive).
		Order("created_at desc").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *itemRepository) FindActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]*entity.Item, error) {
	var items []*entity.Item
	err := r.db.WithContext(ctx).
		Preload("MatchLinks").
		Preload("MatchLinks.MatchedItem").
		Where("owner_id = ? AND status = ?", ownerID, entity.ItemStatusActive).
		Find(&items).Error
	return items, err
}

func (r *itemRepository) HasMatchLink(ctx context.Context, itemID, matchedItemID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.MatchLink{}).
		Where("item_id = ? AND matched_item_id = ?", itemID, matchedItemID).
		Count(&count).Error
	return count > 0, err
}

// CreateMatchPair writes both link directions and both match scores in one transaction.
// A link that already exists is left untouched.
func (r *itemRepository) CreateMatchPair(ctx context.Context, itemA, itemB uuid.UUID, score float64, matchedAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		links := []entity.MatchLink{
			{ItemID: itemA, MatchedItemID: itemB, Score: score, MatchedAt: matchedAt},
			{ItemID: itemB, MatchedItemID: itemA, Score: score, MatchedAt: matchedAt},
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error; err != nil {
			return err
		}

		return tx.Model(&entity.Item{}).
			Where("id IN ?", []uuid.UUID{itemA, itemB}).
			Update("match_score", score).Error
	})
}

func (r *itemRepository) ArchiveResolvedBefore(ctx context.Context, cutoff time.Time, note string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.Item{}).
			Where("status = ? AND is_public = ? AND resolution_date < ?", entity.ItemStatusResolved, true, cutoff).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		return tx.Model(&entity.Item{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"is_public":   false,
				"admin_notes": note,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *itemRepository) CountStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE type = 'lost') AS lost,
			COUNT(*) FILTER (WHERE type = 'found') AS found,
			COUNT(*) FILTER (WHERE status = 'active') AS active,
			COUNT(*) FILTER (WHERE status = 'resolved') AS resolved
		FROM items
	`).Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *itemRepository) CountCreatedSince(ctx context.Context, since time.Time) (map[entity.ItemType]int64, error) {
	var rows []struct {
		Type  entity.ItemType
		Count int64
	}
	if err := r.db.WithContext(ctx).
		Model(&entity.Item{}).
		Select("type, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("type").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[entity.ItemType]int64, len(rows))
	for _, row := range rows {
		counts[row.Type] = row.Count
	}
	return counts, nil
}
