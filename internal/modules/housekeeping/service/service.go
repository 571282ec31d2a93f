package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"anoa.com/lostfound/internal/entity"
	itemRepo "anoa.com/lostfound/internal/modules/item/repository"
	"github.com/google/uuid"
)

const (
	archiveNote   = "Archived due to age"
	summaryWindow = 7 * 24 * time.Hour
)

// ItemIndex is the part of the search service housekeeping needs.
type ItemIndex interface {
	RemoveItems(ctx context.Context, ids []uuid.UUID) error
}

type WeeklySummary struct {
	Since time.Time `json:"since"`
	Lost  int64     `json:"lost"`
	Found int64     `json:"found"`
}

type HousekeepingService interface {
	// ArchiveResolved hides resolved items older than the archive age and
	// drops them from the search index.
	ArchiveResolved(ctx context.Context) (int, error)
	ItemStats(ctx context.Context) (*itemRepo.Stats, error)
	WeeklySummary(ctx context.Context) (*WeeklySummary, error)
}

type housekeepingService struct {
	itemRepo     itemRepo.ItemRepository
	index        ItemIndex
	archiveAfter time.Duration
	now          func() time.Time
}

func NewHousekeepingService(itemRepo itemRepo.ItemRepository, index ItemIndex, archiveAfter time.Duration) HousekeepingService {
	return &housekeepingService{
		itemRepo:     itemRepo,
		index:        index,
		archiveAfter: archiveAfter,
		now:          time.Now,
	}
}

func (s *housekeepingService) ArchiveResolved(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.archiveAfter)
	ids, err := s.itemRepo.ArchiveResolvedBefore(ctx, cutoff, archiveNote)
	if err != nil {
		return 0, fmt.Errorf("archive resolved items: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if s.index != nil {
		if err := s.index.RemoveItems(ctx, ids); err != nil {
			log.Printf("⚠️ [housekeeping] %d archived items still in search index: %v", len(ids), err)
		}
	}

	log.Printf("🧹 [housekeeping] archived %d items resolved before %s", len(ids), cutoff.Format(time.RFC3339))
	return len(ids), nil
}

func (s *housekeepingService) ItemStats(ctx context.Context) (*itemRepo.Stats, error) {
	stats, err := s.itemRepo.CountStats(ctx)
	if err != nil {
		return nil, err
	}
	log.Printf("📊 [housekeeping] items: %d total, %d lost, %d found, %d active, %d resolved",
		stats.Total, stats.Lost, stats.Found, stats.Active, stats.Resolved)
	return stats, nil
}

func (s *housekeepingService) WeeklySummary(ctx context.Context) (*WeeklySummary, error) {
	since := s.now().Add(-summaryWindow)
	counts, err := s.itemRepo.CountCreatedSince(ctx, since)
	if err != nil {
		return nil, err
	}

	summary := &WeeklySummary{
		Since: since,
		Lost:  counts[entity.ItemTypeLost],
		Found: counts[entity.ItemTypeFound],
	}
	log.Printf("🗓️ [housekeeping] last 7 days: %d lost, %d found reported", summary.Lost, summary.Found)
	return summary, nil
}
