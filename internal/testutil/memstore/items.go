package memstore

import (
	"context"
	"sort"
	"time"

	"anoa.com/lostfound/internal/entity"
	itemRepo "anoa.com/lostfound/internal/modules/item/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type items struct{ s *Store }

func (r *items) FindByID(ctx context.Context, id uuid.UUID) (*entity.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("items.FindByID"); err != nil {
		return nil, err
	}
	it, ok := r.s.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	it.MatchLinks = r.s.linksFrom(id)
	return &it, nil
}

func (r *items) sorted(keep func(entity.Item) bool) []*entity.Item {
	var out []*entity.Item
	for _, it := range r.s.items {
		if keep(it) {
			it := it
			out = append(out, &it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *items) FindCandidates(ctx context.Context, f itemRepo.CandidateFilter) ([]*entity.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("items.FindCandidates"); err != nil {
		return nil, err
	}
	out := r.sorted(func(it entity.Item) bool {
		return it.Type == f.Type &&
			it.Status == entity.ItemStatusActive &&
			!it.Date.Before(f.From) && !it.Date.After(f.To) &&
			it.ID != f.ExcludeID &&
			(f.Category == "" || it.Category == f.Category)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *items) FindActive(ctx context.Context, limit int) ([]*entity.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.sorted(func(it entity.Item) bool { return it.Status == entity.ItemStatusActive })
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *items) FindActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]*entity.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.sorted(func(it entity.Item) bool {
		return it.OwnerID == ownerID && it.Status == entity.ItemStatusActive
	})
	for _, it := range out {
		it.MatchLinks = r.s.linksFrom(it.ID)
		for i := range it.MatchLinks {
			if matched, ok := r.s.items[it.MatchLinks[i].MatchedItemID]; ok {
				matched := matched
				it.MatchLinks[i].MatchedItem = &matched
			}
		}
	}
	return out, nil
}

func (r *items) HasMatchLink(ctx context.Context, itemID, matchedItemID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("items.HasMatchLink"); err != nil {
		return false, err
	}
	for _, l := range r.s.links {
		if l.ItemID == itemID && l.MatchedItemID == matchedItemID {
			return true, nil
		}
	}
	return false, nil
}

func (r *items) CreateMatchPair(ctx context.Context, itemA, itemB uuid.UUID, score float64, matchedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("items.CreateMatchPair"); err != nil {
		return err
	}
	for _, dir := range [][2]uuid.UUID{{itemA, itemB}, {itemB, itemA}} {
		exists := false
		for _, l := range r.s.links {
			if l.ItemID == dir[0] && l.MatchedItemID == dir[1] {
				exists = true
				break
			}
		}
		if !exists {
			r.s.links = append(r.s.links, entity.MatchLink{
				ID:            r.s.id(),
				ItemID:        dir[0],
				MatchedItemID: dir[1],
				Score:         score,
				MatchedAt:     matchedAt,
			})
		}
	}
	for _, id := range []uuid.UUID{itemA, itemB} {
		if it, ok := r.s.items[id]; ok {
			it.MatchScore = score
			r.s.items[id] = it
		}
	}
	return nil
}

func (r *items) ArchiveResolvedBefore(ctx context.Context, cutoff time.Time, note string) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []uuid.UUID
	for id, it := range r.s.items {
		if it.Status == entity.ItemStatusResolved && it.IsPublic && it.ResolutionDate != nil && it.ResolutionDate.Before(cutoff) {
			it.IsPublic = false
			it.AdminNotes = note
			r.s.items[id] = it
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *items) CountStats(ctx context.Context) (*itemRepo.Stats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var stats itemRepo.Stats
	for _, it := range r.s.items {
		stats.Total++
		switch it.Type {
		case entity.ItemTypeLost:
			stats.Lost++
		case entity.ItemTypeFound:
			stats.Found++
		}
		switch it.Status {
		case entity.ItemStatusActive:
			stats.Active++
		case entity.ItemStatusResolved:
			stats.Resolved++
		}
	}
	return &stats, nil
}

func (r *items) CountCreatedSince(ctx context.Context, since time.Time) (map[entity.ItemType]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := make(map[entity.ItemType]int64)
	for _, it := range r.s.items {
		if !it.CreatedAt.Before(since) {
			counts[it.Type]++
		}
	}
	return counts, nil
}
