package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"anoa.com/lostfound/internal/entity"
	"anoa.com/lostfound/internal/testutil/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeIndex struct {
	removed []uuid.UUID
	err     error
}

func (f *fakeIndex) RemoveItems(ctx context.Context, ids []uuid.UUID) error {
	f.removed = append(f.removed, ids...)
	return f.err
}

var now = time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)

func newService(store *memstore.Store, index ItemIndex) *housekeepingService {
	s := NewHousekeepingService(store.Items(), index, 365*24*time.Hour).(*housekeepingService)
	s.now = func() time.Time { return now }
	return s
}

func resolvedAt(t time.Time) *time.Time { return &t }

func TestArchiveResolved(t *testing.T) {
	store := memstore.New()
	index := &fakeIndex{}
	s := newService(store, index)

	old := store.PutItem(entity.Item{Type: entity.ItemTypeLost, Title: "Old umbrella", Status: entity.ItemStatusResolved, ResolutionDate: resolvedAt(now.AddDate(-2, 0, 0))})
	store.PutItem(entity.Item{Type: entity.ItemTypeFound, Title: "Recent phone", Status: entity.ItemStatusResolved, ResolutionDate: resolvedAt(now.AddDate(0, -1, 0))})
	store.PutItem(entity.Item{Type: entity.ItemTypeLost, Title: "Old but active", CreatedAt: now.AddDate(-3, 0, 0)})

	n, err := s.ArchiveResolved(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []uuid.UUID{old.ID}, index.removed)

	archived := store.ArchivedItems()
	require.Len(t, archived, 1)
	require.Equal(t, archiveNote, archived[0].AdminNotes)

	n, err = s.ArchiveResolved(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Len(t, index.removed, 1)
}

func TestArchiveResolvedIndexFailureIsLogged(t *testing.T) {
	store := memstore.New()
	s := newService(store, &fakeIndex{err: errors.New("meili down")})
	store.PutItem(entity.Item{Type: entity.ItemTypeLost, Status: entity.ItemStatusResolved, ResolutionDate: resolvedAt(now.AddDate(-2, 0, 0))})

	n, err := s.ArchiveResolved(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestItemStatsAndWeeklySummary(t *testing.T) {
	store := memstore.New()
	s := newService(store, nil)

	store.PutItem(entity.Item{Type: entity.ItemTypeLost, CreatedAt: now.Add(-24 * time.Hour)})
	store.PutItem(entity.Item{Type: entity.ItemTypeLost, CreatedAt: now.Add(-30 * 24 * time.Hour)})
	store.PutItem(entity.Item{Type: entity.ItemTypeFound, CreatedAt: now.Add(-48 * time.Hour), Status: entity.ItemStatusResolved})

	stats, err := s.ItemStats(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 3, stats.Total)
	require.EqualValues(t, 2, stats.Lost)
	require.EqualValues(t, 1, stats.Found)
	require.EqualValues(t, 2, stats.Active)
	require.EqualValues(t, 1, stats.Resolved)

	summary, err := s.WeeklySummary(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, summary.Lost)
	require.EqualValues(t, 1, summary.Found)
	require.Equal(t, now.Add(-7*24*time.Hour), summary.Since)
}
