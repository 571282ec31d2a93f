package memstore

import (
	"context"
	"sort"

	"anoa.com/lostfound/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type notifications struct{ s *Store }

func (r *notifications) Create(ctx context.Context, n *entity.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("notifications.Create"); err != nil {
		return err
	}
	if n.ID == uuid.Nil {
		n.ID, _ = uuid.NewV7()
	}
	r.s.notifications = append(r.s.notifications, *n)
	return nil
}

func (r *notifications) FindByID(ctx context.Context, id uuid.UUID) (*entity.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, n := range r.s.notifications {
		if n.ID == id {
			n := n
			return &n, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *notifications) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]entity.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []entity.Notification
	for _, n := range r.s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	// v7 ids sort by creation time
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() > out[j].ID.String() })
	if offset >= len(out) {
		return []entity.Notification{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *notifications) MarkAsRead(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.notifications {
		if r.s.notifications[i].ID == id {
			r.s.notifications[i].IsRead = true
		}
	}
	return nil
}

func (r *notifications) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.notifications {
		if r.s.notifications[i].UserID == userID {
			r.s.notifications[i].IsRead = true
		}
	}
	return nil
}

func (r *notifications) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var count int64
	for _, n := range r.s.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *notifications) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.notifications[:0]
	for _, n := range r.s.notifications {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	r.s.notifications = kept
	return nil
}
