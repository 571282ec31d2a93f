package memstore

import (
	"context"
	"sort"
	"time"

	"anoa.com/lostfound/internal/entity"
	convRepo "anoa.com/lostfound/internal/modules/conversation/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type conversations struct{ s *Store }

func (r *conversations) Create(ctx context.Context, conv *entity.Conversation, seed *entity.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("conversations.Create"); err != nil {
		return err
	}
	if _, exists := r.s.conversations[conv.ID]; exists {
		return gorm.ErrDuplicatedKey
	}
	seen := make(map[uuid.UUID]bool)
	for i := range conv.Participants {
		p := &conv.Participants[i]
		if seen[p.UserID] {
			return gorm.ErrDuplicatedKey
		}
		seen[p.UserID] = true
		p.ID = r.s.id()
		p.ConversationID = conv.ID
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	r.s.conversations[conv.ID] = cloneConversation(*conv)
	if seed != nil {
		r.s.messages = append(r.s.messages, cloneMessage(*seed))
	}
	return nil
}

func (r *conversations) FindByID(ctx context.Context, id string) (*entity.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("conversations.FindByID"); err != nil {
		return nil, err
	}
	c, ok := r.s.conversations[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	c = cloneConversation(c)
	return &c, nil
}

func (r *conversations) find(keep func(entity.Conversation) bool) []*entity.Conversation {
	var out []*entity.Conversation
	for _, c := range r.s.conversations {
		if keep(c) {
			c := cloneConversation(c)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func hasAnyParticipant(c entity.Conversation, userIDs ...uuid.UUID) bool {
	for _, p := range c.Participants {
		for _, id := range userIDs {
			if p.UserID == id {
				return true
			}
		}
	}
	return false
}

func statusIn(status entity.ConversationStatus, statuses []entity.ConversationStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (r *conversations) FindActiveForPair(ctx context.Context, itemIDs, userIDs []uuid.UUID) (*entity.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	found := r.find(func(c entity.Conversation) bool {
		if c.Status != entity.ConversationStatusActive || !hasAnyParticipant(c, userIDs...) {
			return false
		}
		for _, id := range itemIDs {
			if c.ItemID == id {
				return true
			}
		}
		return false
	})
	if len(found) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return found[0], nil
}

func (r *conversations) FindBetween(ctx context.Context, itemIDs []uuid.UUID, userA, userB uuid.UUID, statuses []entity.ConversationStatus) (*entity.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	found := r.find(func(c entity.Conversation) bool {
		anchored := false
		for _, id := range itemIDs {
			if c.ItemID == id {
				anchored = true
			}
		}
		return anchored && statusIn(c.Status, statuses) &&
			hasAnyParticipant(c, userA) && hasAnyParticipant(c, userB)
	})
	if len(found) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return found[0], nil
}

func (r *conversations) ListByParticipant(ctx context.Context, userID uuid.UUID, statuses []entity.ConversationStatus) ([]*entity.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.find(func(c entity.Conversation) bool {
		return statusIn(c.Status, statuses) && hasAnyParticipant(c, userID)
	})
	for _, c := range out {
		if it, ok := r.s.items[c.ItemID]; ok {
			it := it
			c.Item = &it
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastActivityAt.After(out[j].LastActivityAt) })
	return out, nil
}

func (r *conversations) update(id string, fn func(*entity.Conversation)) error {
	c, ok := r.s.conversations[id]
	if !ok {
		return nil
	}
	fn(&c)
	r.s.conversations[id] = c
	return nil
}

func (r *conversations) RecordMessage(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("conversations.RecordMessage"); err != nil {
		return err
	}
	return r.update(id, func(c *entity.Conversation) {
		c.TotalMessages++
		c.UnreadCount++
		c.LastActivityAt = at
	})
}

func (r *conversations) ResetUnread(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.update(id, func(c *entity.Conversation) { c.UnreadCount = 0 })
}

func (r *conversations) TouchParticipant(ctx context.Context, id string, userID uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.update(id, func(c *entity.Conversation) {
		if p := c.Participant(userID); p != nil {
			p.LastSeenAt = at
		}
	})
}

func (r *conversations) Transition(ctx context.Context, id string, status entity.ConversationStatus, res convRepo.Resolution, note *entity.Message) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[id]
	if !ok || c.Status != entity.ConversationStatusActive {
		return false, nil
	}
	c.Status = status
	c.LastActivityAt = res.At
	if status == entity.ConversationStatusResolved {
		at, by := res.At, res.By
		c.ResolvedAt = &at
		c.ResolvedBy = &by
		c.ResolutionNotes = res.Notes
		c.ItemReturned = res.ItemReturned
	}
	if note != nil {
		r.s.messages = append(r.s.messages, cloneMessage(*note))
		c.TotalMessages++
	}
	r.s.conversations[id] = c
	return true, nil
}
