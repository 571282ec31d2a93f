package memstore

import (
	"context"
	"sort"
	"time"

	"anoa.com/lostfound/internal/entity"
	"github.com/google/uuid"
)

type messages struct{ s *Store }

func (r *messages) Create(ctx context.Context, msg *entity.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("messages.Create"); err != nil {
		return err
	}
	r.s.messages = append(r.s.messages, cloneMessage(*msg))
	return nil
}

func (r *messages) ListByConversation(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Message
	for _, m := range r.s.messages {
		if m.ConversationID == conversationID && !m.IsDeleted {
			m := cloneMessage(m)
			out = append(out, &m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *messages) MarkRead(ctx context.Context, conversationID string, readerID uuid.UUID, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("messages.MarkRead"); err != nil {
		return 0, err
	}
	var marked int64
	for i := range r.s.messages {
		m := &r.s.messages[i]
		if m.ConversationID != conversationID || m.SenderID == readerID || m.IsDeleted || m.ReadByUser(readerID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, entity.MessageRead{
			ID:        r.s.id(),
			MessageID: m.ID,
			UserID:    readerID,
			ReadAt:    at,
		})
		m.Status = entity.MessageStatusRead
		marked++
	}
	return marked, nil
}
