package repository

import (
	"context"
	"time"

	"anoa.com/lostfound/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageRepository interface {
	Create(ctx context.Context, msg *entity.Message) error
	// ListByConversation returns non-deleted messages in creation order.
	ListByConversation(ctx context.Context, conversationID string) ([]*entity.Message, error)
	// MarkRead adds a receipt for readerID on every message it did not send and has not read yet.
	MarkRead(ctx context.Context, conversationID string, readerID uuid.UUID, at time.Time) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, msg *entity.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *messageRepository) ListByConversation(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	var messages []*entity.Message
	err := r.db.WithContext(ctx).
		Preload("ReadBy").
		Where("conversation_id = ? AND is_deleted = ?", conversationID, false).
		Order("created_at asc, id asc").
		Find(&messages).Error
	return messages, err
}

func (r *messageRepository) MarkRead(ctx context.Context, conversationID string, readerID uuid.UUID, at time.Time) (int64, error) {
	var marked int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(`
			INSERT INTO message_reads (message_id, user_id, read_at)
			SELECT m.id, ?, ?
			FROM messages m
			WHERE m.conversation_id = ?
				AND m.sender_id <> ?
				AND m.is_deleted = false
				AND NOT EXISTS (
					SELECT 1 FROM message_reads r
					WHERE r.message_id = m.id AND r.user_id = ?
				)
			ON CONFLICT DO NOTHING
		`, readerID, at, conversationID, readerID, readerID)
		if result.Error != nil {
			return result.Error
		}
		marked = result.RowsAffected
		if marked == 0 {
			return nil
		}

		return tx.Model(&entity.Message{}).
			Where("conversation_id = ? AND sender_id <> ? AND status <> ?", conversationID, readerID, entity.MessageStatusRead).
			Update("status", entity.MessageStatusRead).Error
	})
	return marked, err
}
