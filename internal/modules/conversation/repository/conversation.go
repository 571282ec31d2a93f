package repository

import (
	"context"
	"time"

	"anoa.com/lostfound/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Resolution carries the fields stamped on a conversation when it leaves the active state.
type Resolution struct {
	At           time.Time
	By           uuid.UUID
	Notes        string
	ItemReturned bool
}

type ConversationRepository interface {
	// Create stores the conversation, its participants and the seed message together.
	Create(ctx context.Context, conv *entity.Conversation, seed *entity.Message) error
	FindByID(ctx context.Context, id string) (*entity.Conversation, error)
	// FindActiveForPair looks for an active conversation anchored to any of itemIDs
	// that has any of userIDs as participant.
	FindActiveForPair(ctx context.Context, itemIDs, userIDs []uuid.UUID) (*entity.Conversation, error)
	// FindBetween looks for a conversation anchored to any of itemIDs in one of
	// statuses that has both users as participants.
	FindBetween(ctx context.Context, itemIDs []uuid.UUID, userA, userB uuid.UUID, statuses []entity.ConversationStatus) (*entity.Conversation, error)
	ListByParticipant(ctx context.Context, userID uuid.UUID, statuses []entity.ConversationStatus) ([]*entity.Conversation, error)
	RecordMessage(ctx context.Context, id string, at time.Time) error
	ResetUnread(ctx context.Context, id string) error
	TouchParticipant(ctx context.Context, id string, userID uuid.UUID, at time.Time) error
	// Transition moves an active conversation to status and appends the system message.
	// It returns false when the conversation was no longer active.
	Transition(ctx context.Context, id string, status entity.ConversationStatus, res Resolution, note *entity.Message) (bool, error)
}

type conversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Create(ctx context.Context, conv *entity.Conversation, seed *entity.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		if seed == nil {
			return nil
		}
		return tx.Create(seed).Error
	})
}

func (r *conversationRepository) FindByID(ctx context.Context, id string) (*entity.Conversation, error) {
	var conv entity.Conversation
	if err := r.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at asc, id asc")
		}).
		First(&conv, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) FindActiveForPair(ctx context.Context, itemIDs, userIDs []uuid.UUID) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := r.db.WithContext(ctx).
		Where("status = ? AND item_id IN ?", entity.ConversationStatusActive, itemIDs).
		Where("id IN (?)", r.db.Model(&entity.Participant{}).
			Select("conversation_id").
			Where("user_id IN ?", userIDs)).
		Preload("Participants").
		Order("created_at asc").
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) FindBetween(ctx context.Context, itemIDs []uuid.UUID, userA, userB uuid.UUID, statuses []entity.ConversationStatus) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := r.db.WithContext(ctx).
		Where("item_id IN ? AND status IN ?", itemIDs, statuses).
		Where("id IN (?)", r.db.Model(&entity.Participant{}).
			Select("conversation_id").
			Where("user_id = ?", userA)).
		Where("id IN (?)", r.db.Model(&entity.Participant{}).
			Select("conversation_id").
			Where("user_id = ?", userB)).
		Preload("Participants").
		Order("created_at asc").
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) ListByParticipant(ctx context.Context, userID uuid.UUID, statuses []entity.ConversationStatus) ([]*entity.Conversation, error) {
	var convs []*entity.Conversation
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Where("id IN (?)", r.db.Model(&entity.Participant{}).
			Select("conversation_id").
			Where("user_id = ?", userID)).
		Preload("Participants").
		Preload("Item").
		Order("last_activity_at desc").
		Find(&convs).Error
	return convs, err
}

func (r *conversationRepository) RecordMessage(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&entity.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_messages":   gorm.Expr("total_messages + 1"),
			"unread_count":     gorm.Expr("unread_count + 1"),
			"last_activity_at": at,
		}).Error
}

func (r *conversationRepository) ResetUnread(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&entity.Conversation{}).
		Where("id = ?", id).
		Update("unread_count", 0).Error
}

func (r *conversationRepository) TouchParticipant(ctx context.Context, id string, userID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&entity.Participant{}).
		Where("conversation_id = ? AND user_id = ?", id, userID).
		Update("last_seen_at", at).Error
}

func (r *conversationRepository) Transition(ctx context.Context, id string, status entity.ConversationStatus, res Resolution, note *entity.Message) (bool, error) {
	moved := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":           status,
			"last_activity_at": res.At,
		}
		if status == entity.ConversationStatusResolved {
			updates["resolved_at"] = res.At
			updates["resolved_by"] = res.By
			updates["resolution_notes"] = res.Notes
			updates["item_returned"] = res.ItemReturned
		}

		result := tx.Model(&entity.Conversation{}).
			Where("id = ? AND status = ?", id, entity.ConversationStatusActive).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		moved = true

		if note == nil {
			return nil
		}
		if err := tx.Create(note).Error; err != nil {
			return err
		}
		return tx.Model(&entity.Conversation{}).
			Where("id = ?", id).
			Update("total_messages", gorm.Expr("total_messages + 1")).Error
	})
	return moved, err
}
