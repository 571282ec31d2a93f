package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"anoa.com/lostfound/internal/entity"
	notifRepo "anoa.com/lostfound/internal/modules/notification/repository"
	"anoa.com/lostfound/internal/realtime"
	"anoa.com/lostfound/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Emission describes one notification to write for one recipient.
type Emission struct {
	UserID   uuid.UUID
	Title    string
	Body     string
	ItemID   *uuid.UUID
	SenderID *uuid.UUID
	Payload  Payload
}

type NotificationService interface {
	// Emit persists the notification, then pushes it to the recipient's channel.
	// Push failures are logged only.
	Emit(ctx context.Context, e Emission) (*entity.Notification, error)
	GetNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) ([]entity.Notification, error)
	MarkAsRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

type notificationService struct {
	repo   notifRepo.NotificationRepository
	broker realtime.Broker
}

func NewNotificationService(repo notifRepo.NotificationRepository, broker realtime.Broker) NotificationService {
	return &notificationService{
		repo:   repo,
		broker: broker,
	}
}

func (s *notificationService) Emit(ctx context.Context, e Emission) (*entity.Notification, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("notification payload is required: %w", apperror.ErrInvalidInput)
	}

	metadata, err := encodePayload(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode notification payload: %w", err)
	}

	notification := &entity.Notification{
		UserID:   e.UserID,
		Type:     e.Payload.Kind(),
		Title:    e.Title,
		Message:  e.Body,
		ItemID:   e.ItemID,
		SenderID: e.SenderID,
		Metadata: metadata,
	}

	// 1. Save to DB
	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, err
	}

	// 2. Push to live subscribers if a broker is available
	if s.broker != nil {
		if err := realtime.PublishJSON(ctx, s.broker, realtime.NotificationChannel(notification.UserID), notification); err != nil {
			log.Printf("notification push failed for user %s: %v", notification.UserID, err)
		}
	}

	return notification, nil
}

func (s *notificationService) GetNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) ([]entity.Notification, error) {
	return s.repo.GetByUserID(ctx, userID, limit, offset)
}

func (s *notificationService) MarkAsRead(ctx context.Context, id, userID uuid.UUID) error {
	if _, err := s.owned(ctx, id, userID); err != nil {
		return err
	}
	return s.repo.MarkAsRead(ctx, id)
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

func (s *notificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *notificationService) Delete(ctx context.Context, id, userID uuid.UUID) error {
	if _, err := s.owned(ctx, id, userID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *notificationService) owned(ctx context.Context, id, userID uuid.UUID) (*entity.Notification, error) {
	notification, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("notification not found: %w", apperror.ErrNotFound)
		}
		return nil, err
	}
	if notification.UserID != userID {
		return nil, fmt.Errorf("notification belongs to another user: %w", apperror.ErrForbidden)
	}
	return notification, nil
}
