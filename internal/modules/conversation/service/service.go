package conversation

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"anoa.com/lostfound/internal/entity"
	convRepo "anoa.com/lostfound/internal/modules/conversation/repository"
	itemRepo "anoa.com/lostfound/internal/modules/item/repository"
	notifService "anoa.com/lostfound/internal/modules/notification/service"
	userRepo "anoa.com/lostfound/internal/modules/user/repository"
	"anoa.com/lostfound/internal/ratelimit"
	"anoa.com/lostfound/internal/realtime"
	"anoa.com/lostfound/pkg/apperror"
	"anoa.com/lostfound/pkg/storage"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"
)

const (
	systemSenderName = "System"
	matchWelcomeText = "Hello! Our system found a potential match between your items. Let's verify the details to see if this is your lost/found item."
	previewLength    = 50
)

var readableStatuses = []entity.ConversationStatus{
	entity.ConversationStatusActive,
	entity.ConversationStatusResolved,
}

type Config struct {
	RateLimit    time.Duration
	UploadFolder string
}

type StartResult struct {
	Conversation *entity.Conversation `json:"conversation"`
	Created      bool                 `json:"created"`
}

type History struct {
	Conversation *entity.Conversation `json:"conversation"`
	Messages     []*entity.Message    `json:"messages"`
}

type Summary struct {
	ConversationID   string                    `json:"conversation_id"`
	Item             *entity.Item              `json:"item,omitempty"`
	OtherParticipant *entity.Participant       `json:"other_participant,omitempty"`
	Status           entity.ConversationStatus `json:"status"`
	LastActivityAt   time.Time                 `json:"last_activity_at"`
	UnreadCount      int                       `json:"unread_count"`
	TotalMessages    int                       `json:"total_messages"`
}

type ConversationService interface {
	// CreateFromMatch opens the chat for a matched pair, or returns the active
	// one already covering either item and either owner.
	CreateFromMatch(ctx context.Context, a, b *entity.Item) (*entity.Conversation, error)
	StartDirect(ctx context.Context, itemID, requesterID uuid.UUID) (*StartResult, error)
	SendMessage(ctx context.Context, conversationID string, senderID uuid.UUID, text string) (*entity.Message, error)
	SendAttachment(ctx context.Context, conversationID string, senderID uuid.UUID, r io.Reader, fileName string) (*entity.Message, error)
	FetchHistory(ctx context.Context, conversationID string, requesterID uuid.UUID) (*History, error)
	MarkRead(ctx context.Context, conversationID string, requesterID uuid.UUID) error
	ListConversations(ctx context.Context, userID uuid.UUID) ([]Summary, error)
	Resolve(ctx context.Context, conversationID string, requesterID uuid.UUID, notes string, itemReturned bool) error
	Close(ctx context.Context, conversationID string, requesterID uuid.UUID) error
	// Join requires an active participant of an active conversation and
	// returns the caller's participant entry.
	Join(ctx context.Context, conversationID string, userID uuid.UUID) (*entity.Participant, error)
	// Signal relays a client typing hint. Only typing and stop_typing are accepted.
	Signal(ctx context.Context, conversationID string, userID uuid.UUID, kind string) error
	// Presence announces that a joined participant came online or went offline.
	Presence(ctx context.Context, conversationID string, participant *entity.Participant, online bool) error
}

type conversationService struct {
	convRepo      convRepo.ConversationRepository
	msgRepo       convRepo.MessageRepository
	itemRepo      itemRepo.ItemRepository
	userRepo      userRepo.UserRepository
	notifications notifService.NotificationService
	broker        realtime.Broker
	guard         ratelimit.Guard
	files         storage.FileStorage
	namer         *DisplayNamer
	sanitizer     *bluemonday.Policy
	cfg           Config
	now           func() time.Time
}

func NewConversationService(
	convRepo convRepo.ConversationRepository,
	msgRepo convRepo.MessageRepository,
	itemRepo itemRepo.ItemRepository,
	userRepo userRepo.UserRepository,
	notifications notifService.NotificationService,
	broker realtime.Broker,
	guard ratelimit.Guard,
	files storage.FileStorage,
	namer *DisplayNamer,
	cfg Config,
) ConversationService {
	if namer == nil {
		namer = NewDisplayNamer(time.Now().UnixNano())
	}
	return &conversationService{
		convRepo:      convRepo,
		msgRepo:       msgRepo,
		itemRepo:      itemRepo,
		userRepo:      userRepo,
		notifications: notifications,
		broker:        broker,
		guard:         guard,
		files:         files,
		namer:         namer,
		sanitizer:     bluemonday.StrictPolicy(),
		cfg:           cfg,
		now:           time.Now,
	}
}

func newConversationID() string {
	return "chat_" + uuid.NewString()
}

func newMessageID() string {
	return "msg_" + uuid.Must(uuid.NewV7()).String()
}

func (s *conversationService) CreateFromMatch(ctx context.Context, a, b *entity.Item) (*entity.Conversation, error) {
	existing, err := s.convRepo.FindActiveForPair(ctx, []uuid.UUID{a.ID, b.ID}, []uuid.UUID{a.OwnerID, b.OwnerID})
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("look up existing conversation: %w", err)
	}

	if a.OwnerID == b.OwnerID {
		return nil, fmt.Errorf("both items belong to the same user: %w", apperror.ErrInvalidOperation)
	}

	// the lost report anchors the chat and its poster is the owner
	lost, found := a, b
	if a.Type != entity.ItemTypeLost && b.Type == entity.ItemTypeLost {
		lost, found = b, a
	}

	now := s.now()
	conv := &entity.Conversation{
		ID:     newConversationID(),
		ItemID: lost.ID,
		Participants: []entity.Participant{
			s.participant(lost.OwnerID, s.namer.Name(entity.ParticipantRoleOwner), entity.ParticipantRoleOwner, now),
			s.participant(found.OwnerID, s.namer.Name(entity.ParticipantRoleFinder), entity.ParticipantRoleFinder, now),
		},
		Status:         entity.ConversationStatusActive,
		LastActivityAt: now,
		TotalMessages:  1,
		UnreadCount:    1,
	}

	welcome := &entity.Message{
		ID:             newMessageID(),
		ConversationID: conv.ID,
		SenderID:       uuid.Nil,
		SenderName:     systemSenderName,
		Text:           matchWelcomeText,
		Type:           entity.MessageTypeSystem,
		Status:         entity.MessageStatusSent,
		CreatedAt:      now,
	}

	if err := s.convRepo.Create(ctx, conv, welcome); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	log.Printf("💬 [conversation] %s opened for match %s/%s", conv.ID, a.ID, b.ID)
	return conv, nil
}

func (s *conversationService) participant(userID uuid.UUID, name string, role entity.ParticipantRole, at time.Time) entity.Participant {
	return entity.Participant{
		UserID:      userID,
		DisplayName: name,
		Role:        role,
		JoinedAt:    at,
		IsActive:    true,
		LastSeenAt:  at,
	}
}

func (s *conversationService) StartDirect(ctx context.Context, itemID, requesterID uuid.UUID) (*StartResult, error) {
	item, err := s.itemRepo.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("item not found: %w", apperror.ErrNotFound)
		}
		return nil, err
	}

	if item.OwnerID == requesterID {
		return nil, fmt.Errorf("cannot chat with yourself: %w", apperror.ErrInvalidOperation)
	}

	// a match chat may be anchored to the counterpart item
	anchors := []uuid.UUID{item.ID}
	for _, link := range item.MatchLinks {
		anchors = append(anchors, link.MatchedItemID)
	}

	existing, err := s.convRepo.FindBetween(ctx, anchors, requesterID, item.OwnerID, readableStatuses)
	if err == nil {
		return &StartResult{Conversation: existing}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("look up existing conversation: %w", err)
	}

	poster, err := s.userRepo.FindByID(ctx, item.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("load item owner: %w", err)
	}
	requester, err := s.userRepo.FindByID(ctx, requesterID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user not found: %w", apperror.ErrNotFound)
		}
		return nil, err
	}

	posterRole, requesterRole := entity.ParticipantRoleOwner, entity.ParticipantRoleFinder
	welcomeText := fmt.Sprintf("Hello! I found your lost item %q. Let's discuss the details.", item.Title)
	if item.Type == entity.ItemTypeFound {
		posterRole, requesterRole = entity.ParticipantRoleFinder, entity.ParticipantRoleClaimer
		welcomeText = fmt.Sprintf("Hello! I think the found item %q is mine. Let's discuss the details.", item.Title)
	}

	now := s.now()
	conv := &entity.Conversation{
		ID:     newConversationID(),
		ItemID: item.ID,
		Participants: []entity.Participant{
			s.participant(poster.ID, poster.Name, posterRole, now),
			s.participant(requester.ID, requester.Name, requesterRole, now),
		},
		Status:         entity.ConversationStatusActive,
		LastActivityAt: now,
		TotalMessages:  1,
		UnreadCount:    1,
	}

	welcome := &entity.Message{
		ID:             newMessageID(),
		ConversationID: conv.ID,
		SenderID:       requester.ID,
		SenderName:     requester.Name,
		Text:           welcomeText,
		Type:           entity.MessageTypeSystem,
		Status:         entity.MessageStatusSent,
		CreatedAt:      now,
	}

	if err := s.convRepo.Create(ctx, conv, welcome); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	s.emit(ctx, notifService.Emission{
		UserID:   poster.ID,
		Title:    "New Chat Started",
		Body:     fmt.Sprintf("%s started a chat about your %s item %q", requester.Name, item.Type, item.Title),
		ItemID:   &item.ID,
		SenderID: &requester.ID,
		Payload:  notifService.ChatStarted{ConversationID: conv.ID, ItemID: item.ID},
	})
	s.emit(ctx, notifService.Emission{
		UserID:   requester.ID,
		Title:    "Chat Started",
		Body:     fmt.Sprintf("You started a chat about %q", item.Title),
		ItemID:   &item.ID,
		SenderID: &poster.ID,
		Payload:  notifService.ChatStarted{ConversationID: conv.ID, ItemID: item.ID},
	})

	return &StartResult{Conversation: conv, Created: true}, nil
}

// load returns the conversation and the caller's entry in it.
func (s *conversationService) load(ctx context.Context, conversationID string, userID uuid.UUID) (*entity.Conversation, *entity.Participant, error) {
	conv, err := s.convRepo.FindByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("conversation not found: %w", apperror.ErrNotFound)
		}
		return nil, nil, err
	}

	p := conv.Participant(userID)
	if p == nil {
		return nil, nil, fmt.Errorf("not a participant of this conversation: %w", apperror.ErrForbidden)
	}
	return conv, p, nil
}

// loadWritable additionally requires an active conversation and an active participant.
func (s *conversationService) loadWritable(ctx context.Context, conversationID string, userID uuid.UUID) (*entity.Conversation, *entity.Participant, error) {
	conv, p, err := s.load(ctx, conversationID, userID)
	if err != nil {
		return nil, nil, err
	}
	if !p.IsActive {
		return nil, nil, fmt.Errorf("participant has left this conversation: %w", apperror.ErrForbidden)
	}
	if conv.Status != entity.ConversationStatusActive {
		return nil, nil, fmt.Errorf("conversation is %s: %w", conv.Status, apperror.ErrForbidden)
	}
	return conv, p, nil
}

func (s *conversationService) checkRate(ctx context.Context, conversationID string, senderID uuid.UUID) error {
	if s.guard == nil || s.cfg.RateLimit <= 0 {
		return nil
	}

	allowed, err := s.guard.Acquire(ctx, ratelimit.UserActionKey(senderID, "send:"+conversationID), s.cfg.RateLimit)
	if err != nil {
		log.Printf("⚠️ [conversation] rate limit check failed: %v", err)
		return nil
	}
	if !allowed {
		return fmt.Errorf("sending too fast: %w", apperror.ErrRateLimitExceeded)
	}
	return nil
}

func (s *conversationService) cleanText(text string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(text)))
}

func (s *conversationService) SendMessage(ctx context.Context, conversationID string, senderID uuid.UUID, text string) (*entity.Message, error) {
	conv, p, err := s.loadWritable(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	text = s.cleanText(text)
	if text == "" {
		return nil, fmt.Errorf("message text is required: %w", apperror.ErrBadRequest)
	}
	if utf8.RuneCountInString(text) > entity.MaxMessageLength {
		return nil, fmt.Errorf("message exceeds %d characters: %w", entity.MaxMessageLength, apperror.ErrBadRequest)
	}

	if err := s.checkRate(ctx, conv.ID, senderID); err != nil {
		return nil, err
	}

	msg := &entity.Message{
		ID:             newMessageID(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		SenderName:     p.DisplayName,
		Text:           text,
		Type:           entity.MessageTypeText,
		Status:         entity.MessageStatusSent,
		CreatedAt:      s.now(),
	}

	if err := s.msgRepo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}

	s.afterSend(ctx, conv, p, msg, text)
	return msg, nil
}

func (s *conversationService) SendAttachment(ctx context.Context, conversationID string, senderID uuid.UUID, r io.Reader, fileName string) (*entity.Message, error) {
	if s.files == nil {
		return nil, fmt.Errorf("attachments are not available: %w", apperror.ErrBadRequest)
	}

	conv, p, err := s.loadWritable(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	if err := s.checkRate(ctx, conv.ID, senderID); err != nil {
		return nil, err
	}

	upload, err := s.files.Upload(ctx, r, s.cfg.UploadFolder, fileName)
	if err != nil {
		return nil, err
	}

	msgType := entity.MessageTypeFile
	preview := "sent a file"
	if upload.IsImage {
		msgType = entity.MessageTypeImage
		preview = "sent a photo"
	}

	msg := &entity.Message{
		ID:             newMessageID(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		SenderName:     p.DisplayName,
		Text:           upload.URL,
		Type:           msgType,
		Status:         entity.MessageStatusSent,
		CreatedAt:      s.now(),
	}

	if err := s.msgRepo.Create(ctx, msg); err != nil {
		if delErr := s.files.Delete(context.Background(), upload.URL); delErr != nil {
			log.Printf("⚠️ [conversation] orphaned attachment %s: %v", upload.URL, delErr)
		}
		return nil, fmt.Errorf("store message: %w", err)
	}

	s.afterSend(ctx, conv, p, msg, preview)
	return msg, nil
}

// afterSend runs the side effects of an accepted message. None of them can
// fail the send.
func (s *conversationService) afterSend(ctx context.Context, conv *entity.Conversation, sender *entity.Participant, msg *entity.Message, preview string) {
	if err := s.convRepo.RecordMessage(ctx, conv.ID, msg.CreatedAt); err != nil {
		log.Printf("⚠️ [conversation] counters for %s not updated: %v", conv.ID, err)
	}

	s.publish(ctx, conv.ID, newMessageEvent(msg))

	other := conv.Other(sender.UserID)
	if other == nil {
		return
	}
	senderID := sender.UserID
	s.emit(ctx, notifService.Emission{
		UserID:   other.UserID,
		Title:    "New Message",
		Body:     fmt.Sprintf("%s: %s", sender.DisplayName, truncate(preview, previewLength)),
		SenderID: &senderID,
		Payload:  notifService.MessageReceived{ConversationID: conv.ID, MessageID: msg.ID},
	})
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func (s *conversationService) publish(ctx context.Context, conversationID string, event interface{}) {
	if s.broker == nil {
		return
	}
	if err := realtime.PublishJSON(ctx, s.broker, realtime.ConversationChannel(conversationID), event); err != nil {
		log.Printf("⚠️ [conversation] broadcast on %s failed: %v", conversationID, err)
	}
}

func (s *conversationService) emit(ctx context.Context, e notifService.Emission) {
	if s.notifications == nil {
		return
	}
	if _, err := s.notifications.Emit(ctx, e); err != nil {
		log.Printf("⚠️ [conversation] notification %s for %s failed: %v", e.Payload.Kind(), e.UserID, err)
	}
}

func (s *conversationService) FetchHistory(ctx context.Context, conversationID string, requesterID uuid.UUID) (*History, error) {
	conv, _, err := s.load(ctx, conversationID, requesterID)
	if err != nil {
		return nil, err
	}

	if err := s.markRead(ctx, conv.ID, requesterID); err != nil {
		return nil, err
	}

	messages, err := s.msgRepo.ListByConversation(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	conv.UnreadCount = 0
	return &History{Conversation: conv, Messages: messages}, nil
}

func (s *conversationService) MarkRead(ctx context.Context, conversationID string, requesterID uuid.UUID) error {
	conv, _, err := s.load(ctx, conversationID, requesterID)
	if err != nil {
		return err
	}
	return s.markRead(ctx, conv.ID, requesterID)
}

func (s *conversationService) markRead(ctx context.Context, conversationID string, readerID uuid.UUID) error {
	now := s.now()
	if _, err := s.msgRepo.MarkRead(ctx, conversationID, readerID, now); err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}
	if err := s.convRepo.TouchParticipant(ctx, conversationID, readerID, now); err != nil {
		return fmt.Errorf("update last seen: %w", err)
	}
	if err := s.convRepo.ResetUnread(ctx, conversationID); err != nil {
		return fmt.Errorf("reset unread count: %w", err)
	}
	return nil
}

func (s *conversationService) ListConversations(ctx context.Context, userID uuid.UUID) ([]Summary, error) {
	convs, err := s.convRepo.ListByParticipant(ctx, userID, readableStatuses)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(convs))
	for _, conv := range convs {
		summaries = append(summaries, Summary{
			ConversationID:   conv.ID,
			Item:             conv.Item,
			OtherParticipant: conv.Other(userID),
			Status:           conv.Status,
			LastActivityAt:   conv.LastActivityAt,
			UnreadCount:      conv.UnreadCount,
			TotalMessages:    conv.TotalMessages,
		})
	}
	return summaries, nil
}

func (s *conversationService) Resolve(ctx context.Context, conversationID string, requesterID uuid.UUID, notes string, itemReturned bool) error {
	conv, p, err := s.load(ctx, conversationID, requesterID)
	if err != nil {
		return err
	}

	outcome := "Item return pending."
	if itemReturned {
		outcome = "Item has been returned."
	}
	text := fmt.Sprintf("✅ %s marked this conversation as resolved. %s", p.DisplayName, outcome)

	note, err := s.transition(ctx, conv, p, entity.ConversationStatusResolved, s.cleanText(notes), itemReturned, text)
	if err != nil {
		return err
	}

	if other := conv.Other(requesterID); other != nil {
		s.emit(ctx, notifService.Emission{
			UserID:   other.UserID,
			Title:    "Chat Resolved",
			Body:     fmt.Sprintf("%s marked the conversation as resolved", p.DisplayName),
			ItemID:   &conv.ItemID,
			SenderID: &requesterID,
			Payload:  notifService.ItemResolved{ConversationID: conv.ID, ItemReturned: itemReturned},
		})
	}

	log.Printf("✅ [conversation] %s resolved by %s (message %s)", conv.ID, requesterID, note.ID)
	return nil
}

func (s *conversationService) Close(ctx context.Context, conversationID string, requesterID uuid.UUID) error {
	conv, p, err := s.load(ctx, conversationID, requesterID)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("🔒 %s closed this conversation.", p.DisplayName)
	if _, err := s.transition(ctx, conv, p, entity.ConversationStatusClosed, "", false, text); err != nil {
		return err
	}
	return nil
}

// transition moves an active conversation to status. Calling it on a
// conversation that already left the active state fails and writes nothing.
func (s *conversationService) transition(ctx context.Context, conv *entity.Conversation, p *entity.Participant, status entity.ConversationStatus, notes string, itemReturned bool, text string) (*entity.Message, error) {
	if conv.Status != entity.ConversationStatusActive {
		return nil, fmt.Errorf("conversation is already %s: %w", conv.Status, apperror.ErrInvalidOperation)
	}

	now := s.now()
	note := &entity.Message{
		ID:             newMessageID(),
		ConversationID: conv.ID,
		SenderID:       p.UserID,
		SenderName:     p.DisplayName,
		Text:           text,
		Type:           entity.MessageTypeSystem,
		Status:         entity.MessageStatusSent,
		CreatedAt:      now,
	}

	moved, err := s.convRepo.Transition(ctx, conv.ID, status, convRepo.Resolution{
		At:           now,
		By:           p.UserID,
		Notes:        notes,
		ItemReturned: itemReturned,
	}, note)
	if err != nil {
		return nil, fmt.Errorf("update conversation status: %w", err)
	}
	if !moved {
		return nil, fmt.Errorf("conversation is no longer active: %w", apperror.ErrInvalidOperation)
	}

	s.publish(ctx, conv.ID, newMessageEvent(note))
	s.publish(ctx, conv.ID, StatusEvent{
		Type:           EventStatus,
		ConversationID: conv.ID,
		Status:         status,
		ChangedBy:      p.UserID,
		Timestamp:      now,
	})
	return note, nil
}

func (s *conversationService) Join(ctx context.Context, conversationID string, userID uuid.UUID) (*entity.Participant, error) {
	_, p, err := s.loadWritable(ctx, conversationID, userID)
	return p, err
}

func (s *conversationService) Signal(ctx context.Context, conversationID string, userID uuid.UUID, kind string) error {
	if !isClientSignal(kind) {
		return fmt.Errorf("unknown signal %q: %w", kind, apperror.ErrBadRequest)
	}

	// the conversation may have been resolved or closed since the socket opened
	_, p, err := s.loadWritable(ctx, conversationID, userID)
	if err != nil {
		return err
	}

	s.publishSignal(ctx, conversationID, p, kind)
	return nil
}

func (s *conversationService) Presence(ctx context.Context, conversationID string, participant *entity.Participant, online bool) error {
	if participant == nil || participant.ConversationID != conversationID {
		return fmt.Errorf("not a participant of this conversation: %w", apperror.ErrForbidden)
	}

	kind := EventUserOffline
	if online {
		kind = EventUserOnline
	}
	s.publishSignal(ctx, conversationID, participant, kind)
	return nil
}

func (s *conversationService) publishSignal(ctx context.Context, conversationID string, p *entity.Participant, kind string) {
	s.publish(ctx, conversationID, SignalEvent{
		Type:           kind,
		ConversationID: conversationID,
		UserID:         p.UserID,
		DisplayName:    p.DisplayName,
		Timestamp:      s.now(),
	})
}
