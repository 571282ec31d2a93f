// Package memstore keeps every repository in process memory for service and handler tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"anoa.com/lostfound/internal/entity"
	convRepo "anoa.com/lostfound/internal/modules/conversation/repository"
	itemRepo "anoa.com/lostfound/internal/modules/item/repository"
	notifRepo "anoa.com/lostfound/internal/modules/notification/repository"
	userRepo "anoa.com/lostfound/internal/modules/user/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Store struct {
	mu sync.Mutex

	users         map[uuid.UUID]entity.User
	items         map[uuid.UUID]entity.Item
	links         []entity.MatchLink
	conversations map[string]entity.Conversation
	messages      []entity.Message
	notifications []entity.Notification

	failures map[string]error
	nextID   uint
}

func New() *Store {
	return &Store{
		users:         make(map[uuid.UUID]entity.User),
		items:         make(map[uuid.UUID]entity.Item),
		conversations: make(map[string]entity.Conversation),
		failures:      make(map[string]error),
	}
}

// FailOn makes the named operation (e.g. "notifications.Create") return err until cleared with nil.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) fail(op string) error {
	return s.failures[op]
}

func (s *Store) id() uint {
	s.nextID++
	return s.nextID
}

func (s *Store) Users() userRepo.UserRepository { return &users{s} }

func (s *Store) Items() itemRepo.ItemRepository { return &items{s} }

func (s *Store) Conversations() convRepo.ConversationRepository { return &conversations{s} }

func (s *Store) Messages() convRepo.MessageRepository { return &messages{s} }

func (s *Store) Notifications() notifRepo.NotificationRepository { return &notifications{s} }

// PutUser stores u, assigning an id when missing.
func (s *Store) PutUser(u entity.User) entity.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	s.users[u.ID] = u
	return u
}

// PutItem stores it, assigning an id and an active status when missing.
func (s *Store) PutItem(it entity.Item) entity.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it.ID == uuid.Nil {
		it.ID, _ = uuid.NewV7()
	}
	if it.Status == "" {
		it.Status = entity.ItemStatusActive
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now()
	}
	it.IsPublic = true
	it.MatchLinks = nil
	s.items[it.ID] = it
	return it
}

// Item returns the stored item with its links, or nil.
func (s *Store) Item(id uuid.UUID) *entity.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil
	}
	it.MatchLinks = s.linksFrom(id)
	return &it
}

// Links returns every stored match link.
func (s *Store) Links() []entity.MatchLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.MatchLink(nil), s.links...)
}

// AllConversations returns every stored conversation.
func (s *Store) AllConversations() []entity.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, cloneConversation(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Conversation returns the stored conversation, or nil.
func (s *Store) Conversation(id string) *entity.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil
	}
	c = cloneConversation(c)
	return &c
}

// MessagesIn returns all messages of a conversation, deleted ones included.
func (s *Store) MessagesIn(conversationID string) []entity.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, cloneMessage(m))
		}
	}
	return out
}

// NotificationsFor returns the notifications stored for userID, oldest first.
func (s *Store) NotificationsFor(userID uuid.UUID) []entity.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// ArchivedItems lists items flagged non-public.
func (s *Store) ArchivedItems() []entity.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Item
	for _, it := range s.items {
		if !it.IsPublic {
			out = append(out, it)
		}
	}
	return out
}

func (s *Store) linksFrom(id uuid.UUID) []entity.MatchLink {
	var out []entity.MatchLink
	for _, l := range s.links {
		if l.ItemID == id {
			out = append(out, l)
		}
	}
	return out
}

func cloneConversation(c entity.Conversation) entity.Conversation {
	c.Participants = append([]entity.Participant(nil), c.Participants...)
	return c
}

func cloneMessage(m entity.Message) entity.Message {
	m.ReadBy = append([]entity.MessageRead(nil), m.ReadBy...)
	return m
}

type users struct{ s *Store }

func (r *users) Create(ctx context.Context, user *entity.User) error {
	*user = r.s.PutUser(*user)
	return nil
}

func (r *users) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (r *users) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}
