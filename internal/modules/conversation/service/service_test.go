package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"anoa.com/lostfound/internal/entity"
	notifService "anoa.com/lostfound/internal/modules/notification/service"
	"anoa.com/lostfound/internal/ratelimit"
	"anoa.com/lostfound/internal/realtime"
	"anoa.com/lostfound/internal/testutil/memstore"
	"anoa.com/lostfound/pkg/apperror"
	"anoa.com/lostfound/pkg/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store *memstore.Store
	hub   *realtime.LocalHub
	svc   *conversationService
	clock time.Time
	alice entity.User
	bob   entity.User
	lost  entity.Item
	found entity.Item
}

func newFixture(t *testing.T, files storage.FileStorage) *fixture {
	t.Helper()

	f := &fixture{
		store: memstore.New(),
		hub:   realtime.NewLocalHub(),
		clock: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	now := func() time.Time { return f.clock }

	f.alice = f.store.PutUser(entity.User{Name: "Alice", Email: "alice@campus.test"})
	f.bob = f.store.PutUser(entity.User{Name: "Bob", Email: "bob@campus.test"})
	f.lost = f.store.PutItem(entity.Item{
		Type: entity.ItemTypeLost, Category: "keys", Title: "Silver house keys",
		Location: "Main Gate", Date: f.clock.Add(-48 * time.Hour), OwnerID: f.alice.ID,
	})
	f.found = f.store.PutItem(entity.Item{
		Type: entity.ItemTypeFound, Category: "keys", Title: "House keys",
		Location: "Main Gate", Date: f.clock.Add(-24 * time.Hour), OwnerID: f.bob.ID,
	})

	svc := NewConversationService(
		f.store.Conversations(),
		f.store.Messages(),
		f.store.Items(),
		f.store.Users(),
		notifService.NewNotificationService(f.store.Notifications(), f.hub),
		f.hub,
		ratelimit.NewMemoryGuard(now),
		files,
		NewDisplayNamer(7),
		Config{RateLimit: time.Second, UploadFolder: "chat_test"},
	).(*conversationService)
	svc.now = now
	f.svc = svc
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) openMatch(t *testing.T) *entity.Conversation {
	t.Helper()
	conv, err := f.svc.CreateFromMatch(context.Background(), &f.found, &f.lost)
	require.NoError(t, err)
	return conv
}

func notificationTypes(ns []entity.Notification) []entity.NotificationType {
	var out []entity.NotificationType
	for _, n := range ns {
		out = append(out, n.Type)
	}
	return out
}

func TestCreateFromMatchOpensOneConversation(t *testing.T) {
	f := newFixture(t, nil)

	conv := f.openMatch(t)
	require.True(t, strings.HasPrefix(conv.ID, "chat_"))
	require.Equal(t, f.lost.ID, conv.ItemID)
	require.Equal(t, entity.ConversationStatusActive, conv.Status)
	require.Equal(t, 1, conv.TotalMessages)
	require.Len(t, conv.Participants, 2)

	owner := conv.Participant(f.alice.ID)
	finder := conv.Participant(f.bob.ID)
	require.NotNil(t, owner)
	require.NotNil(t, finder)
	require.Equal(t, entity.ParticipantRoleOwner, owner.Role)
	require.Equal(t, entity.ParticipantRoleFinder, finder.Role)
	require.True(t, strings.HasSuffix(owner.DisplayName, "O"))
	require.True(t, strings.HasSuffix(finder.DisplayName, "F"))
	require.NotEqual(t, "Alice", owner.DisplayName)

	msgs := f.store.MessagesIn(conv.ID)
	require.Len(t, msgs, 1)
	require.Equal(t, entity.MessageTypeSystem, msgs[0].Type)
	require.Equal(t, uuid.Nil, msgs[0].SenderID)
	require.Equal(t, matchWelcomeText, msgs[0].Text)

	again, err := f.svc.CreateFromMatch(context.Background(), &f.lost, &f.found)
	require.NoError(t, err)
	require.Equal(t, conv.ID, again.ID)
	require.Len(t, f.store.AllConversations(), 1)
}

func TestCreateFromMatchRejectsSameOwner(t *testing.T) {
	f := newFixture(t, nil)
	own := f.store.PutItem(entity.Item{Type: entity.ItemTypeFound, Category: "keys", Title: "Keys", OwnerID: f.alice.ID})

	_, err := f.svc.CreateFromMatch(context.Background(), &f.lost, &own)
	require.ErrorIs(t, err, apperror.ErrInvalidOperation)
	require.Empty(t, f.store.AllConversations())
}

func TestStartDirectReusesMatchConversation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.store.Items().CreateMatchPair(ctx, f.lost.ID, f.found.ID, 0.92, f.clock))
	conv := f.openMatch(t)

	// the match chat is anchored on the lost item, the request targets the found one
	res, err := f.svc.StartDirect(ctx, f.found.ID, f.alice.ID)
	require.NoError(t, err)
	require.False(t, res.Created)
	require.Equal(t, conv.ID, res.Conversation.ID)
	require.Len(t, f.store.AllConversations(), 1)
}

func TestStartDirectCreatesConversation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.StartDirect(ctx, f.found.ID, f.alice.ID)
	require.NoError(t, err)
	require.True(t, res.Created)

	conv := res.Conversation
	require.Equal(t, f.found.ID, conv.ItemID)
	require.Equal(t, entity.ParticipantRoleFinder, conv.Participant(f.bob.ID).Role)
	require.Equal(t, entity.ParticipantRoleClaimer, conv.Participant(f.alice.ID).Role)
	require.Equal(t, "Bob", conv.Participant(f.bob.ID).DisplayName)

	msgs := f.store.MessagesIn(conv.ID)
	require.Len(t, msgs, 1)
	require.Equal(t, f.alice.ID, msgs[0].SenderID)
	require.Contains(t, msgs[0].Text, `"House keys" is mine`)

	bobNotes := f.store.NotificationsFor(f.bob.ID)
	require.Len(t, bobNotes, 1)
	require.Equal(t, "New Chat Started", bobNotes[0].Title)
	require.Equal(t, entity.NotificationChatStarted, bobNotes[0].Type)
	aliceNotes := f.store.NotificationsFor(f.alice.ID)
	require.Len(t, aliceNotes, 1)
	require.Equal(t, "Chat Started", aliceNotes[0].Title)

	again, err := f.svc.StartDirect(ctx, f.found.ID, f.alice.ID)
	require.NoError(t, err)
	require.False(t, again.Created)
	require.Equal(t, conv.ID, again.Conversation.ID)
}

func TestStartDirectErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.StartDirect(ctx, f.lost.ID, f.alice.ID)
	require.ErrorIs(t, err, apperror.ErrInvalidOperation)

	_, err = f.svc.StartDirect(ctx, uuid.New(), f.alice.ID)
	require.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	conv := f.openMatch(t)

	sub, err := f.hub.Subscribe(ctx, realtime.ConversationChannel(conv.ID))
	require.NoError(t, err)
	defer sub.Close()

	msg, err := f.svc.SendMessage(ctx, conv.ID, f.bob.ID, "  <b>Is it</b> a silver keyring? ")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(msg.ID, "msg_"))
	require.Equal(t, "Is it a silver keyring?", msg.Text)
	require.Equal(t, entity.MessageStatusSent, msg.Status)
	require.Equal(t, conv.Participant(f.bob.ID).DisplayName, msg.SenderName)

	stored := f.store.Conversation(conv.ID)
	require.Equal(t, 2, stored.TotalMessages)
	require.Equal(t, f.clock, stored.LastActivityAt)

	select {
	case data := <-sub.C:
		var event MessageEvent
		require.NoError(t, json.Unmarshal(data, &event))
		require.Equal(t, EventMessage, event.Type)
		require.Equal(t, msg.ID, event.MessageID)
		require.Equal(t, msg.Text, event.Text)
	case <-time.After(time.Second):
		t.Fatal("no message event published")
	}

	notes := f.store.NotificationsFor(f.alice.ID)
	require.Len(t, notes, 1)
	require.Equal(t, entity.NotificationMessageReceived, notes[0].Type)
	require.Equal(t, msg.SenderName+": Is it a silver keyring?", notes[0].Message)
	require.Empty(t, f.store.NotificationsFor(f.bob.ID))
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	conv := f.openMatch(t)
	stranger := f.store.PutUser(entity.User{Name: "Eve", Email: "eve@campus.test"})

	tests := []struct {
		name   string
		convID string
		sender uuid.UUID
		text   string
		want   error
	}{
		{"empty after sanitizing", conv.ID, f.bob.ID, "<script>alert(1)</script>", apperror.ErrBadRequest},
		{"blank", conv.ID, f.bob.ID, "   ", apperror.ErrBadRequest},
		{"too long", conv.ID, f.bob.ID, strings.Repeat("é", entity.MaxMessageLength+1), apperror.ErrBadRequest},
		{"not a participant", conv.ID, stranger.ID, "hello", apperror.ErrForbidden},
		{"unknown conversation", "chat_missing", f.bob.ID, "hello", apperror.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SendMessage(ctx, tt.convID, tt.sender, tt.text)
			require.ErrorIs(t, err, tt.want)
		})
	}
	require.Len(t, f.store.MessagesIn(conv.ID), 1)
}

func TestSendMessageAcceptsMaxLength(t *testing.T) {
	f := newFixture(t, nil)
	conv := f.openMatch(t)

	_, err := f.svc.SendMessage(context.Background(), conv.ID, f.bob.ID, strings.Repeat("é", entity.MaxMessageLength))
	require.NoError(t, err)
}

func TestSendMessageRateLimited(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	conv := f.openMatch(t)

	_, err := f.svc.SendMessage(ctx, conv.ID, f.bob.ID, "first")
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, conv.ID, f.bob.ID, "second")
	require.ErrorIs(t, err, apperror.ErrRateLimitExceeded)

	// the other participant has an independent budget
	_, err = f.svc.SendMessage(ctx, conv.ID, f.alice.ID, "reply")
	require.NoError(t, err)

	f.advance(time.Second)
	_, err = f.svc.SendMessage(ctx, conv.ID, f.bob.ID, "second")
	require.NoError(t, err)
	require.Len(t, f.store.MessagesIn(conv.ID), 4)
}

func TestSendMessageSideEffectsAreBestEffort(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	conv := f.openMatch(t)

	f.store.FailOn("notifications.Create", errors.New("notifications down"))
	f.store.FailOn("conversations.RecordMessage", errors.New("counters down"))

	msg, err := f.svc.SendMessage(ctx, conv.ID, f.bob.ID, "still delivered")
	require.NoError(t, err)
	require.Len(t, f.store.MessagesIn(conv.ID), 2)
	require.Equal(t, msg.ID, f.store.MessagesIn(conv.ID)[1].ID)
	require.Empty(t, f.store.NotificationsFor(f.alice.ID))
}

func TestSendMessageStoreFailure(t *testing.T) {
	f := newFixture(t, nil)
	conv := f.openMatch(t)
	f.store.FailOn("messages.Create", errors.New("disk full"))

	_, err := f.svc.SendMessage(context.Background(), conv.ID, f.bob.ID, "lost")
	require.Error(t, err)
	require.Empty(t, f.store.NotificationsFor(f.alice.ID))
	require.Equal(t, 1, f.store.Conversation(conv.ID).TotalMessages)
}

func TestFetchHistoryMarksReadOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	conv := f.openMatch(t)

	sent, err := f.svc.SendMessage(ctx, conv.ID, f.bob.ID, "found them by the gate")
	require.NoError(t, err)

	f.advance(time.Minute)
	history, err := f.svc.FetchHistory(ctx, conv.ID, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, history.Messages, 2)
	require.Equal(t, 0, history.Conversation.UnreadCount)
	require.Equal(t, sent.ID, history.Messages[1].ID)
	require.Equal(t, entity.MessageStatusRead, history.Messages[1].Status)
	require.Len(t, history.Messages[1].ReadBy, 1)

	f.advance(time.Minute)
	require.NoError(t, f.svc.MarkRead(ctx, conv.ID, f.alice.ID))

	for _, m := range f.store.MessagesIn(conv.ID) {
		require.LessOrEqual(t, len(m.ReadBy), 1)
	}
	stored := f.store.Conversation(conv.ID)
	require.Equal(t, 0, stored.UnreadCount)
	require.Equal(t, f.clock, stored.Participant(f.alice.ID).LastSeenAt)
}

func TestFetchHistoryAccess(t *testing.T) {
	f := newFixture(t, nil)
	conv := f.openMatch(t)
	stranger := f.store.PutUser(entity.User{Name: "Eve", Email: "eve@campus.test"})

	_, err := f.svc.FetchHistory(context.Background(), conv.ID, stranger.ID)
	require.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.svc.FetchHistory(context.Background(), "chat_missing", f.alice.ID)
	require.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestResolve(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	conv := f.openMatch(t)

	require.NoError(t, f.svc.Resolve(ctx, conv.ID, f.alice.ID, "Picked up at the <i>front desk</i>", true))

	stored := f.store.Conversation(conv.ID)
	require.Equal(t, entity.ConversationStatusResolved, stored.Status)
	require.True(t, stored.ItemReturned)
	require.Equal(t, "Picked up at the front desk", stored.ResolutionNotes)
	require.Equal(t, f.alice.ID, *stored.ResolvedBy)
	require.Equal(t, f.clock, *stored.ResolvedAt)

	msgs := f.store.MessagesIn(conv.ID)
	require.Len(t, msgs, 2)
	require.Equal(t, entity.MessageTypeSystem, msgs[1].Type)
	require.True(t, strings.HasPrefix(msgs[1].Text, "✅ "))
	require.True(t, strings.HasSuffix(msgs[1].Text, "Item has been returned."))

	require.Equal(t, []entity.NotificationType{entity.NotificationItemResolved}, notificationTypes(f.store.NotificationsFor(f.bob.ID)))

	err := f.svc.Resolve(ctx, conv.ID, f.bob.ID, "", false)
	require.ErrorIs(t, err, apperror.ErrInvalidOperation)
	require.Len(t, f.store.MessagesIn(conv.ID), 2)

	_, err = f.svc.SendMessage(ctx, conv.ID, f.bob.ID, "thanks")
	require.ErrorIs(t, err, apperror.ErrForbidden)

	history, err := f.svc.FetchHistory(ctx, conv.ID, f.bob.ID)
	require.NoError(t, err)
	require.Len(t, history.Messages, 2)
}

func TestCloseHidesConversation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	conv := f.openMatch(t)

	list, err := f.svc.ListConversations(ctx, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, f.svc.Close(ctx, conv.ID, f.bob.ID))
	require.Equal(t, entity.ConversationStatusClosed, f.store.Conversation(conv.ID).Status)

	list, err = f.svc.ListConversations(ctx, f.alice.ID)
	require.NoError(t, err)
	require.Empty(t, list)

	require.ErrorIs(t, f.svc.Close(ctx, conv.ID, f.bob.ID), apperror.ErrInvalidOperation)
	require.ErrorIs(t, f.svc.Resolve(ctx, conv.ID, f.alice.ID, "", true), apperror.ErrInvalidOperation)
}

func TestListConversations(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	matched := f.openMatch(t)

	carol := f.store.PutUser(entity.User{Name: "Carol", Email: "carol@campus.test"})
	f.advance(time.Hour)
	direct, err := f.svc.StartDirect(ctx, f.lost.ID, carol.ID)
	require.NoError(t, err)

	list, err := f.svc.ListConversations(ctx, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, direct.Conversation.ID, list[0].ConversationID)
	require.Equal(t, carol.ID, list[0].OtherParticipant.UserID)
	require.Equal(t, matched.ID, list[1].ConversationID)
	require.Equal(t, f.bob.ID, list[1].OtherParticipant.UserID)
	require.Equal(t, f.lost.ID, list[1].Item.ID)
}

func TestSignal(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	conv := f.openMatch(t)

	p, err := f.svc.Join(ctx, conv.ID, f.bob.ID)
	require.NoError(t, err)

	sub, err := f.hub.Subscribe(ctx, realtime.ConversationChannel(conv.ID))
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, f.svc.Signal(ctx, conv.ID, f.bob.ID, EventTyping))
	select {
	case data := <-sub.C:
		var event SignalEvent
		require.NoError(t, json.Unmarshal(data, &event))
		require.Equal(t, EventTyping, event.Type)
		require.Equal(t, f.bob.ID, event.UserID)
		require.Equal(t, p.DisplayName, event.DisplayName)
	case <-time.After(time.Second):
		t.Fatal("no signal published")
	}

	require.ErrorIs(t, f.svc.Signal(ctx, conv.ID, f.bob.ID, "dance"), apperror.ErrBadRequest)
	require.ErrorIs(t, f.svc.Signal(ctx, conv.ID, f.bob.ID, EventUserOnline), apperror.ErrBadRequest)
	require.ErrorIs(t, f.svc.Signal(ctx, conv.ID, f.bob.ID, EventUserOffline), apperror.ErrBadRequest)

	require.NoError(t, f.svc.Presence(ctx, conv.ID, p, false))
	select {
	case data := <-sub.C:
		var event SignalEvent
		require.NoError(t, json.Unmarshal(data, &event))
		require.Equal(t, EventUserOffline, event.Type)
	case <-time.After(time.Second):
		t.Fatal("no presence published")
	}
	require.ErrorIs(t, f.svc.Presence(ctx, "chat_other", p, true), apperror.ErrForbidden)
	require.Len(t, f.store.MessagesIn(conv.ID), 1)
}

func TestLiveChannelClosedAfterFinish(t *testing.T) {
	finish := map[string]func(f *fixture, id string) error{
		"resolved": func(f *fixture, id string) error {
			return f.svc.Resolve(context.Background(), id, f.alice.ID, "", true)
		},
		"closed": func(f *fixture, id string) error {
			return f.svc.Close(context.Background(), id, f.bob.ID)
		},
	}

	for name, fn := range finish {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, nil)
			ctx := context.Background()
			conv := f.openMatch(t)
			require.NoError(t, fn(f, conv.ID))

			p, err := f.svc.Join(ctx, conv.ID, f.alice.ID)
			require.ErrorIs(t, err, apperror.ErrForbidden)
			require.Nil(t, p)

			sub, err := f.hub.Subscribe(ctx, realtime.ConversationChannel(conv.ID))
			require.NoError(t, err)
			defer sub.Close()

			require.ErrorIs(t, f.svc.Signal(ctx, conv.ID, f.bob.ID, EventTyping), apperror.ErrForbidden)
			select {
			case data := <-sub.C:
				t.Fatalf("unexpected event %s", data)
			case <-time.After(50 * time.Millisecond):
			}
		})
	}
}

type fakeFiles struct {
	uploaded []string
	deleted  []string
}

func (f *fakeFiles) Upload(ctx context.Context, r io.Reader, folder, fileName string) (*storage.Upload, error) {
	if _, err := io.ReadAll(r); err != nil {
		return nil, err
	}
	url := "https://res.cloudinary.com/demo/" + folder + "/" + fileName
	f.uploaded = append(f.uploaded, url)
	return &storage.Upload{URL: url, IsImage: storage.IsImageFile(fileName)}, nil
}

func (f *fakeFiles) Delete(ctx context.Context, fileURL string) error {
	f.deleted = append(f.deleted, fileURL)
	return nil
}

func TestSendAttachment(t *testing.T) {
	files := &fakeFiles{}
	f := newFixture(t, files)
	ctx := context.Background()
	conv := f.openMatch(t)

	msg, err := f.svc.SendAttachment(ctx, conv.ID, f.bob.ID, strings.NewReader("jpeg"), "keys.jpg")
	require.NoError(t, err)
	require.Equal(t, entity.MessageTypeImage, msg.Type)
	require.Equal(t, "https://res.cloudinary.com/demo/chat_test/keys.jpg", msg.Text)

	notes := f.store.NotificationsFor(f.alice.ID)
	require.Len(t, notes, 1)
	require.True(t, strings.HasSuffix(notes[0].Message, ": sent a photo"))

	f.advance(time.Second)
	f.store.FailOn("messages.Create", errors.New("disk full"))
	_, err = f.svc.SendAttachment(ctx, conv.ID, f.bob.ID, strings.NewReader("%PDF"), "receipt.pdf")
	require.Error(t, err)
	require.Equal(t, []string{"https://res.cloudinary.com/demo/chat_test/receipt.pdf"}, files.deleted)
}

func TestSendAttachmentWithoutStorage(t *testing.T) {
	f := newFixture(t, nil)
	conv := f.openMatch(t)

	_, err := f.svc.SendAttachment(context.Background(), conv.ID, f.bob.ID, strings.NewReader("x"), "a.png")
	require.ErrorIs(t, err, apperror.ErrBadRequest)
}
