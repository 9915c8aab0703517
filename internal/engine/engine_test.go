package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-im/nimbus/internal/model"
	"github.com/nimbus-im/nimbus/pkg/apperr"
	"github.com/nimbus-im/nimbus/pkg/logger"
)

// fixedClock returns a Clock that advances by step on every call.
func fixedClock(start time.Time, step time.Duration) Clock {
	now := start
	return func() time.Time {
		t := now
		now = now.Add(step)
		return t
	}
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	return New(logger.NewNop(), opts...)
}

func loginTestUser(t *testing.T, e *Engine) {
	t.Helper()
	require.NoError(t, e.Login(model.Identity{
		User: model.User{ID: "1", DisplayName: "Demo User", Email: "demo@test.com"},
	}))
}

func rosterUsers() []model.User {
	return []model.User{
		{ID: "1", DisplayName: "Demo User", Email: "demo@test.com", Online: true},
		{ID: "2", DisplayName: "Alice Johnson", Email: "alice@test.com", Online: true},
		{ID: "3", DisplayName: "Bob Smith", Email: "bob@test.com"},
	}
}

func TestLoginLogoutLifecycle(t *testing.T) {
	e := newTestEngine(t)

	assert.False(t, e.IsAuthenticated())
	_, ok := e.CurrentIdentity()
	assert.False(t, ok)

	loginTestUser(t, e)
	assert.True(t, e.IsAuthenticated())
	id, ok := e.CurrentIdentity()
	require.True(t, ok)
	assert.Equal(t, "1", id.ID)

	require.NoError(t, e.SetUsers(rosterUsers()))
	_, err := e.SendMessage("2", "hello")
	require.NoError(t, err)
	require.NoError(t, e.SetTyping("2", true))

	e.Logout()
	assert.False(t, e.IsAuthenticated())
	snap := e.Snapshot()
	assert.Nil(t, snap.Identity)
	assert.Empty(t, snap.Users)
	assert.Empty(t, snap.Conversations)
	assert.Empty(t, snap.Typing)
	assert.Zero(t, snap.TotalUnread)
}

func TestLoginRejectsBadIdentity(t *testing.T) {
	e := newTestEngine(t)
	err := e.Login(model.Identity{User: model.User{ID: ""}})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
}

func TestOperationsRequireSession(t *testing.T) {
	e := newTestEngine(t)

	assertInvalidState := func(err error) {
		t.Helper()
		require.Error(t, err)
		assert.Equal(t, apperr.CodeInvalidState, apperr.CodeOf(err))
	}

	assertInvalidState(e.SetUsers(rosterUsers()))
	assertInvalidState(e.SetPresence("2", true))
	assertInvalidState(e.SetActiveConversation("2"))
	assertInvalidState(e.MarkConversationRead("2"))
	assertInvalidState(e.SetTyping("2", true))
	assertInvalidState(e.MarkDelivered("m1"))
	assertInvalidState(e.MarkRead("m1"))

	_, err := e.SendMessage("2", "hi")
	assertInvalidState(err)
	_, err = e.Append(model.Message{})
	assertInvalidState(err)
	_, err = e.MessagesWith("2")
	assertInvalidState(err)
}

func TestSetUsersReplacesDirectory(t *testing.T) {
	e := newTestEngine(t)
	loginTestUser(t, e)
	require.NoError(t, e.SetUsers(rosterUsers()))

	snap := e.Snapshot()
	require.Len(t, snap.Users, 3)
	// Conversations exclude the current user.
	require.Len(t, snap.Conversations, 2)

	// Replacement drops absent users and resets unread counts.
	_, err := e.Append(model.Message{
		ConversationKey: ConversationKey("1", "2"),
		From:            "2", To: "1", Body: "ping",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, e.Snapshot().TotalUnread)

	require.NoError(t, e.SetUsers([]model.User{
		{ID: "1", DisplayName: "Demo User"},
		{ID: "4", DisplayName: "Carol Davis", Online: true},
	}))
	snap = e.Snapshot()
	assert.Zero(t, snap.TotalUnread)
	require.Len(t, snap.Conversations, 1)
	assert.Equal(t, "4", snap.Conversations[0].PeerID)
}

func TestSetUsersClearsVanishedActivePeer(t *testing.T) {
	e := newTestEngine(t)
	loginTestUser(t, e)
	require.NoError(t, e.SetUsers(rosterUsers()))
	require.NoError(t, e.SetActiveConversation("3"))

	require.NoError(t, e.SetUsers(rosterUsers()[:2]))
	assert.Empty(t, e.Snapshot().ActivePeerID)
}

func TestSetPresence(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, WithClock(fixedClock(start, 0)))
	loginTestUser(t, e)
	require.NoError(t, e.SetUsers(rosterUsers()))

	require.NoError(t, e.SetPresence("2", false))
	snap := e.Snapshot()
	var alice model.User
	for _, u := range snap.Users {
		if u.ID == "2" {
			alice = u
		}
	}
	assert.False(t, alice.Online)
	require.NotNil(t, alice.LastSeenAt)
	assert.Equal(t, start, *alice.LastSeenAt)

	// Back online clears the last-seen stamp.
	require.NoError(t, e.SetPresence("2", true))
	for _, u := range e.Snapshot().Users {
		if u.ID == "2" {
			assert.True(t, u.Online)
			assert.Nil(t, u.LastSeenAt)
		}
	}

	err := e.SetPresence("99", true)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestActiveConversationSelection(t *testing.T) {
	e := newTestEngine(t)
	loginTestUser(t, e)
	require.NoError(t, e.SetUsers(rosterUsers()))

	err := e.SetActiveConversation("99")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	require.NoError(t, e.SetActiveConversation("2"))
	assert.Equal(t, "2", e.Snapshot().ActivePeerID)

	require.NoError(t, e.SetActiveConversation(""))
	assert.Empty(t, e.Snapshot().ActivePeerID)
}

func TestUnreadCounting(t *testing.T) {
	e := newTestEngine(t)
	loginTestUser(t, e)
	require.NoError(t, e.SetUsers(rosterUsers()))
	require.NoError(t, e.SetActiveConversation("2"))

	inbound := func(from string) {
		t.Helper()
		_, err := e.Append(model.Message{
			ConversationKey: ConversationKey("1", from),
			From:            from, To: "1", Body: "hi there",
		})
		require.NoError(t, err)
	}

	// Message from the active peer does not count as unread.
	inbound("2")
	// Messages from a background peer do.
	inbound("3")
	inbound("3")

	snap := e.Snapshot()
	assert.Equal(t, 2, snap.TotalUnread)
	for _, c := range snap.Conversations {
		switch c.PeerID {
		case "2":
			assert.Zero(t, c.UnreadCount)
		case "3":
			assert.Equal(t, 2, c.UnreadCount)
		}
	}

	// Selecting the conversation leaves unread alone; the explicit read
	// operation clears it.
	require.NoError(t, e.SetActiveConversation("3"))
	assert.Equal(t, 2, e.Snapshot().TotalUnread)
	require.NoError(t, e.MarkConversationRead("3"))
	assert.Zero(t, e.Snapshot().TotalUnread)

	// Re-clearing an already-clear conversation is a no-op.
	require.NoError(t, e.MarkConversationRead("3"))
}

func TestUnreadSkipsMessagesAlreadyRead(t *testing.T) {
	e := newTestEngine(t)
	loginTestUser(t, e)
	require.NoError(t, e.SetUsers(rosterUsers()))

	readAt := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	_, err := e.Append(model.Message{
		ConversationKey: "1_2",
		From:            "2", To: "1", Body: "old news",
		Status: model.StatusRead,
		SentAt: readAt.Add(-time.Minute),
		ReadAt: &readAt,
	})
	require.NoError(t, err)
	assert.Zero(t, e.Snapshot().TotalUnread)

	// A delivered-but-unread backfill still counts.
	deliveredAt := readAt.Add(time.Minute)
	_, err = e.Append(model.Message{
		ConversationKey: "1_2",
		From:            "2", To: "1", Body: "fresh",
		Status:      model.StatusDelivered,
		SentAt:      deliveredAt,
		DeliveredAt: &deliveredAt,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, e.Snapshot().TotalUnread)
}

func TestSendMessage(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, WithClock(fixedClock(start, 0)))
	loginTestUser(t, e)
	require.NoError(t, e.SetUsers(rosterUsers()))

	msg, err := e.SendMessage("2", "  hello world  ")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "1", msg.From)
	assert.Equal(t, "2", msg.To)
	assert.Equal(t, "hello world", msg.Body)
	assert.Equal(t, "1_2", msg.ConversationKey)
	assert.Equal(t, model.StatusSent, msg.Status)
	assert.Equal(t, start, msg.SentAt)

	_, err = e.SendMessage("99", "hi")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	_, err = e.SendMessage("2", "   ")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
}

func TestAppendFillsDefaults(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, WithClock(fixedClock(start, 0)))
	loginTestUser(t, e)
	require.NoError(t, e.SetUsers(rosterUsers()))

	msg, err := e.Append(model.Message{
		ConversationKey: "1_2",
		From:            "2", To: "1", Body: "reply",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, model.StatusSent, msg.Status)
	assert.Equal(t, start, msg.SentAt)
}

func TestStatusTransitionsNotifyOnceEach(t *testing.T) {
	e := newTestEngine(t)
	loginTestUser(t, e)
	require.NoError(t, e.SetUsers(rosterUsers()))
	msg, err := e.SendMessage("2", "hi")
	require.NoError(t, err)

	var notifications int
	unsub := e.Subscribe(func(Snapshot) { notifications++ })
	defer unsub()

	require.NoError(t, e.MarkDelivered(msg.ID))
	require.NoError(t, e.MarkDelivered(msg.ID)) // duplicate, absorbed
	require.NoError(t, e.MarkRead(msg.ID))
	require.NoError(t, e.MarkRead(msg.ID)) // duplicate, absorbed
	assert.Equal(t, 2, notifications)

	got, err := e.Message(msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRead, got.Status)
	assert.NotNil(t, got.DeliveredAt)
	assert.NotNil(t, got.ReadAt)
}

func TestTypingIdempotence(t *testing.T) {
	e := newTestEngine(t)
	loginTestUser(t, e)
	require.NoError(t, e.SetUsers(rosterUsers()))

	var notifications int
	unsub := e.Subscribe(func(Snapshot) { notifications++ })
	defer unsub()

	require.NoError(t, e.SetTyping("2", true))
	require.NoError(t, e.SetTyping("2", true)) // redundant, no notification
	assert.True(t, e.IsTyping("2"))
	assert.Equal(t, 1, notifications)

	require.NoError(t, e.SetTyping("2", false))
	require.NoError(t, e.SetTyping("2", false))
	assert.False(t, e.IsTyping("2"))
	assert.Equal(t, 2, notifications)
}

func TestConversationOrdering(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, WithClock(fixedClock(start, time.Minute)))
	loginTestUser(t, e)
	require.NoError(t, e.SetUsers(append(rosterUsers(),
		model.User{ID: "4", DisplayName: "Carol Davis"})))

	// Activity with Bob first, then Alice; Carol has no messages.
	_, err := e.SendMessage("3", "to bob")
	require.NoError(t, err)
	_, err = e.SendMessage("2", "to alice")
	require.NoError(t, err)

	convs := e.Snapshot().Conversations
	require.Len(t, convs, 3)
	assert.Equal(t, "2", convs[0].PeerID)
	assert.Equal(t, "3", convs[1].PeerID)
	assert.Equal(t, "4", convs[2].PeerID)
	assert.Nil(t, convs[2].LastMessage)
}

func TestSnapshotIsolation(t *testing.T) {
	e := newTestEngine(t)
	loginTestUser(t, e)
	require.NoError(t, e.SetUsers(rosterUsers()))
	require.NoError(t, e.SetActiveConversation("2"))
	msg, err := e.SendMessage("2", "hi")
	require.NoError(t, err)

	before := e.Snapshot()
	require.Len(t, before.ActiveMessages, 1)
	assert.Equal(t, model.StatusSent, before.ActiveMessages[0].Status)

	require.NoError(t, e.MarkRead(msg.ID))

	// The earlier snapshot is unchanged by the later mutation.
	assert.Equal(t, model.StatusSent, before.ActiveMessages[0].Status)
	assert.Nil(t, before.ActiveMessages[0].ReadAt)

	after := e.Snapshot()
	assert.Equal(t, model.StatusRead, after.ActiveMessages[0].Status)
}

func TestSnapshotsDeliverInMutationOrder(t *testing.T) {
	e := newTestEngine(t)
	loginTestUser(t, e)
	require.NoError(t, e.SetUsers(rosterUsers()))
	require.NoError(t, e.SetActiveConversation("2"))

	var mu sync.Mutex
	var lengths []int
	unsub := e.Subscribe(func(snap Snapshot) {
		mu.Lock()
		lengths = append(lengths, len(snap.ActiveMessages))
		mu.Unlock()
	})
	defer unsub()

	const senders, perSender = 8, 10
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				_, err := e.SendMessage("2", "race")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, lengths, senders*perSender)
	// Each mutation grows the active log by one; an out-of-order delivery
	// would show a shrinking count somewhere.
	for i := 1; i < len(lengths); i++ {
		assert.GreaterOrEqual(t, lengths[i], lengths[i-1])
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	e := newTestEngine(t)

	var a, b int
	unsubA := e.Subscribe(func(Snapshot) { a++ })
	unsubB := e.Subscribe(func(Snapshot) { b++ })
	defer unsubB()

	loginTestUser(t, e)
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)

	unsubA()
	require.NoError(t, e.SetUsers(rosterUsers()))
	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

// TestMessageRoundTrip walks the full happy path: open a session, load the
// roster, exchange messages and watch the receipts land.
func TestMessageRoundTrip(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, WithClock(fixedClock(start, time.Second)))

	loginTestUser(t, e)
	require.NoError(t, e.SetUsers(rosterUsers()))
	require.NoError(t, e.SetActiveConversation("2"))

	sent, err := e.SendMessage("2", "hi alice")
	require.NoError(t, err)

	require.NoError(t, e.MarkDelivered(sent.ID))
	require.NoError(t, e.MarkRead(sent.ID))

	_, err = e.Append(model.Message{
		ConversationKey: "1_2",
		From:            "2", To: "1", Body: "hi back",
	})
	require.NoError(t, err)

	msgs, err := e.MessagesWith("2")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.StatusRead, msgs[0].Status)
	require.NotNil(t, msgs[0].DeliveredAt)
	require.NotNil(t, msgs[0].ReadAt)
	assert.True(t, msgs[0].ReadAt.After(*msgs[0].DeliveredAt))
	assert.Equal(t, "hi back", msgs[1].Body)

	// Reply arrived while its conversation was active: nothing unread.
	assert.Zero(t, e.Snapshot().TotalUnread)
}
