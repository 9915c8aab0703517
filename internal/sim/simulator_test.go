package sim

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-im/nimbus/internal/engine"
	"github.com/nimbus-im/nimbus/internal/model"
	"github.com/nimbus-im/nimbus/pkg/logger"
)

// fixedReply always answers with the same body.
type fixedReply struct{ body string }

func (f fixedReply) Reply(context.Context, []model.Message) (string, error) {
	return f.body, nil
}

func testPolicy() DelayPolicy {
	return DelayPolicy{
		Deliver:    time.Second,
		Read:       3 * time.Second,
		ReplyBase:  2 * time.Second,
		TypingLead: time.Second,
		// Zero jitter keeps the reply delay fixed at ReplyBase.
	}
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e := engine.New(logger.NewNop())
	require.NoError(t, e.Login(model.Identity{
		User: model.User{ID: "1", DisplayName: "Demo User"},
	}))
	require.NoError(t, e.SetUsers([]model.User{
		{ID: "1", DisplayName: "Demo User", Online: true},
		{ID: "2", DisplayName: "Alice Johnson", Online: true},
	}))
	return e
}

func sendTo(t *testing.T, e *engine.Engine, peer, body string) model.Message {
	t.Helper()
	msg, err := e.SendMessage(peer, body)
	require.NoError(t, err)
	return msg
}

func TestSimulatorReceiptOrdering(t *testing.T) {
	e := newTestEngine(t)
	sched := NewManualScheduler()
	s := New(e, sched, testPolicy(), fixedReply{"ok"}, logger.NewNop(),
		WithRand(rand.New(rand.NewSource(1))))
	defer s.Shutdown()

	msg := sendTo(t, e, "2", "hello")
	s.MessageSent(msg)

	// Nothing fires before the delivery delay elapses.
	sched.Advance(999 * time.Millisecond)
	got, err := e.Message(msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, got.Status)

	sched.Advance(time.Millisecond)
	got, err = e.Message(msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDelivered, got.Status)
	assert.Nil(t, got.ReadAt)

	sched.Advance(3 * time.Second)
	got, err = e.Message(msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRead, got.Status)
	require.NotNil(t, got.DeliveredAt)
	require.NotNil(t, got.ReadAt)
	assert.False(t, got.ReadAt.Before(*got.DeliveredAt))
}

func TestSimulatorReplyWithTypingFlash(t *testing.T) {
	e := newTestEngine(t)
	sched := NewManualScheduler()
	s := New(e, sched, testPolicy(), fixedReply{"hi back"}, logger.NewNop())
	defer s.Shutdown()

	msg := sendTo(t, e, "2", "hello")
	s.MessageSent(msg)

	// Typing starts one TypingLead before the reply.
	sched.Advance(time.Second)
	assert.True(t, e.IsTyping("2"))

	sched.Advance(time.Second)
	assert.False(t, e.IsTyping("2"))

	msgs, err := e.MessagesWith("2")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "2", msgs[1].From)
	assert.Equal(t, "1", msgs[1].To)
	assert.Equal(t, "hi back", msgs[1].Body)
}

func TestSimulatorRapidSendsToSamePeer(t *testing.T) {
	e := newTestEngine(t)
	sched := NewManualScheduler()
	s := New(e, sched, testPolicy(), fixedReply{"ack"}, logger.NewNop())
	defer s.Shutdown()

	// A second send before the first reply fires must not block and must
	// not swallow the first reply; only the typing-clear timer re-arms.
	s.MessageSent(sendTo(t, e, "2", "one"))
	s.MessageSent(sendTo(t, e, "2", "two"))

	sched.Advance(10 * time.Second)

	msgs, err := e.MessagesWith("2")
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "2", msgs[2].From)
	assert.Equal(t, "2", msgs[3].From)
	assert.False(t, e.IsTyping("2"))

	for _, m := range msgs[:2] {
		got, err := e.Message(m.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusRead, got.Status)
	}
}

func TestSimulatorCannedFallback(t *testing.T) {
	e := newTestEngine(t)
	sched := NewManualScheduler()
	s := New(e, sched, testPolicy(), nil, logger.NewNop(),
		WithRand(rand.New(rand.NewSource(7))))
	defer s.Shutdown()

	s.MessageSent(sendTo(t, e, "2", "hello"))
	sched.Advance(10 * time.Second)

	msgs, err := e.MessagesWith("2")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, cannedReplies, msgs[1].Body)
}

func TestSimulatorNoOpsAfterLogout(t *testing.T) {
	e := newTestEngine(t)
	sched := NewManualScheduler()
	s := New(e, sched, testPolicy(), fixedReply{"late"}, logger.NewNop())
	defer s.Shutdown()

	msg := sendTo(t, e, "2", "hello")
	s.MessageSent(msg)

	e.Logout()
	// Timers still fire, but every engine call finds the session gone.
	sched.Advance(10 * time.Second)

	assert.False(t, e.IsAuthenticated())
	snap := e.Snapshot()
	assert.Empty(t, snap.Conversations)
	assert.Empty(t, snap.Typing)
}

func TestSimulatorShutdownCancelsPending(t *testing.T) {
	e := newTestEngine(t)
	sched := NewManualScheduler()
	s := New(e, sched, testPolicy(), fixedReply{"never"}, logger.NewNop())

	msg := sendTo(t, e, "2", "hello")
	s.MessageSent(msg)
	require.Positive(t, sched.Pending())

	s.Shutdown()
	assert.Zero(t, sched.Pending())

	sched.Advance(10 * time.Second)
	got, err := e.Message(msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, got.Status)
	msgs, err := e.MessagesWith("2")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	// The simulator stays usable for the next session.
	next := sendTo(t, e, "2", "again")
	s.MessageSent(next)
	sched.Advance(10 * time.Second)
	got, err = e.Message(next.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRead, got.Status)
}

func TestSimulatorReplyDelayBounds(t *testing.T) {
	p := DelayPolicy{ReplyBase: 2 * time.Second, ReplyJitter: 3 * time.Second}
	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 100; i++ {
		d := p.ReplyDelay(rnd)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, 5*time.Second)
	}
}

func TestManualSchedulerOrdering(t *testing.T) {
	sched := NewManualScheduler()
	var fired []string
	sched.Schedule(2*time.Second, func() { fired = append(fired, "b") })
	sched.Schedule(time.Second, func() { fired = append(fired, "a") })
	cancel := sched.Schedule(3*time.Second, func() { fired = append(fired, "c") })
	cancel()

	sched.Advance(5 * time.Second)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Zero(t, sched.Pending())
}
