// Package sim simulates the network side of a conversation: delivery and
// read receipts for outbound messages, plus synthetic peer replies. It calls
// back into the same engine operations a real transport would.
package sim

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nimbus-im/nimbus/internal/engine"
	"github.com/nimbus-im/nimbus/internal/model"
	"github.com/nimbus-im/nimbus/pkg/apperr"
	"github.com/nimbus-im/nimbus/pkg/logger"
	"github.com/nimbus-im/nimbus/pkg/metrics"
)

// Simulator schedules deferred engine mutations for every outbound message.
// All pending work is cancellable; anything firing after logout finds the
// engine unauthenticated and becomes a no-op.
type Simulator struct {
	engine  *engine.Engine
	sched   Scheduler
	policy  DelayPolicy
	replies ReplyGenerator
	lg      *logger.Logger
	rnd     *rand.Rand

	mu         sync.Mutex
	pending    map[int]func()
	nextID     int
	peerTyping map[string]func() // pending stop-typing per peer, last writer wins
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithRand overrides the random source.
func WithRand(rnd *rand.Rand) Option {
	return func(s *Simulator) { s.rnd = rnd }
}

// New creates a Simulator. A nil replies generator falls back to the canned
// pool.
func New(eng *engine.Engine, sched Scheduler, policy DelayPolicy, replies ReplyGenerator, lg *logger.Logger, opts ...Option) *Simulator {
	s := &Simulator{
		engine:     eng,
		sched:      sched,
		policy:     policy,
		replies:    replies,
		lg:         lg,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
		pending:    make(map[int]func()),
		peerTyping: make(map[string]func()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.replies == nil {
		s.replies = NewCannedReplies(s.rnd)
	}
	return s
}

// MessageSent schedules the delivered and read transitions for msg (delivered
// strictly before read) and a synthetic reply from the peer.
func (s *Simulator) MessageSent(msg model.Message) {
	s.schedule(s.policy.Deliver, func() {
		s.apply(s.engine.MarkDelivered(msg.ID), "mark delivered", msg.ID)
	})
	s.schedule(s.policy.Deliver+s.policy.Read, func() {
		s.apply(s.engine.MarkRead(msg.ID), "mark read", msg.ID)
	})

	s.mu.Lock()
	replyDelay := s.policy.ReplyDelay(s.rnd)
	s.mu.Unlock()
	s.scheduleReply(msg, replyDelay)
}

// scheduleReply arms the typing flash and the reply append for msg's peer.
// The typing-clear timer is per peer and re-armed by a newer send so the
// indicator tracks the latest pending reply; the reply itself is scheduled
// per outbound message and is never cancelled by a later send.
func (s *Simulator) scheduleReply(msg model.Message, delay time.Duration) {
	peer := msg.To

	typingDelay := delay - s.policy.TypingLead
	if typingDelay < 0 {
		typingDelay = 0
	}
	s.schedule(typingDelay, func() {
		s.apply(s.engine.SetTyping(peer, true), "set typing", peer)
	})

	stopTyping := s.schedule(delay, func() {
		s.apply(s.engine.SetTyping(peer, false), "clear typing", peer)
	})

	s.mu.Lock()
	prev := s.peerTyping[peer]
	s.peerTyping[peer] = stopTyping
	s.mu.Unlock()
	// Cancelling outside the lock: the cancel closure re-enters s.mu.
	if prev != nil {
		prev()
	}

	s.schedule(delay, func() {
		history, _ := s.engine.MessagesWith(peer)
		body, err := s.replies.Reply(context.Background(), history)
		if err != nil {
			s.lg.Warn("reply generation failed", zap.Error(err))
			return
		}
		reply := model.Message{
			ConversationKey: msg.ConversationKey,
			From:            peer,
			To:              msg.From,
			Body:            body,
			Status:          model.StatusSent,
		}
		if _, err := s.engine.Append(reply); err != nil && !apperr.IsCode(err, apperr.CodeInvalidState) {
			s.lg.Warn("reply injection failed", zap.Error(err))
		}
	})
}

// apply logs simulation outcomes, treating post-logout firings as no-ops.
func (s *Simulator) apply(err error, op, subject string) {
	if err == nil {
		return
	}
	switch apperr.CodeOf(err) {
	case apperr.CodeInvalidState, apperr.CodeNotFound:
		// Session torn down or subject gone before the timer fired.
		return
	}
	s.lg.Warn("simulated "+op+" failed",
		zap.String("subject", subject),
		zap.Error(err),
	)
}

// schedule registers a cancellable deferred call. The pending entry is
// created before the timer is armed so a scheduler that fires synchronously
// still balances the bookkeeping.
func (s *Simulator) schedule(d time.Duration, fn func()) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.pending[id] = func() {}
	metrics.PendingTimers.Inc()
	s.mu.Unlock()

	remove := func() {
		s.mu.Lock()
		if _, ok := s.pending[id]; ok {
			delete(s.pending, id)
			metrics.PendingTimers.Dec()
		}
		s.mu.Unlock()
	}

	inner := s.sched.Schedule(d, func() {
		remove()
		fn()
	})

	s.mu.Lock()
	if _, ok := s.pending[id]; ok {
		s.pending[id] = inner
	}
	s.mu.Unlock()

	return func() {
		inner()
		remove()
	}
}

// Shutdown cancels all pending deferred calls. The simulator stays usable
// for a subsequent session.
func (s *Simulator) Shutdown() {
	s.mu.Lock()
	cancels := make([]func(), 0, len(s.pending))
	for _, c := range s.pending {
		cancels = append(cancels, c)
	}
	n := len(s.pending)
	s.pending = make(map[int]func())
	s.peerTyping = make(map[string]func())
	s.mu.Unlock()

	metrics.PendingTimers.Sub(float64(n))
	for _, c := range cancels {
		c()
	}
}
