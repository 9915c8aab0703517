// Package engine implements the conversation state engine: the single source
// of truth for identity, the user directory, per-pair message logs, typing
// state and presence. Collaborators mutate it through the operations below;
// every mutation notifies subscribers with an immutable snapshot.
package engine

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nimbus-im/nimbus/internal/model"
	"github.com/nimbus-im/nimbus/pkg/apperr"
	"github.com/nimbus-im/nimbus/pkg/logger"
	"github.com/nimbus-im/nimbus/pkg/metrics"
)

// Clock supplies the current time. Injectable for deterministic tests.
type Clock func() time.Time

// Listener receives a snapshot after every applied mutation.
type Listener func(Snapshot)

// Engine composes the directory, conversation index, message log and typing
// tracker behind a single mutex. Operations are synchronous and atomic with
// respect to observers.
type Engine struct {
	mu    sync.RWMutex
	log   *messageLog
	clock Clock
	lg    *logger.Logger

	identity      *model.Identity
	authenticated bool
	directory     *directory
	unread        map[string]int // peer id -> unread count
	activePeer    string
	typing        *typingSet

	notifyMu sync.Mutex
	subs     map[int]Listener
	nextSub  int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// New creates an empty, unauthenticated engine.
func New(lg *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		log:       newMessageLog(),
		clock:     time.Now,
		lg:        lg,
		directory: newDirectory(),
		unread:    make(map[string]int),
		typing:    newTypingSet(),
		subs:      make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe registers a listener for mutation snapshots. The returned
// function removes it. Listeners run on the mutating goroutine and must not
// call back into the engine's mutating operations.
func (e *Engine) Subscribe(fn Listener) (unsubscribe func()) {
	e.notifyMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.notifyMu.Unlock()

	return func() {
		e.notifyMu.Lock()
		delete(e.subs, id)
		e.notifyMu.Unlock()
	}
}

// publishLocked builds a snapshot and delivers it to all subscribers.
// Callers hold e.mu; the notify lock is taken before e.mu is released, so
// two concurrent mutations cannot deliver their snapshots out of mutation
// order.
func (e *Engine) publishLocked() {
	snap := e.snapshotLocked()
	e.notifyMu.Lock()
	e.mu.Unlock()
	for _, fn := range e.subs {
		fn(snap)
		metrics.EngineNotificationsTotal.Inc()
	}
	e.notifyMu.Unlock()
}

// Snapshot returns the current immutable state view.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

// IsAuthenticated reports whether a session is active.
func (e *Engine) IsAuthenticated() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.authenticated
}

// CurrentIdentity returns the authenticated identity, if any.
func (e *Engine) CurrentIdentity() (model.Identity, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.identity == nil {
		return model.Identity{}, false
	}
	return *e.identity, true
}

// Login installs the identity and marks the session authenticated. It does
// not populate the directory; the bootstrap collaborator does that.
func (e *Engine) Login(identity model.Identity) error {
	if err := ValidateUserID(identity.ID); err != nil {
		return err
	}

	e.mu.Lock()
	id := identity
	e.identity = &id
	e.authenticated = true
	e.publishLocked()

	e.lg.Info("session opened", zap.String("user_id", identity.ID))
	return nil
}

// Logout tears the session down: identity, active conversation, message log,
// typing state and the directory are all cleared. Only the (external) session
// persistence decides what survives a restart.
func (e *Engine) Logout() {
	e.mu.Lock()
	var userID string
	if e.identity != nil {
		userID = e.identity.ID
	}
	e.identity = nil
	e.authenticated = false
	e.activePeer = ""
	e.log.clear()
	e.typing.clear()
	e.directory.clear()
	e.unread = make(map[string]int)
	e.publishLocked()

	metrics.OnlineUsers.Set(0)
	metrics.TypingUsers.Set(0)
	e.lg.Info("session closed", zap.String("user_id", userID))
}

// SetUsers replaces the directory wholesale and rederives the conversation
// index. Unread counts do not survive a replacement.
func (e *Engine) SetUsers(users []model.User) error {
	e.mu.Lock()
	if !e.authenticated {
		e.mu.Unlock()
		return apperr.InvalidState("cannot set users without an active session")
	}
	if err := e.directory.replace(users); err != nil {
		e.mu.Unlock()
		return err
	}
	e.unread = make(map[string]int)
	if e.activePeer != "" {
		if _, ok := e.directory.get(e.activePeer); !ok {
			e.activePeer = ""
		}
	}
	online := e.directory.onlineCount()
	e.publishLocked()

	metrics.OnlineUsers.Set(float64(online))
	return nil
}

// SetPresence flips a directory user's online state, stamping LastSeenAt on
// the transition to offline.
func (e *Engine) SetPresence(userID string, online bool) error {
	e.mu.Lock()
	if !e.authenticated {
		e.mu.Unlock()
		return apperr.InvalidState("cannot update presence without an active session")
	}
	if err := e.directory.setPresence(userID, online, e.clock()); err != nil {
		e.mu.Unlock()
		return err
	}
	onlineCount := e.directory.onlineCount()
	e.publishLocked()

	metrics.OnlineUsers.Set(float64(onlineCount))
	return nil
}

// SetActiveConversation selects the conversation with peerID, or clears the
// selection when peerID is empty. Selection does not touch unread counts;
// MarkConversationRead is the explicit operation for that.
func (e *Engine) SetActiveConversation(peerID string) error {
	e.mu.Lock()
	if !e.authenticated {
		e.mu.Unlock()
		return apperr.InvalidState("cannot select a conversation without an active session")
	}
	if peerID != "" {
		if _, ok := e.directory.get(peerID); !ok {
			e.mu.Unlock()
			return apperr.NotFoundf("user %q not in directory", peerID)
		}
	}
	e.activePeer = peerID
	e.publishLocked()
	return nil
}

// MarkConversationRead zeroes the unread count for peerID's conversation.
func (e *Engine) MarkConversationRead(peerID string) error {
	e.mu.Lock()
	if !e.authenticated {
		e.mu.Unlock()
		return apperr.InvalidState("cannot mark a conversation read without an active session")
	}
	if _, ok := e.directory.get(peerID); !ok {
		e.mu.Unlock()
		return apperr.NotFoundf("user %q not in directory", peerID)
	}
	if e.unread[peerID] == 0 {
		e.mu.Unlock()
		return nil
	}
	delete(e.unread, peerID)
	e.publishLocked()
	return nil
}

// SendMessage creates a message from the current user to peerID and appends
// it with status sent. The returned copy carries the generated id.
func (e *Engine) SendMessage(peerID, body string) (model.Message, error) {
	e.mu.Lock()
	if !e.authenticated || e.identity == nil {
		e.mu.Unlock()
		return model.Message{}, apperr.InvalidState("cannot send a message without an active session")
	}
	if _, ok := e.directory.get(peerID); !ok {
		e.mu.Unlock()
		return model.Message{}, apperr.NotFoundf("user %q not in directory", peerID)
	}
	msg := model.Message{
		ID:              uuid.Must(uuid.NewV7()).String(),
		ConversationKey: ConversationKey(e.identity.ID, peerID),
		From:            e.identity.ID,
		To:              peerID,
		Body:            strings.TrimSpace(body),
		Status:          model.StatusSent,
		SentAt:          e.clock(),
	}
	stored, err := e.log.append(msg)
	if err != nil {
		e.mu.Unlock()
		return model.Message{}, err
	}
	out := copyMessage(*stored)
	e.publishLocked()

	metrics.RecordMessage("outbound")
	return out, nil
}

// Append adds an externally produced message (bootstrap seed, simulated peer
// reply, transport delivery) to its conversation log. A missing id is filled
// in. Inbound messages for a conversation that is not active bump its unread
// count, unless they arrive with status read.
func (e *Engine) Append(msg model.Message) (model.Message, error) {
	e.mu.Lock()
	if !e.authenticated || e.identity == nil {
		e.mu.Unlock()
		return model.Message{}, apperr.InvalidState("cannot append a message without an active session")
	}
	if msg.ID == "" {
		msg.ID = uuid.Must(uuid.NewV7()).String()
	}
	if msg.Status == "" {
		msg.Status = model.StatusSent
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = e.clock()
	}
	stored, err := e.log.append(msg)
	if err != nil {
		e.mu.Unlock()
		return model.Message{}, err
	}
	// A message that arrives already read (backfilled history) is not
	// unread for anyone.
	if stored.To == e.identity.ID && stored.From != e.activePeer && stored.Status != model.StatusRead {
		e.unread[stored.From]++
	}
	out := copyMessage(*stored)
	e.publishLocked()

	metrics.RecordMessage("inbound")
	return out, nil
}

// MarkDelivered advances a message to delivered. Already-advanced messages
// are left untouched and do not notify.
func (e *Engine) MarkDelivered(messageID string) error {
	e.mu.Lock()
	if !e.authenticated {
		e.mu.Unlock()
		return apperr.InvalidState("cannot update a message without an active session")
	}
	_, changed, err := e.log.markDelivered(messageID, e.clock())
	if err != nil || !changed {
		e.mu.Unlock()
		return err
	}
	e.publishLocked()

	metrics.RecordTransition(string(model.StatusDelivered))
	return nil
}

// MarkRead advances a message to read, tolerating a skipped delivered ack.
func (e *Engine) MarkRead(messageID string) error {
	e.mu.Lock()
	if !e.authenticated {
		e.mu.Unlock()
		return apperr.InvalidState("cannot update a message without an active session")
	}
	_, changed, err := e.log.markRead(messageID, e.clock())
	if err != nil || !changed {
		e.mu.Unlock()
		return err
	}
	e.publishLocked()

	metrics.RecordTransition(string(model.StatusRead))
	return nil
}

// SetTyping inserts or removes userID from the typing set. Redundant updates
// are absorbed without notifying.
func (e *Engine) SetTyping(userID string, typing bool) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}

	e.mu.Lock()
	if !e.authenticated {
		e.mu.Unlock()
		return apperr.InvalidState("cannot update typing state without an active session")
	}
	if !e.typing.set(userID, typing) {
		e.mu.Unlock()
		return nil
	}
	count := len(e.typing.members)
	e.publishLocked()

	metrics.TypingUsers.Set(float64(count))
	return nil
}

// IsTyping reports whether userID is currently flagged as typing.
func (e *Engine) IsTyping(userID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.typing.contains(userID)
}

// MessagesWith returns the full log of the conversation between the current
// user and peerID.
func (e *Engine) MessagesWith(peerID string) ([]model.Message, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.authenticated || e.identity == nil {
		return nil, apperr.InvalidState("cannot list messages without an active session")
	}
	if _, ok := e.directory.get(peerID); !ok {
		return nil, apperr.NotFoundf("user %q not in directory", peerID)
	}
	return e.log.messagesFor(ConversationKey(e.identity.ID, peerID)), nil
}

// Message returns a copy of the message with the given id.
func (e *Engine) Message(messageID string) (model.Message, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.log.get(messageID)
	if !ok {
		return model.Message{}, apperr.NotFoundf("message %q not found", messageID)
	}
	return copyMessage(*m), nil
}
