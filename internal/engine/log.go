package engine

import (
	"strings"
	"time"

	"github.com/nimbus-im/nimbus/internal/model"
	"github.com/nimbus-im/nimbus/pkg/apperr"
)

// messageLog stores per-key append-only message sequences plus a global id
// index so status updates cost O(1) instead of a full-store scan.
type messageLog struct {
	byKey map[string][]*model.Message
	byID  map[string]*model.Message
}

func newMessageLog() *messageLog {
	return &messageLog{
		byKey: make(map[string][]*model.Message),
		byID:  make(map[string]*model.Message),
	}
}

// append validates msg and adds it to the tail of its key's sequence.
// Prior entries are never touched.
func (l *messageLog) append(msg model.Message) (*model.Message, error) {
	if msg.ID == "" {
		return nil, apperr.Invalid("message id must not be empty")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return nil, apperr.Invalid("message body must not be empty")
	}
	if err := ValidateUserID(msg.From); err != nil {
		return nil, err
	}
	if err := ValidateUserID(msg.To); err != nil {
		return nil, err
	}
	if msg.From == msg.To {
		return nil, apperr.Invalid("message sender and recipient must differ")
	}
	if want := ConversationKey(msg.From, msg.To); msg.ConversationKey != want {
		return nil, apperr.Invalidf("conversation key %q does not match participants (want %q)", msg.ConversationKey, want)
	}
	if !msg.Status.Valid() {
		return nil, apperr.Invalidf("unknown message status %q", msg.Status)
	}
	if _, dup := l.byID[msg.ID]; dup {
		return nil, apperr.Invalidf("duplicate message id %q", msg.ID)
	}

	stored := msg
	l.byKey[msg.ConversationKey] = append(l.byKey[msg.ConversationKey], &stored)
	l.byID[msg.ID] = &stored
	return &stored, nil
}

// markDelivered advances a sent message to delivered. Calls against a message
// that already moved past sent leave it untouched.
func (l *messageLog) markDelivered(id string, now time.Time) (*model.Message, bool, error) {
	msg, ok := l.byID[id]
	if !ok {
		return nil, false, apperr.NotFoundf("message %q not found", id)
	}
	if msg.Status.Rank() >= model.StatusDelivered.Rank() {
		return msg, false, nil
	}
	msg.Status = model.StatusDelivered
	t := now
	msg.DeliveredAt = &t
	return msg, true, nil
}

// markRead advances a message to read. A missing delivered ack is tolerated:
// sent -> read is allowed, delivered stays unset in that case.
func (l *messageLog) markRead(id string, now time.Time) (*model.Message, bool, error) {
	msg, ok := l.byID[id]
	if !ok {
		return nil, false, apperr.NotFoundf("message %q not found", id)
	}
	if msg.Status.Rank() >= model.StatusRead.Rank() {
		return msg, false, nil
	}
	msg.Status = model.StatusRead
	t := now
	msg.ReadAt = &t
	return msg, true, nil
}

func (l *messageLog) get(id string) (*model.Message, bool) {
	m, ok := l.byID[id]
	return m, ok
}

// messagesFor returns value copies of the sequence for key, in append order.
func (l *messageLog) messagesFor(key string) []model.Message {
	seq := l.byKey[key]
	out := make([]model.Message, 0, len(seq))
	for _, m := range seq {
		out = append(out, copyMessage(*m))
	}
	return out
}

// lastFor returns a copy of the most recent message for key, if any.
func (l *messageLog) lastFor(key string) (model.Message, bool) {
	seq := l.byKey[key]
	if len(seq) == 0 {
		return model.Message{}, false
	}
	return copyMessage(*seq[len(seq)-1]), true
}

func (l *messageLog) clear() {
	l.byKey = make(map[string][]*model.Message)
	l.byID = make(map[string]*model.Message)
}

func copyMessage(m model.Message) model.Message {
	if m.DeliveredAt != nil {
		t := *m.DeliveredAt
		m.DeliveredAt = &t
	}
	if m.ReadAt != nil {
		t := *m.ReadAt
		m.ReadAt = &t
	}
	return m
}
