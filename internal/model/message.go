package model

import (
	"time"
)

// Status is the delivery state of a message. It only moves forward:
// sent -> delivered -> read.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusRead:
		return true
	}
	return false
}

// Rank orders statuses along the state machine. Unknown statuses rank lowest.
func (s Status) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// Message is a single conversation entry. Everything except Status and the
// timestamp accompanying each status transition is immutable after append.
type Message struct {
	ID              string     `json:"id"`
	ConversationKey string     `json:"conversation_key"`
	From            string     `json:"from"`
	To              string     `json:"to"`
	Body            string     `json:"body"`
	Status          Status     `json:"status"`
	SentAt          time.Time  `json:"sent_at"`
	DeliveredAt     *time.Time `json:"delivered_at,omitempty"`
	ReadAt          *time.Time `json:"read_at,omitempty"`
}

// SendMessageRequest is the request to send a new message to a peer.
type SendMessageRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// ListMessagesResponse is the response for listing a conversation's messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}
