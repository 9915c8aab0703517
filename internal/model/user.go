// Package model defines data structures for the conversation state engine.
package model

import (
	"time"
)

// User is a directory member with presence state. LastSeenAt is populated
// only while the user is offline.
type User struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	Email       string     `json:"email"`
	Online      bool       `json:"online"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
}

// Identity is the authenticated user: a User plus an opaque session token.
// It exists only while a session is active.
type Identity struct {
	User
	SessionToken string `json:"session_token"`
}

// TypingUser is a member of the typing set.
type TypingUser struct {
	UserID string `json:"user_id"`
}
