package model

// Conversation is the per-peer thread view derived from the directory. User
// reflects the live directory entry at snapshot time.
type Conversation struct {
	PeerID      string   `json:"peer_id"`
	User        User     `json:"user"`
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	TotalUnread   int            `json:"total_unread"`
}

// LoginRequest is the request to open a (mocked) session.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the request to register a new (mocked) account.
type RegisterRequest struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

// LoginResponse carries the authenticated identity.
type LoginResponse struct {
	Identity Identity `json:"identity"`
}

// TypingRequest toggles the caller's typing flag.
type TypingRequest struct {
	Typing bool `json:"typing"`
}

// PresenceRequest toggles a user's online flag.
type PresenceRequest struct {
	Online bool `json:"online"`
}
