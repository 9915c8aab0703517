package engine

import (
	"sort"

	"github.com/nimbus-im/nimbus/internal/model"
)

// Snapshot is an immutable view of the full engine state. Every mutation
// produces exactly one snapshot for subscribers; later engine activity never
// changes a snapshot already handed out.
type Snapshot struct {
	Identity       *model.Identity      `json:"identity,omitempty"`
	Authenticated  bool                 `json:"authenticated"`
	Users          []model.User         `json:"users"`
	Conversations  []model.Conversation `json:"conversations"`
	ActivePeerID   string               `json:"active_peer_id,omitempty"`
	ActiveMessages []model.Message      `json:"active_messages,omitempty"`
	TotalUnread    int                  `json:"total_unread"`
	Typing         []string             `json:"typing"`
}

// MessagesFor returns the active conversation's messages when key matches,
// otherwise nil. Full per-key history is served by the engine, not snapshots.
func (s Snapshot) MessagesFor(key string) []model.Message {
	if s.Identity != nil && s.ActivePeerID != "" &&
		ConversationKey(s.Identity.ID, s.ActivePeerID) == key {
		return s.ActiveMessages
	}
	return nil
}

// snapshotLocked assembles a snapshot. Callers must hold at least a read lock.
func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{
		Authenticated: e.authenticated,
		Users:         e.directory.list(),
		ActivePeerID:  e.activePeer,
	}

	if e.identity != nil {
		id := *e.identity
		if id.LastSeenAt != nil {
			t := *id.LastSeenAt
			id.LastSeenAt = &t
		}
		snap.Identity = &id
	}

	if e.identity != nil {
		convs := make([]model.Conversation, 0, len(snap.Users))
		for _, u := range snap.Users {
			if u.ID == e.identity.ID {
				continue
			}
			key := ConversationKey(e.identity.ID, u.ID)
			conv := model.Conversation{
				PeerID:      u.ID,
				User:        u,
				UnreadCount: e.unread[u.ID],
			}
			if last, ok := e.log.lastFor(key); ok {
				conv.LastMessage = &last
			}
			snap.TotalUnread += conv.UnreadCount
			convs = append(convs, conv)
		}
		// Most recent activity first; threads without messages keep
		// directory order at the end.
		sort.SliceStable(convs, func(i, j int) bool {
			li, lj := convs[i].LastMessage, convs[j].LastMessage
			switch {
			case li == nil && lj == nil:
				return false
			case lj == nil:
				return true
			case li == nil:
				return false
			default:
				return li.SentAt.After(lj.SentAt)
			}
		})
		snap.Conversations = convs

		if e.activePeer != "" {
			snap.ActiveMessages = e.log.messagesFor(ConversationKey(e.identity.ID, e.activePeer))
		}
	}

	snap.Typing = e.typing.list()
	sort.Strings(snap.Typing)

	return snap
}
