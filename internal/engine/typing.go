package engine

// typingSet tracks which users are currently flagged as composing a message.
// Membership only; expiry is the caller's policy, not the engine's.
type typingSet struct {
	members map[string]struct{}
}

func newTypingSet() *typingSet {
	return &typingSet{members: make(map[string]struct{})}
}

// set returns true when membership actually changed.
func (t *typingSet) set(userID string, typing bool) bool {
	_, present := t.members[userID]
	if typing == present {
		return false
	}
	if typing {
		t.members[userID] = struct{}{}
	} else {
		delete(t.members, userID)
	}
	return true
}

func (t *typingSet) contains(userID string) bool {
	_, ok := t.members[userID]
	return ok
}

func (t *typingSet) list() []string {
	out := make([]string, 0, len(t.members))
	for id := range t.members {
		out = append(out, id)
	}
	return out
}

func (t *typingSet) clear() {
	t.members = make(map[string]struct{})
}
