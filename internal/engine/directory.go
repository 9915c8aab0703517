package engine

import (
	"time"

	"github.com/nimbus-im/nimbus/internal/model"
	"github.com/nimbus-im/nimbus/pkg/apperr"
)

// directory holds the known users and their presence state. Replacement is
// wholesale; iteration preserves the order users were supplied in.
type directory struct {
	order []string
	users map[string]*model.User
}

func newDirectory() *directory {
	return &directory{users: make(map[string]*model.User)}
}

// replace swaps the full membership. Prior entries are discarded.
func (d *directory) replace(users []model.User) error {
	order := make([]string, 0, len(users))
	byID := make(map[string]*model.User, len(users))
	for i := range users {
		u := users[i]
		if err := ValidateUserID(u.ID); err != nil {
			return err
		}
		if _, dup := byID[u.ID]; dup {
			return apperr.Invalidf("duplicate user id %q", u.ID)
		}
		byID[u.ID] = &u
		order = append(order, u.ID)
	}
	d.order = order
	d.users = byID
	return nil
}

func (d *directory) get(id string) (*model.User, bool) {
	u, ok := d.users[id]
	return u, ok
}

// setPresence flips the online flag. Going offline stamps LastSeenAt; coming
// back online clears it.
func (d *directory) setPresence(id string, online bool, now time.Time) error {
	u, ok := d.users[id]
	if !ok {
		return apperr.NotFoundf("user %q not in directory", id)
	}
	u.Online = online
	if online {
		u.LastSeenAt = nil
	} else {
		t := now
		u.LastSeenAt = &t
	}
	return nil
}

// list returns value copies of all users in insertion order.
func (d *directory) list() []model.User {
	out := make([]model.User, 0, len(d.order))
	for _, id := range d.order {
		u := *d.users[id]
		if u.LastSeenAt != nil {
			t := *u.LastSeenAt
			u.LastSeenAt = &t
		}
		out = append(out, u)
	}
	return out
}

func (d *directory) onlineCount() int {
	n := 0
	for _, u := range d.users {
		if u.Online {
			n++
		}
	}
	return n
}

func (d *directory) clear() {
	d.order = nil
	d.users = make(map[string]*model.User)
}
