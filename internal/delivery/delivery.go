// Package delivery defines the seam between the engine and whatever advances
// message status: the local simulator in development, a real transport in
// production.
package delivery

import (
	"github.com/nimbus-im/nimbus/internal/model"
)

// Agent reacts to messages sent by the current user, eventually advancing
// their status and possibly injecting peer replies through the engine's own
// mutation API.
type Agent interface {
	// MessageSent is invoked after a message from the current user has been
	// appended with status sent.
	MessageSent(msg model.Message)

	// Shutdown cancels all pending work. Late firings become no-ops.
	Shutdown()
}

// Noop is an Agent that does nothing. Receipts then only arrive through
// explicit API calls.
type Noop struct{}

func (Noop) MessageSent(model.Message) {}
func (Noop) Shutdown()                 {}
