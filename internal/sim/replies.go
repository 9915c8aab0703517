package sim

import (
	"context"
	"math/rand"

	"github.com/nimbus-im/nimbus/internal/model"
)

// ReplyGenerator produces the body of a synthetic peer reply given the
// conversation so far.
type ReplyGenerator interface {
	Reply(ctx context.Context, history []model.Message) (string, error)
}

// cannedReplies is the demo response pool.
var cannedReplies = []string{
	"That's interesting! Tell me more.",
	"I completely agree with you on that.",
	"Sounds good to me! 👍",
	"Let me think about it and get back to you.",
	"Perfect! When do we start?",
	"I'm excited about this opportunity.",
	"Thanks for sharing that with me.",
}

// CannedReplies picks a random response from a fixed pool.
type CannedReplies struct {
	rnd *rand.Rand
}

// NewCannedReplies creates a generator drawing from rnd.
func NewCannedReplies(rnd *rand.Rand) *CannedReplies {
	return &CannedReplies{rnd: rnd}
}

func (c *CannedReplies) Reply(_ context.Context, _ []model.Message) (string, error) {
	return cannedReplies[c.rnd.Intn(len(cannedReplies))], nil
}
