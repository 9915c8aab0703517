package sim

import (
	"math/rand"
	"time"
)

// DelayPolicy decides how long simulated network operations take. The zero
// jitter makes every delay fixed, which tests rely on.
type DelayPolicy struct {
	// Deliver is the delay before a sent message is marked delivered.
	Deliver time.Duration
	// Read is the delay before a delivered message is marked read.
	Read time.Duration
	// ReplyBase and ReplyJitter bound the synthetic peer reply delay:
	// ReplyBase + rand(ReplyJitter).
	ReplyBase   time.Duration
	ReplyJitter time.Duration
	// TypingLead is how long before the reply lands the peer appears to be
	// typing.
	TypingLead time.Duration
}

// DefaultPolicy mirrors the classic demo timings: delivered after 1s, read
// after 3s, reply between 2s and 5s.
func DefaultPolicy() DelayPolicy {
	return DelayPolicy{
		Deliver:     time.Second,
		Read:        3 * time.Second,
		ReplyBase:   2 * time.Second,
		ReplyJitter: 3 * time.Second,
		TypingLead:  time.Second,
	}
}

// ReplyDelay draws the delay for the next synthetic reply.
func (p DelayPolicy) ReplyDelay(rnd *rand.Rand) time.Duration {
	d := p.ReplyBase
	if p.ReplyJitter > 0 && rnd != nil {
		d += time.Duration(rnd.Int63n(int64(p.ReplyJitter)))
	}
	return d
}
