// Package bootstrap seeds the engine with the demo roster, a few messages
// and initial presence once a session is authenticated. Safe to run more
// than once: the resulting directory and message-log content is the same.
package bootstrap

import (
	"time"

	"go.uber.org/zap"

	"github.com/nimbus-im/nimbus/internal/engine"
	"github.com/nimbus-im/nimbus/internal/model"
	"github.com/nimbus-im/nimbus/pkg/apperr"
	"github.com/nimbus-im/nimbus/pkg/logger"
)

// Seeder populates the engine after login.
type Seeder struct {
	engine *engine.Engine
	clock  func() time.Time
	lg     *logger.Logger
}

// New creates a Seeder.
func New(eng *engine.Engine, lg *logger.Logger) *Seeder {
	return &Seeder{engine: eng, clock: time.Now, lg: lg}
}

// WithClock overrides the seeder's time source. Returns the seeder for
// chaining.
func (s *Seeder) WithClock(c func() time.Time) *Seeder {
	s.clock = c
	return s
}

// Run seeds directory, messages and presence, in that order.
func (s *Seeder) Run() error {
	identity, ok := s.engine.CurrentIdentity()
	if !ok {
		return apperr.InvalidState("cannot seed without an active session")
	}

	now := s.clock()
	fiveMinAgo := now.Add(-5 * time.Minute)

	users := []model.User{
		{ID: "2", DisplayName: "Alice Johnson", Email: "alice@test.com", Online: true},
		{ID: "3", DisplayName: "Bob Smith", Email: "bob@test.com", Online: false, LastSeenAt: &fiveMinAgo},
		{ID: "4", DisplayName: "Carol Davis", Email: "carol@test.com", Online: true},
	}
	if err := s.engine.SetUsers(users); err != nil {
		return err
	}

	readAt := now.Add(-9 * time.Minute)
	deliveredAt := now.Add(-7 * time.Minute)
	seeds := []model.Message{
		{
			ID:              "seed-1",
			ConversationKey: engine.ConversationKey(identity.ID, "2"),
			From:            "2",
			To:              identity.ID,
			Body:            "Hey! How are you doing?",
			Status:          model.StatusRead,
			SentAt:          now.Add(-10 * time.Minute),
			ReadAt:          &readAt,
		},
		{
			ID:              "seed-2",
			ConversationKey: engine.ConversationKey(identity.ID, "2"),
			From:            identity.ID,
			To:              "2",
			Body:            "I'm doing great! Thanks for asking 😊",
			Status:          model.StatusDelivered,
			SentAt:          now.Add(-8 * time.Minute),
			DeliveredAt:     &deliveredAt,
		},
		{
			ID:              "seed-3",
			ConversationKey: engine.ConversationKey(identity.ID, "3"),
			From:            "3",
			To:              identity.ID,
			Body:            "Working on that new project we discussed",
			Status:          model.StatusSent,
			SentAt:          now.Add(-2 * time.Minute),
		},
	}
	for _, msg := range seeds {
		if _, err := s.engine.Message(msg.ID); err == nil {
			continue // already seeded
		}
		if _, err := s.engine.Append(msg); err != nil {
			return err
		}
	}

	for _, id := range []string{"2", "4"} {
		if err := s.engine.SetPresence(id, true); err != nil {
			return err
		}
	}

	s.lg.Info("mock data seeded",
		zap.Int("users", len(users)),
		zap.Int("messages", len(seeds)),
	)
	return nil
}
