package llm

import (
	"context"
	"strings"

	"github.com/nimbus-im/nimbus/internal/model"
)

const responderPrompt = "You are a friendly contact in a chat app. " +
	"Write a single short casual reply to the conversation. No preamble."

// Responder turns a completion client into a reply generator for simulated
// peers.
type Responder struct {
	client Client
	model  string
}

// NewResponder creates a Responder using the given model.
func NewResponder(client Client, modelName string) *Responder {
	return &Responder{client: client, model: modelName}
}

// Reply generates a reply body from the recent conversation history. The
// peer's messages map to the assistant role, the current user's to the user
// role.
func (r *Responder) Reply(ctx context.Context, history []model.Message) (string, error) {
	const window = 10

	if len(history) > window {
		history = history[len(history)-window:]
	}

	// The replying peer is the recipient of the most recent message; its
	// prior messages become assistant turns.
	var peer string
	if len(history) > 0 {
		peer = history[len(history)-1].To
	}

	messages := make([]ChatMessage, 0, len(history)+1)
	messages = append(messages, ChatMessage{Role: "system", Content: responderPrompt})
	for _, msg := range history {
		role := "user"
		if msg.From == peer {
			role = "assistant"
		}
		messages = append(messages, ChatMessage{Role: role, Content: msg.Body})
	}

	resp, err := r.client.Complete(ctx, &CompletionRequest{
		Model:       r.model,
		Messages:    messages,
		Temperature: 0.9,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
