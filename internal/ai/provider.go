package ai

import (
	"context"
	"errors"
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one conversational turn. Role is RoleUser or RoleModel.
type Message struct {
	Role    string
	Content string
}

// Provider is a completion backend. Chat receives the whole conversation in
// order (oldest first) and returns the model's reply text.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

var ErrEmptyResponse = errors.New("ai: empty response")

// openAIRole maps our roles onto the chat-completions vocabulary used by
// Ollama and OpenRouter.
func openAIRole(role string) string {
	if role == RoleModel {
		return "assistant"
	}
	return role
}
