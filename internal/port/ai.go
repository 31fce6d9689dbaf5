package port

import "context"

// Message is one role-tagged turn of a model conversation.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// AIProvider abstracts the model-inference backend. Implementations can
// target OpenAI, Ollama, or any chat-completion compatible API; only the
// first candidate completion's text is returned.
type AIProvider interface {
	// ModelName returns the identifier of the model being used.
	ModelName() string

	// Complete sends the conversation and returns the model's reply text.
	Complete(ctx context.Context, messages []Message, temperature float32, maxTokens int) (string, error)
}
