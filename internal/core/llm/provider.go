package llm

import (
	"context"

	"github.com/neilberkman/gptmcp/internal/core/models"
)

// NoResponseText stands in for an empty completion
const NoResponseText = "No response from GPT"

// Provider is the interface for LLM backends
type Provider interface {
	// Complete sends the conversation and returns the assistant reply
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)

	// Name returns the provider name (e.g., "openai")
	Name() string
}

// CompletionRequest is one upstream call. Messages holds the prior
// conversation followed by the new user prompt.
type CompletionRequest struct {
	Model           models.ChatModel
	Messages        []models.Message
	ReasoningEffort models.ReasoningEffort
	Verbosity       models.Verbosity
}

// Completion is the upstream reply with its usage report
type Completion struct {
	Text       string
	TokensUsed int
}
