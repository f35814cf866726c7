package core

import "context"

// ChatTurn is one prior message handed to the completion provider.
type ChatTurn struct {
	Role    string // "user" or "assistant"
	Content string
}

// CompletionResult carries the answer and, when the provider reports it,
// exact token usage. Zero TotalTokens means unknown.
type CompletionResult struct {
	Text        string
	TotalTokens int
}

// CompletionClient generates an answer from a system prompt, recent history
// and the current user message. Implementations return *CompletionError for
// provider failures so the orchestrator can surface them typed.
type CompletionClient interface {
	Complete(ctx context.Context, systemPrompt string, history []ChatTurn, userMessage string) (*CompletionResult, error)
}
