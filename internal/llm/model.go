package llm

import "context"

// Model defines the interface for a generative text model: a prompt goes in,
// free text (expected to hold a JSON object) comes out.
type Model interface {
	// Generate sends the prompt and returns the raw text response
	Generate(ctx context.Context, prompt string) (string, error)
	// Close closes the model client and releases resources
	Close() error
}

// systemPrompt is shared by the chat-style providers
const systemPrompt = "You are an expert at reading bills and invoices and extracting monetary amounts from them. You always answer with a single valid JSON object and nothing else."
