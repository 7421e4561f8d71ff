// Package llm provides the text generation boundary.
//
// The generation service is an external collaborator: this package defines
// the Client interface the pipeline consumes, plus a Gemini implementation.
// Streaming is an ordered, finite, non-restartable sequence of text
// fragments exposed as a range-over-func iterator.
package llm

import (
	"context"
	"errors"
	"iter"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one role-tagged conversation turn.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Sentinel errors for generation. Check with errors.Is().
var (
	// ErrGeneration indicates the generation service call failed.
	ErrGeneration = errors.New("generation failed")

	// ErrEmptyResponse indicates the model produced no usable text.
	ErrEmptyResponse = errors.New("empty model response")
)

// Client is a chat-style text completion service.
//
// GenerateStream yields text fragments in arrival order and stops after the
// final fragment or the first error; the sequence cannot be restarted.
type Client interface {
	Generate(ctx context.Context, messages []Message) (string, error)
	GenerateStream(ctx context.Context, messages []Message) iter.Seq2[string, error]
}

// User builds a user message.
func User(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// Assistant builds an assistant message.
func Assistant(text string) Message {
	return Message{Role: RoleAssistant, Text: text}
}

// System builds a system message.
func System(text string) Message {
	return Message{Role: RoleSystem, Text: text}
}
