package turn

import (
	"context"

	"github.com/linustan/komatachi/pkg/transcript"
)

// StopReason mirrors the three terminal states a model call can report.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// WireTool is a tool definition as handed to the model function: name,
// description and input schema, without the handler. It carries no JSON
// tags; the model function maps it onto its own wire format.
type WireTool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ModelRequest is everything a model call needs: a freshly copied message
// vector (never the loop's live slice), the system prompt, the tool
// definitions in wire form (omitted entirely when there are none), the
// model id, and the max output tokens.
type ModelRequest struct {
	Model     string
	System    string
	Messages  []transcript.Message
	Tools     []WireTool
	MaxTokens int
}

// ModelResponse is the decoded model reply.
type ModelResponse struct {
	Content    []transcript.ContentBlock
	StopReason StopReason
}

// ModelFunc is the injected model-call contract. Errors propagate as
// ModelCallError at the call site — this package never retries internally;
// that is the injected function's own business if it wants one.
type ModelFunc func(ctx context.Context, req ModelRequest) (ModelResponse, error)
