// Package transcript defines the Message and ContentBlock types that make
// up a conversation: a tagged sum type for content blocks, mirroring the
// Anthropic Messages API shape, with a custom MarshalJSON that emits only
// the fields relevant to each block's type.
package transcript

import "encoding/json"

// Role is either "user" or "assistant" — the data model admits no others.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType discriminates a ContentBlock.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is a discriminated union over the three block shapes the
// transcript format ever stores. Type determines which other fields are
// meaningful:
//
//	text:        Text
//	tool_use:    ID, Name, Input
//	tool_result: ToolUseID, Content (or ResultBlocks), IsError
type ContentBlock struct {
	Type BlockType `json:"type"`

	// type="text"
	Text string `json:"text,omitempty"`

	// type="tool_use"
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`

	// type="tool_result". Content holds a plain-string result; ResultBlocks
	// holds a structured sequence of text blocks. Exactly one is populated.
	ToolUseID    string         `json:"tool_use_id,omitempty"`
	Content      string         `json:"content,omitempty"`
	ResultBlocks []ContentBlock `json:"-"`
	IsError      bool           `json:"is_error,omitempty"`
}

// MarshalJSON emits only the fields relevant to the block's Type, mirroring
// the Anthropic wire format exactly (no zero-valued siblings leaking onto
// the wire).
func (cb ContentBlock) MarshalJSON() ([]byte, error) {
	switch cb.Type {
	case BlockText:
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{Type: string(BlockText), Text: cb.Text})

	case BlockToolUse:
		return json.Marshal(struct {
			Type  string `json:"type"`
			ID    string `json:"id"`
			Name  string `json:"name"`
			Input any    `json:"input"`
		}{Type: string(BlockToolUse), ID: cb.ID, Name: cb.Name, Input: cb.Input})

	case BlockToolResult:
		var content any
		if cb.ResultBlocks != nil {
			content = cb.ResultBlocks
		} else {
			content = cb.Content
		}
		out := struct {
			Type      string `json:"type"`
			ToolUseID string `json:"tool_use_id"`
			Content   any    `json:"content"`
			IsError   bool   `json:"is_error,omitempty"`
		}{Type: string(BlockToolResult), ToolUseID: cb.ToolUseID, Content: content, IsError: cb.IsError}
		return json.Marshal(out)

	default:
		type alias ContentBlock
		return json.Marshal(alias(cb))
	}
}

// UnmarshalJSON parses the wire shape back, handling tool_result.content
// being either a plain string or an array of text blocks.
func (cb *ContentBlock) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      BlockType       `json:"type"`
		Text      string          `json:"text"`
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Input     any             `json:"input"`
		ToolUseID string          `json:"tool_use_id"`
		Content   json.RawMessage `json:"content"`
		IsError   bool            `json:"is_error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	cb.Type = raw.Type
	cb.Text = raw.Text
	cb.ID = raw.ID
	cb.Name = raw.Name
	cb.Input = raw.Input
	cb.ToolUseID = raw.ToolUseID
	cb.IsError = raw.IsError
	cb.Content = ""
	cb.ResultBlocks = nil

	if raw.Type != BlockToolResult || len(raw.Content) == 0 {
		return nil
	}

	var asString string
	if err := json.Unmarshal(raw.Content, &asString); err == nil {
		cb.Content = asString
		return nil
	}

	var asBlocks []ContentBlock
	if err := json.Unmarshal(raw.Content, &asBlocks); err != nil {
		return err
	}
	cb.ResultBlocks = asBlocks
	return nil
}

// TextBlock is a convenience constructor for a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock is a convenience constructor for a tool_use content block.
func ToolUseBlock(id, name string, input any) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock is a convenience constructor for a plain-string
// tool_result; isError marks it as a failed one.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// Message is one turn of the transcript: a role and an ordered content
// block sequence.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// NewUserText builds a plain single-text-block user message.
func NewUserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// NewAssistant builds an assistant message from a content block sequence.
func NewAssistant(blocks []ContentBlock) Message {
	return Message{Role: RoleAssistant, Content: blocks}
}

// Text concatenates every text block in the message, in order. Non-text
// blocks contribute nothing — this is used for rendering, not serialization.
func (m Message) Text() string {
	var out string
	for _, b := range m.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolUseBlocks returns every tool_use block in the message, in order.
func (m Message) ToolUseBlocks() []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Content {
		if b.Type == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}
