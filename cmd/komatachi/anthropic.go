package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linustan/komatachi/pkg/transcript"
	"github.com/linustan/komatachi/pkg/turn"
)

// anthropicModel is the default turn.ModelFunc: a thin adapter between
// this codebase's own transcript/turn types and the Anthropic SDK's
// request/response shapes. It carries no retry or rate-limiting logic of
// its own — rate limiting is layered on separately by rateLimited, and no
// layer retries a failed call.
type anthropicModel struct {
	client *anthropic.Client
}

func newAnthropicModel(apiKey, baseURL string) *anthropicModel {
	var opts []option.RequestOption
	opts = append(opts, option.WithAuthToken(apiKey))
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &anthropicModel{client: &client}
}

func (m *anthropicModel) Call(ctx context.Context, req turn.ModelRequest) (turn.ModelResponse, error) {
	params := buildParams(req)

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return turn.ModelResponse{}, fmt.Errorf("anthropic API call: %w", err)
	}

	return parseResponse(resp), nil
}

func buildParams(req turn.ModelRequest) anthropic.MessageNewParams {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		blocks := toAnthropicBlocks(m.Content)
		if m.Role == transcript.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(req.MaxTokens),
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	if len(req.Tools) > 0 {
		params.Tools = translateTools(req.Tools)
	}

	return params
}

func toAnthropicBlocks(blocks []transcript.ContentBlock) []anthropic.ContentBlockParamUnion {
	out := make([]anthropic.ContentBlockParamUnion, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case transcript.BlockText:
			out = append(out, anthropic.NewTextBlock(b.Text))
		case transcript.BlockToolUse:
			input := b.Input
			if input == nil {
				input = map[string]any{}
			}
			out = append(out, anthropic.NewToolUseBlock(b.ID, input, b.Name))
		case transcript.BlockToolResult:
			out = append(out, anthropic.NewToolResultBlock(b.ToolUseID, flattenToolResultContent(b), b.IsError))
		}
	}
	return out
}

// flattenToolResultContent reduces a tool_result block to a plain string,
// the only shape the SDK's tool-result constructor accepts. A structured
// ResultBlocks value is flattened to its concatenated text.
func flattenToolResultContent(b transcript.ContentBlock) string {
	if b.ResultBlocks == nil {
		return b.Content
	}
	var out string
	for _, rb := range b.ResultBlocks {
		if rb.Type == transcript.BlockText {
			out += rb.Text
		}
	}
	return out
}

func translateTools(tools []turn.WireTool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		tool := anthropic.ToolParam{
			Name: t.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: t.InputSchema["properties"],
			},
		}
		if t.Description != "" {
			tool.Description = anthropic.String(t.Description)
		}
		if required, ok := t.InputSchema["required"].([]string); ok {
			tool.InputSchema.Required = required
		} else if rawRequired, ok := t.InputSchema["required"].([]any); ok {
			required := make([]string, 0, len(rawRequired))
			for _, r := range rawRequired {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
			tool.InputSchema.Required = required
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out
}

func parseResponse(resp *anthropic.Message) turn.ModelResponse {
	var blocks []transcript.ContentBlock

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			tb := block.AsText()
			blocks = append(blocks, transcript.TextBlock(tb.Text))
		case "tool_use":
			tu := block.AsToolUse()
			var args map[string]any
			if err := json.Unmarshal(tu.Input, &args); err != nil {
				args = map[string]any{"raw": string(tu.Input)}
			}
			blocks = append(blocks, transcript.ToolUseBlock(tu.ID, tu.Name, args))
		}
	}

	stopReason := turn.StopEndTurn
	switch resp.StopReason {
	case anthropic.StopReasonToolUse:
		stopReason = turn.StopToolUse
	case anthropic.StopReasonMaxTokens:
		stopReason = turn.StopMaxTokens
	}

	return turn.ModelResponse{Content: blocks, StopReason: stopReason}
}
