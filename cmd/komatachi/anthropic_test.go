package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linustan/komatachi/pkg/transcript"
	"github.com/linustan/komatachi/pkg/turn"
)

func TestBuildParams_SystemAndMessages(t *testing.T) {
	req := turn.ModelRequest{
		Model:  "claude-test",
		System: "You are Komatachi.",
		Messages: []transcript.Message{
			transcript.NewUserText("hello"),
			transcript.NewAssistant([]transcript.ContentBlock{transcript.TextBlock("hi there")}),
		},
		MaxTokens: 512,
	}

	params := buildParams(req)

	assert.Equal(t, anthropic.Model("claude-test"), params.Model)
	assert.EqualValues(t, 512, params.MaxTokens)
	require.Len(t, params.System, 1)
	assert.Equal(t, "You are Komatachi.", params.System[0].Text)
	require.Len(t, params.Messages, 2)
}

func TestBuildParams_ToolUseAndToolResultBlocks(t *testing.T) {
	req := turn.ModelRequest{
		Model: "claude-test",
		Messages: []transcript.Message{
			transcript.NewAssistant([]transcript.ContentBlock{
				transcript.ToolUseBlock("t1", "search", map[string]any{"query": "weather"}),
			}),
			{Role: transcript.RoleUser, Content: []transcript.ContentBlock{
				transcript.ToolResultBlock("t1", "sunny", false),
			}},
		},
		MaxTokens: 512,
	}

	params := buildParams(req)
	require.Len(t, params.Messages, 2)
}

func TestBuildParams_NoToolsOmitsToolsField(t *testing.T) {
	req := turn.ModelRequest{Model: "claude-test", Messages: []transcript.Message{transcript.NewUserText("hi")}, MaxTokens: 10}
	params := buildParams(req)
	assert.Empty(t, params.Tools)
}

func TestTranslateTools_RequiredAsAnySlice(t *testing.T) {
	tools := []turn.WireTool{
		{
			Name:        "search",
			Description: "search the web",
			InputSchema: map[string]any{
				"properties": map[string]any{"query": map[string]any{"type": "string"}},
				"required":   []any{"query"},
			},
		},
	}
	out := translateTools(tools)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].OfTool)
	assert.Equal(t, "search", out[0].OfTool.Name)
	assert.Equal(t, []string{"query"}, out[0].OfTool.InputSchema.Required)
}

func TestFlattenToolResultContent_PrefersResultBlocksText(t *testing.T) {
	b := transcript.ContentBlock{
		Type:         transcript.BlockToolResult,
		Content:      "ignored",
		ResultBlocks: []transcript.ContentBlock{transcript.TextBlock("structured")},
	}
	assert.Equal(t, "structured", flattenToolResultContent(b))
}

func TestFlattenToolResultContent_FallsBackToContent(t *testing.T) {
	b := transcript.ContentBlock{Type: transcript.BlockToolResult, Content: "plain"}
	assert.Equal(t, "plain", flattenToolResultContent(b))
}

func TestParseResponse_StopReasonMapping(t *testing.T) {
	tests := []struct {
		stopReason anthropic.StopReason
		want       turn.StopReason
	}{
		{anthropic.StopReasonEndTurn, turn.StopEndTurn},
		{anthropic.StopReasonMaxTokens, turn.StopMaxTokens},
		{anthropic.StopReasonToolUse, turn.StopToolUse},
	}
	for _, tt := range tests {
		resp := &anthropic.Message{StopReason: tt.stopReason}
		got := parseResponse(resp)
		assert.Equal(t, tt.want, got.StopReason)
	}
}

func TestAnthropicModel_Call_RoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)

		resp := map[string]any{
			"id":          "msg_test",
			"type":        "message",
			"role":        "assistant",
			"model":       body["model"],
			"stop_reason": "tool_use",
			"content": []map[string]any{
				{"type": "text", "text": "let me check"},
				{"type": "tool_use", "id": "t1", "name": "search", "input": map[string]any{"query": "weather"}},
			},
			"usage": map[string]any{"input_tokens": 5, "output_tokens": 9},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	model := newAnthropicModel("test-token", server.URL)
	resp, err := model.Call(t.Context(), turn.ModelRequest{
		Model:     "claude-test",
		Messages:  []transcript.Message{transcript.NewUserText("what's the weather")},
		MaxTokens: 512,
	})
	require.NoError(t, err)

	assert.Equal(t, turn.StopToolUse, resp.StopReason)
	require.Len(t, resp.Content, 2)
	assert.Equal(t, transcript.BlockText, resp.Content[0].Type)
	assert.Equal(t, "let me check", resp.Content[0].Text)
	assert.Equal(t, transcript.BlockToolUse, resp.Content[1].Type)
	assert.Equal(t, "search", resp.Content[1].Name)
}
