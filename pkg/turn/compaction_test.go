package turn

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linustan/komatachi/pkg/komatachierr"
	"github.com/linustan/komatachi/pkg/transcript"
)

func makeLongMessages(n, charsEach int) []transcript.Message {
	text := strings.Repeat("a", charsEach)
	out := make([]transcript.Message, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, transcript.NewUserText(text))
	}
	return out
}

func staticSummaryModel(summary string) ModelFunc {
	return func(ctx context.Context, req ModelRequest) (ModelResponse, error) {
		return ModelResponse{Content: []transcript.ContentBlock{transcript.TextBlock(summary)}, StopReason: StopEndTurn}, nil
	}
}

func TestCompact_ProducesMarkerPrefixedSummary(t *testing.T) {
	all := makeLongMessages(20, 200)
	result, err := compact(context.Background(), staticSummaryModel("Condensed."), "claude-test", 10000, 990, all, "", FileOperations{})
	require.NoError(t, err)
	require.NotEmpty(t, result.newTranscript)
	assert.True(t, strings.HasPrefix(result.newTranscript[0].Text(), summaryMarker))
	assert.Less(t, len(result.newTranscript), len(all)+1)
}

func TestCompact_InputTooLarge(t *testing.T) {
	all := makeLongMessages(100, 2000)
	_, err := compact(context.Background(), staticSummaryModel("x"), "claude-test", 1000, 10, all, "", FileOperations{})
	require.Error(t, err)
	assert.True(t, komatachierr.Is(err, komatachierr.InputTooLarge))
}

func TestCompact_ModelFailurePropagatesNoFallback(t *testing.T) {
	all := makeLongMessages(20, 200)
	failing := func(ctx context.Context, req ModelRequest) (ModelResponse, error) {
		return ModelResponse{}, assert.AnError
	}
	_, err := compact(context.Background(), failing, "claude-test", 10000, 990, all, "", FileOperations{})
	require.Error(t, err)
	assert.True(t, komatachierr.Is(err, komatachierr.ModelCallError))
}

func TestCompact_RecursiveDetection_PreservesPriorSummary(t *testing.T) {
	var capturedPrompt string
	model := func(ctx context.Context, req ModelRequest) (ModelResponse, error) {
		capturedPrompt = req.Messages[0].Text()
		return ModelResponse{Content: []transcript.ContentBlock{transcript.TextBlock("re-condensed")}, StopReason: StopEndTurn}, nil
	}

	all := append([]transcript.Message{
		transcript.NewUserText(summaryMarker + "Earlier we discussed the project deadline."),
	}, makeLongMessages(20, 200)...)

	_, err := compact(context.Background(), model, "claude-test", 10000, 990, all, "", FileOperations{})
	require.NoError(t, err)
	assert.Contains(t, capturedPrompt, "Earlier we discussed the project deadline.")
	assert.Contains(t, capturedPrompt, "do not abstract it further")
}

func TestCompact_SoulAppendedToSummarizerSystemPrompt(t *testing.T) {
	var capturedSystem string
	model := func(ctx context.Context, req ModelRequest) (ModelResponse, error) {
		capturedSystem = req.System
		return ModelResponse{Content: []transcript.ContentBlock{transcript.TextBlock("x")}, StopReason: StopEndTurn}, nil
	}

	all := makeLongMessages(20, 200)
	_, err := compact(context.Background(), model, "claude-test", 10000, 990, all, "I am Komatachi, I persist.", FileOperations{})
	require.NoError(t, err)
	assert.Contains(t, capturedSystem, "I am Komatachi, I persist.")
}

func TestCompact_ToolFailuresExtracted(t *testing.T) {
	all := []transcript.Message{
		transcript.NewUserText("question"),
		transcript.NewAssistant([]transcript.ContentBlock{transcript.ToolUseBlock("t1", "search", nil)}),
		{Role: transcript.RoleUser, Content: []transcript.ContentBlock{transcript.ToolResultBlock("t1", "network   timeout\n\noccurred", true)}},
	}
	all = append(all, makeLongMessages(20, 200)...)

	var capturedPrompt string
	model := func(ctx context.Context, req ModelRequest) (ModelResponse, error) {
		capturedPrompt = req.Messages[0].Text()
		return ModelResponse{Content: []transcript.ContentBlock{transcript.TextBlock("Condensed.")}, StopReason: StopEndTurn}, nil
	}

	result, err := compact(context.Background(), model, "claude-test", 10000, 990, all, "", FileOperations{})
	require.NoError(t, err)
	assert.Contains(t, capturedPrompt, "search")

	assert.Contains(t, result.newTranscript[0].Text(), "## Tool Failures")
	assert.Contains(t, result.newTranscript[0].Text(), "search: network timeout occurred")
}

func TestCompact_FileListsFromFileOperations(t *testing.T) {
	all := makeLongMessages(20, 200)
	fileOps := FileOperations{
		Read:    []string{"a.go", "b.go", "c.go"},
		Edited:  []string{"b.go"},
		Written: []string{"d.go"},
	}

	result, err := compact(context.Background(), staticSummaryModel("Condensed."), "claude-test", 10000, 990, all, "", fileOps)
	require.NoError(t, err)

	summary := result.newTranscript[0].Text()
	assert.Contains(t, summary, "<read-files>")
	assert.Contains(t, summary, "a.go")
	assert.NotContains(t, summary, "<read-files>\nb.go")
	assert.Contains(t, summary, "<modified-files>")
	assert.Contains(t, summary, "b.go")
	assert.Contains(t, summary, "d.go")
}

func TestFileOperations_FilesReadExcludesModified(t *testing.T) {
	f := FileOperations{Read: []string{"a.go", "b.go"}, Edited: []string{"b.go"}}
	assert.Equal(t, []string{"a.go"}, f.filesRead())
}

func TestFileOperations_FilesModifiedDedupes(t *testing.T) {
	f := FileOperations{Edited: []string{"a.go"}, Written: []string{"a.go", "b.go"}}
	assert.Equal(t, []string{"a.go", "b.go"}, f.filesModified())
}
