package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/linustan/komatachi/pkg/contextwindow"
	"github.com/linustan/komatachi/pkg/komatachierr"
	"github.com/linustan/komatachi/pkg/transcript"
)

// summaryMarker is the literal prefix every compacted summary message
// begins with — both the public marker (glossary: "Compaction") and the
// signal the recursive-compaction detector below looks for.
const summaryMarker = "[Conversation Summary]\n\n"

// FileOperations is the three sets of paths tools may report touching
// during a turn. The loop currently always passes an empty FileOperations —
// tool-side reporting is not wired yet, so this is live but unexercised
// infrastructure.
type FileOperations struct {
	Read    []string
	Edited  []string
	Written []string
}

func (f FileOperations) filesRead() []string {
	edited := toSet(f.Edited)
	written := toSet(f.Written)
	var out []string
	for _, p := range f.Read {
		if !edited[p] && !written[p] {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (f FileOperations) filesModified() []string {
	set := toSet(f.Edited)
	for _, p := range f.Written {
		set[p] = true
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func toSet(ps []string) map[string]bool {
	out := make(map[string]bool, len(ps))
	for _, p := range ps {
		out[p] = true
	}
	return out
}

// compactionResult is what a successful compaction pass produces: the new
// transcript, ready for ReplaceTranscript.
type compactionResult struct {
	newTranscript []transcript.Message
}

// compact runs one compaction pass. budget is the turn's current token
// budget (post system-prompt deduction); soul is SOUL.md's content,
// appended verbatim to the summarizer's system prompt when present.
func compact(
	ctx context.Context,
	model ModelFunc,
	modelName string,
	contextWindow int,
	budget int,
	all []transcript.Message,
	soul string,
	fileOps FileOperations,
) (compactionResult, error) {
	reserve := minInt(20000, budget/2)
	keepBudget := budget - reserve

	kept := contextwindow.Select(all, keepBudget, contextwindow.EstimateTokens).Selected
	dropCount := len(all) - len(kept)
	dropSet := all[:dropCount]

	if len(dropSet) == 0 {
		return compactionResult{newTranscript: all}, nil
	}

	previousSummary, dropSetForPrompt := detectRecursiveCompaction(dropSet)

	inputTokens := int(math.Ceil(float64(sumTokens(dropSet)) * 1.2))
	if inputTokens > int(math.Floor(float64(contextWindow)*0.75)) {
		return compactionResult{}, komatachierr.New(komatachierr.InputTooLarge,
			fmt.Sprintf("compaction input (%d tokens) exceeds 0.75x context window", inputTokens))
	}

	system := summarizerSystemPrompt(soul)
	user := summarizerUserPrompt(dropSetForPrompt, previousSummary)

	resp, err := model(ctx, ModelRequest{
		Model:  modelName,
		System: system,
		Messages: []transcript.Message{
			transcript.NewUserText(user),
		},
		MaxTokens: 4096,
	})
	if err != nil {
		return compactionResult{}, komatachierr.Wrap(komatachierr.ModelCallError, "compaction summarizer call failed", err)
	}

	modelSummary := extractText(resp.Content)

	failures := toolFailures(dropSet)
	filesRead := fileOps.filesRead()
	filesModified := fileOps.filesModified()

	final := assembleSummary(modelSummary, failures, filesRead, filesModified)

	newTranscript := make([]transcript.Message, 0, 1+len(kept))
	newTranscript = append(newTranscript, transcript.NewUserText(summaryMarker+final))
	newTranscript = append(newTranscript, kept...)

	return compactionResult{newTranscript: newTranscript}, nil
}

func sumTokens(ms []transcript.Message) int {
	total := 0
	for _, m := range ms {
		total += contextwindow.EstimateTokens(m)
	}
	return total
}

// detectRecursiveCompaction checks whether the drop-set's first message is
// itself a prior compaction summary (identified by the literal marker
// prefix — known-fragile, accepted as-is: a user-authored message that
// happens to start with the same string would be misdetected). When it
// is, the summary text is extracted and the message itself
// is excluded from the set rendered to the summarizer, since its content is
// passed separately with "preserve, don't re-abstract" instructions.
func detectRecursiveCompaction(dropSet []transcript.Message) (previousSummary string, rest []transcript.Message) {
	if len(dropSet) == 0 {
		return "", dropSet
	}
	first := dropSet[0]
	if first.Role != transcript.RoleUser {
		return "", dropSet
	}
	text := first.Text()
	if !strings.HasPrefix(text, summaryMarker) {
		return "", dropSet
	}
	return strings.TrimPrefix(text, summaryMarker), dropSet[1:]
}

func summarizerSystemPrompt(soul string) string {
	var b strings.Builder
	b.WriteString("You are summarizing a conversation on behalf of a persistent entity whose memory works entirely through recursive compaction. Any detail you do not preserve here is lost forever — there is no underlying transcript to fall back on once this summary replaces it.")
	if soul != "" {
		b.WriteString("\n\n")
		b.WriteString(soul)
	}
	return b.String()
}

func summarizerUserPrompt(dropSet []transcript.Message, previousSummary string) string {
	var b strings.Builder
	b.WriteString("Summarize the following conversation:\n\n")
	for _, m := range dropSet {
		fmt.Fprintf(&b, "[%s]: %s\n", m.Role, renderMessageForSummary(m))
	}

	b.WriteString("\nPreserve, in order of priority:\n")
	b.WriteString("1. Relational context — interactions, commitments, trust, emotional moments.\n")
	b.WriteString("2. Identity development — what the entity learned about itself.\n")
	b.WriteString("3. Important facts, decisions, and reasoning.\n")
	b.WriteString("4. Promises and responsibilities.\n")
	b.WriteString("5. Operational details — compress these aggressively.\n\n")
	b.WriteString("Write in first-person past tense. Include select verbatim quotes for emotional or commitment-bearing content. Omit routine exchanges.\n")

	if previousSummary != "" {
		b.WriteString("\nA prior summary already exists below. Preserve its core — do not abstract it further:\n\n")
		b.WriteString(previousSummary)
		b.WriteString("\n")
	}

	return b.String()
}

func renderMessageForSummary(m transcript.Message) string {
	data, err := json.Marshal(m.Content)
	if err != nil {
		return m.Text()
	}
	return string(data)
}

func toolFailures(dropSet []transcript.Message) []string {
	type failure struct {
		toolName string
		summary  string
	}

	// Map tool_use id -> tool name, scanning assistant messages.
	toolNameByID := map[string]string{}
	for _, m := range dropSet {
		if m.Role != transcript.RoleAssistant {
			continue
		}
		for _, b := range m.ToolUseBlocks() {
			toolNameByID[b.ID] = b.Name
		}
	}

	seen := map[string]bool{}
	var failures []failure
	for _, m := range dropSet {
		if m.Role != transcript.RoleUser {
			continue
		}
		for _, b := range m.Content {
			if b.Type != transcript.BlockToolResult || !b.IsError || seen[b.ToolUseID] {
				continue
			}
			seen[b.ToolUseID] = true
			name := toolNameByID[b.ToolUseID]
			if name == "" {
				name = "tool"
			}
			failures = append(failures, failure{toolName: name, summary: truncate(normalizeWhitespace(b.Content), 240)})
		}
	}

	const maxFailures = 8
	lines := make([]string, 0, len(failures))
	for i, f := range failures {
		if i >= maxFailures {
			lines = append(lines, fmt.Sprintf("…and %d more", len(failures)-maxFailures))
			break
		}
		lines = append(lines, fmt.Sprintf("%s: %s", f.toolName, f.summary))
	}
	return lines
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func assembleSummary(modelSummary string, failures []string, filesRead, filesModified []string) string {
	var b strings.Builder
	b.WriteString(modelSummary)

	if len(failures) > 0 {
		b.WriteString("\n\n## Tool Failures\n")
		for _, f := range failures {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	if len(filesRead) > 0 || len(filesModified) > 0 {
		b.WriteString("\n\n<read-files>\n")
		b.WriteString(strings.Join(filesRead, "\n"))
		b.WriteString("\n</read-files>\n\n<modified-files>\n")
		b.WriteString(strings.Join(filesModified, "\n"))
		b.WriteString("\n</modified-files>")
	}

	return strings.TrimRight(b.String(), "\n")
}

func extractText(blocks []transcript.ContentBlock) string {
	var b strings.Builder
	for _, block := range blocks {
		if block.Type == transcript.BlockText {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
