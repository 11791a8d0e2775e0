// Package turn is the heart of the system: it composes storage, context
// selection, identity assembly, tool dispatch, and compaction into the
// single operation a host ever calls — ProcessTurn.
package turn

import (
	"context"
	"fmt"
	"time"

	"github.com/linustan/komatachi/pkg/contextwindow"
	"github.com/linustan/komatachi/pkg/conversation"
	"github.com/linustan/komatachi/pkg/identity"
	"github.com/linustan/komatachi/pkg/komatachierr"
	"github.com/linustan/komatachi/pkg/logger"
	"github.com/linustan/komatachi/pkg/tools"
	"github.com/linustan/komatachi/pkg/transcript"
)

const (
	maxModelCallsPerTurn         = 25
	maxCompactionAttemptsPerTurn = 2
)

// Now is overridable in tests; production code always calls time.Now.
var Now = func() time.Time { return time.Now() }

// Loop owns everything one turn needs: the conversation store it mutates,
// where identity files live, the registered tools, and the model function
// it calls. One Loop serves one entity, one process, in keeping with the
// single-writer model a conversation directory assumes.
type Loop struct {
	Conversation  *conversation.Store
	HomeDir       string
	Tools         []tools.Definition
	Model         ModelFunc
	ModelName     string
	MaxTokens     int
	ContextWindow int
}

// ProcessTurn runs one full turn: append the user's input, loop through
// model calls and tool dispatches (reloading identity and re-selecting
// context each iteration), and return the model's final text reply.
func (l *Loop) ProcessTurn(ctx context.Context, userInput string) (string, error) {
	if err := l.repairUnpairedTrailingToolUse(); err != nil {
		return "", err
	}

	if err := l.Conversation.AppendMessage(transcript.NewUserText(userInput)); err != nil {
		return "", err
	}

	modelCalls := 0
	compactionAttempts := 0

	for {
		files, err := identity.Load(l.HomeDir)
		if err != nil {
			return "", komatachierr.Wrap(komatachierr.IO, "failed to load identity files", err)
		}

		toolSummaries := make([]identity.ToolSummary, 0, len(l.Tools))
		for _, t := range l.Tools {
			toolSummaries = append(toolSummaries, identity.ToolSummary{Name: t.Name, Description: t.Description})
		}

		system := identity.BuildSystemPrompt(files, toolSummaries, identity.Runtime{CurrentTime: Now()})
		promptTokens := contextwindow.EstimateStringTokens(system)
		budget := l.ContextWindow - promptTokens - l.MaxTokens
		if budget <= 0 {
			return "", komatachierr.New(komatachierr.TokenBudgetExhausted,
				fmt.Sprintf("context window %d minus prompt %d minus max tokens %d <= 0", l.ContextWindow, promptTokens, l.MaxTokens))
		}

		all, err := l.Conversation.GetMessages()
		if err != nil {
			return "", err
		}

		selection := contextwindow.Select(all, budget, contextwindow.EstimateTokens)
		if selection.Overflow != nil {
			if compactionAttempts >= maxCompactionAttemptsPerTurn {
				return "", komatachierr.New(komatachierr.CompactionExhausted,
					fmt.Sprintf("exceeded %d compaction attempts; %d messages (~%d tokens) still overflow",
						maxCompactionAttemptsPerTurn, selection.Overflow.DroppedCount, selection.Overflow.EstimatedDroppedTokens))
			}
			compactionAttempts++

			soul := ""
			if files.Soul != nil {
				soul = *files.Soul
			}

			result, err := compact(ctx, l.Model, l.ModelName, l.ContextWindow, budget, all, soul, FileOperations{})
			if err != nil {
				return "", err
			}
			if err := l.Conversation.ReplaceTranscript(result.newTranscript); err != nil {
				return "", err
			}

			meta, err := l.Conversation.GetMetadata()
			if err != nil {
				return "", err
			}
			newCount := meta.CompactionCount + 1
			if err := l.Conversation.UpdateMetadata(conversation.MetadataPatch{CompactionCount: &newCount}); err != nil {
				return "", err
			}

			logger.InfoCF("turn", "compaction completed", map[string]any{"compactionCount": newCount})
			continue
		}

		if modelCalls >= maxModelCallsPerTurn {
			return "", komatachierr.New(komatachierr.TurnBudgetExhausted,
				fmt.Sprintf("exceeded %d model calls in one turn", maxModelCallsPerTurn))
		}
		modelCalls++

		resp, err := l.Model(ctx, ModelRequest{
			Model:     l.ModelName,
			System:    system,
			Messages:  copyMessages(selection.Selected),
			Tools:     wireTools(l.Tools),
			MaxTokens: l.MaxTokens,
		})
		if err != nil {
			return "", komatachierr.Wrap(komatachierr.ModelCallError, "model call failed", err)
		}

		assistantMsg := transcript.NewAssistant(resp.Content)
		if err := l.Conversation.AppendMessage(assistantMsg); err != nil {
			return "", err
		}

		if resp.StopReason == StopEndTurn || resp.StopReason == StopMaxTokens {
			return assistantMsg.Text(), nil
		}

		// StopToolUse: dispatch every tool_use block, in order, bundle the
		// results into one user message in the same order, append, loop.
		toolUses := assistantMsg.ToolUseBlocks()
		results := make([]transcript.ContentBlock, 0, len(toolUses))
		for _, use := range toolUses {
			results = append(results, l.dispatchOne(use))
		}
		if err := l.Conversation.AppendMessage(transcript.Message{Role: transcript.RoleUser, Content: results}); err != nil {
			return "", err
		}
	}
}

// repairUnpairedTrailingToolUse handles the crash window between an
// assistant tool_use message being persisted and its tool_result reply:
// if the transcript's last message is an assistant message containing
// tool_use blocks, it has no reply and the model API would reject it.
// It is truncated from the transcript before the new turn begins, rather
// than repaired by synthesizing a fake tool_result.
func (l *Loop) repairUnpairedTrailingToolUse() error {
	all, err := l.Conversation.GetMessages()
	if err != nil {
		return err
	}
	if len(all) == 0 {
		return nil
	}
	last := all[len(all)-1]
	if last.Role != transcript.RoleAssistant || len(last.ToolUseBlocks()) == 0 {
		return nil
	}
	return l.Conversation.ReplaceTranscript(all[:len(all)-1])
}

func (l *Loop) dispatchOne(use transcript.ContentBlock) transcript.ContentBlock {
	input, _ := use.Input.(map[string]any)

	def, ok := tools.FindTool(l.Tools, use.Name)
	if !ok {
		return transcript.ToolResultBlock(use.ID, "Tool not found: "+use.Name, true)
	}

	result := tools.ExecuteTool(def, input)
	if result.OK {
		return transcript.ToolResultBlock(use.ID, result.Content, false)
	}
	return transcript.ToolResultBlock(use.ID, result.Error, true)
}

func wireTools(defs []tools.Definition) []WireTool {
	if len(defs) == 0 {
		return nil
	}
	exported := tools.ExportForAPI(defs)
	out := make([]WireTool, 0, len(exported))
	for _, w := range exported {
		out = append(out, WireTool{Name: w.Name, Description: w.Description, InputSchema: w.InputSchema})
	}
	return out
}

func copyMessages(ms []transcript.Message) []transcript.Message {
	out := make([]transcript.Message, len(ms))
	copy(out, ms)
	return out
}
