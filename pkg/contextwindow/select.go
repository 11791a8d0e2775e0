// Package contextwindow selects a contiguous, budget-bounded tail of a
// transcript. Every function here is pure: no I/O, no side effects, so it
// can be tested exhaustively and reused unchanged by both the turn loop and
// the compaction engine's keep-budget computation.
package contextwindow

import (
	"encoding/json"
	"math"

	"github.com/linustan/komatachi/pkg/transcript"
)

// TokenEstimator estimates the token cost of one message.
type TokenEstimator func(m transcript.Message) int

// Overflow reports that a selection had to drop a prefix of the input.
type Overflow struct {
	DroppedCount           int
	EstimatedDroppedTokens int
}

// Selection is the result of Select: a contiguous suffix of the input plus
// an optional overflow report.
type Selection struct {
	Selected []transcript.Message
	Overflow *Overflow
}

// Select walks ms from the most-recent end, accumulating tokens(m) until
// adding the next message would exceed budget, then stops. The result is
// always a contiguous suffix: a large message is never skipped in favor of
// an older small one, because conversation coherence outweighs density.
func Select(ms []transcript.Message, budget int, tokens TokenEstimator) Selection {
	if len(ms) == 0 {
		return Selection{Selected: nil, Overflow: nil}
	}

	if budget <= 0 {
		return Selection{Selected: nil, Overflow: &Overflow{
			DroppedCount:           len(ms),
			EstimatedDroppedTokens: sumTokens(ms, tokens),
		}}
	}

	used := 0
	cut := len(ms)
	for i := len(ms) - 1; i >= 0; i-- {
		cost := tokens(ms[i])
		if used+cost > budget {
			break
		}
		used += cost
		cut = i
	}

	if cut == 0 {
		return Selection{Selected: ms, Overflow: nil}
	}

	dropped := ms[:cut]
	return Selection{
		Selected: ms[cut:],
		Overflow: &Overflow{
			DroppedCount:           len(dropped),
			EstimatedDroppedTokens: sumTokens(dropped, tokens),
		},
	}
}

func sumTokens(ms []transcript.Message, tokens TokenEstimator) int {
	total := 0
	for _, m := range ms {
		total += tokens(m)
	}
	return total
}

// EstimateTokens is the reference pessimistic estimator: ceil(chars/4) over
// a textualization of the message (text blocks concatenated, tool_use.input
// JSON-encoded, tool_result content flattened).
func EstimateTokens(m transcript.Message) int {
	return EstimateStringTokens(textualize(m))
}

// EstimateStringTokens is the companion estimator used for system-prompt
// budgeting: ceil(len(text)/4).
func EstimateStringTokens(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / 4.0))
}

func textualize(m transcript.Message) string {
	var out string
	for _, b := range m.Content {
		switch b.Type {
		case transcript.BlockText:
			out += b.Text
		case transcript.BlockToolUse:
			if data, err := json.Marshal(b.Input); err == nil {
				out += string(data)
			}
		case transcript.BlockToolResult:
			if b.ResultBlocks != nil {
				for _, rb := range b.ResultBlocks {
					out += rb.Text
				}
			} else {
				out += b.Content
			}
		}
	}
	return out
}
