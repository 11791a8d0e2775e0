package contextwindow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linustan/komatachi/pkg/transcript"
)

// fixedCost returns an estimator where every message costs the same.
func fixedCost(cost int) TokenEstimator {
	return func(transcript.Message) int { return cost }
}

func TestSelect_EmptyInput(t *testing.T) {
	sel := Select(nil, 100, fixedCost(10))
	assert.Empty(t, sel.Selected)
	assert.Nil(t, sel.Overflow)
}

func TestSelect_ZeroBudget_NonEmptyInput(t *testing.T) {
	ms := []transcript.Message{transcript.NewUserText("a"), transcript.NewUserText("b")}
	sel := Select(ms, 0, fixedCost(10))
	assert.Empty(t, sel.Selected)
	require.NotNil(t, sel.Overflow)
	assert.Equal(t, 2, sel.Overflow.DroppedCount)
	assert.Equal(t, 20, sel.Overflow.EstimatedDroppedTokens)
}

func TestSelect_NegativeBudget(t *testing.T) {
	ms := []transcript.Message{transcript.NewUserText("a")}
	sel := Select(ms, -5, fixedCost(10))
	assert.Empty(t, sel.Selected)
	require.NotNil(t, sel.Overflow)
}

func TestSelect_EverythingFits(t *testing.T) {
	ms := []transcript.Message{transcript.NewUserText("a"), transcript.NewUserText("b"), transcript.NewUserText("c")}
	sel := Select(ms, 100, fixedCost(10))
	assert.Equal(t, ms, sel.Selected)
	assert.Nil(t, sel.Overflow)
}

func TestSelect_DropsOldestPrefix(t *testing.T) {
	ms := []transcript.Message{
		transcript.NewUserText("oldest"),
		transcript.NewUserText("middle"),
		transcript.NewUserText("newest"),
	}
	sel := Select(ms, 25, fixedCost(10))
	require.Len(t, sel.Selected, 2)
	assert.Equal(t, "middle", sel.Selected[0].Text())
	assert.Equal(t, "newest", sel.Selected[1].Text())
	require.NotNil(t, sel.Overflow)
	assert.Equal(t, 1, sel.Overflow.DroppedCount)
	assert.Equal(t, 10, sel.Overflow.EstimatedDroppedTokens)
}

func TestSelect_OnlyLatestFits(t *testing.T) {
	ms := []transcript.Message{
		transcript.NewUserText("a"),
		transcript.NewUserText("b"),
		transcript.NewUserText("c"),
	}
	sel := Select(ms, 10, fixedCost(10))
	require.Len(t, sel.Selected, 1)
	assert.Equal(t, "c", sel.Selected[0].Text())
}

func TestSelect_SingleMessageExceedsBudget_NotForciblyIncluded(t *testing.T) {
	ms := []transcript.Message{transcript.NewUserText("huge")}
	sel := Select(ms, 5, fixedCost(50))
	assert.Empty(t, sel.Selected)
	require.NotNil(t, sel.Overflow)
	assert.Equal(t, 1, sel.Overflow.DroppedCount)
}

func TestSelect_NeverSkipsToIncludeOlderSmallMessage(t *testing.T) {
	// newest is large enough alone to exceed budget; selection must still
	// be the contiguous suffix (empty), not skip to an older small message.
	costs := map[string]int{"old-small": 1, "newest-huge": 100}
	estimator := func(m transcript.Message) int { return costs[m.Text()] }

	ms := []transcript.Message{
		transcript.NewUserText("old-small"),
		transcript.NewUserText("newest-huge"),
	}
	sel := Select(ms, 10, estimator)
	assert.Empty(t, sel.Selected)
}

func TestEstimateTokens_NonNegative(t *testing.T) {
	m := transcript.NewUserText("")
	assert.GreaterOrEqual(t, EstimateTokens(m), 0)
}

func TestEstimateStringTokens_CeilDivision(t *testing.T) {
	assert.Equal(t, 0, EstimateStringTokens(""))
	assert.Equal(t, 1, EstimateStringTokens("abc"))
	assert.Equal(t, 1, EstimateStringTokens("abcd"))
	assert.Equal(t, 2, EstimateStringTokens("abcde"))
}
