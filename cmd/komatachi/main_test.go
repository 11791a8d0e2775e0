package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/linustan/komatachi/pkg/conversation"
	"github.com/linustan/komatachi/pkg/storage"
	"github.com/linustan/komatachi/pkg/tools"
	"github.com/linustan/komatachi/pkg/turn"
)

// newStubLoop builds a turn.Loop over a freshly initialized conversation in
// a temp directory, with the given ModelFunc standing in for the network.
func newStubLoop(t *testing.T, model turn.ModelFunc) *turn.Loop {
	t.Helper()

	store := storage.New(t.TempDir())
	conv, err := conversation.New(store, "conversation")
	require.NoError(t, err)
	require.NoError(t, conv.Initialize(nil))

	return &turn.Loop{
		Conversation:  conv,
		HomeDir:       t.TempDir(),
		Tools:         []tools.Definition{},
		Model:         model,
		ModelName:     "claude-test",
		MaxTokens:     1024,
		ContextWindow: 200000,
	}
}
