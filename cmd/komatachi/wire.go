package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/linustan/komatachi/pkg/komatachierr"
	"github.com/linustan/komatachi/pkg/turn"
)

// wireMessage is the envelope for every line on stdin or stdout. Only the
// fields relevant to Type are populated on the way out; Text carries both
// an input utterance (in) and an output reply (out).
type wireMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

// runWireProtocol implements the newline-delimited JSON protocol: read
// {"type":"input","text":"…"} lines from in, call loop.ProcessTurn,
// write {"type":"output",...} or {"type":"error",...} lines to out. A
// malformed input line is reported as an error and the loop continues —
// only stdin EOF, a stdin read error or a write failure ends the session.
func runWireProtocol(ctx context.Context, in io.Reader, out io.Writer, loop *turn.Loop) error {
	enc := json.NewEncoder(out)

	if err := enc.Encode(wireMessage{Type: "ready"}); err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var msg wireMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			if encErr := enc.Encode(wireMessage{Type: "error", Message: "malformed input: " + err.Error()}); encErr != nil {
				return encErr
			}
			continue
		}

		if msg.Type != "input" {
			if err := enc.Encode(wireMessage{Type: "error", Message: "unknown message type: " + msg.Type}); err != nil {
				return err
			}
			continue
		}

		reply, err := loop.ProcessTurn(ctx, msg.Text)
		if err != nil {
			if encErr := enc.Encode(wireMessage{Type: "error", Message: describeTurnError(err)}); encErr != nil {
				return encErr
			}
			continue
		}

		if err := enc.Encode(wireMessage{Type: "output", Text: reply}); err != nil {
			return err
		}
	}

	return scanner.Err()
}

// describeTurnError renders a komatachierr.Error's kind alongside its
// message so the host can distinguish e.g. a budget-exhaustion from a
// model outage without parsing prose.
func describeTurnError(err error) string {
	for _, kind := range []komatachierr.Kind{
		komatachierr.ModelCallError,
		komatachierr.TokenBudgetExhausted,
		komatachierr.CompactionExhausted,
		komatachierr.TurnBudgetExhausted,
		komatachierr.InputTooLarge,
	} {
		if komatachierr.Is(err, kind) {
			return fmt.Sprintf("[%s] %s", kind, err.Error())
		}
	}
	return err.Error()
}

func openStdio() (io.Reader, io.Writer) {
	return os.Stdin, os.Stdout
}
