// Package tools is the registry/dispatch contract for model-invoked tools.
// Tool implementations themselves are out of scope — this package only
// defines the wire shape, the flat ordered lookup, and the
// panic/error-to-tagged-result conversion every handler invocation goes
// through.
package tools

import (
	"fmt"
)

// Definition is a single tool's contract. The sequence a registry returns
// them in *is* the dispatch policy — FindTool scans it in order.
type Definition struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     func(input map[string]any) (Result, error)
}

// Result is the host-visible outcome of a tool invocation: either ok with
// string content, or err with an error string. Never both.
type Result struct {
	OK      bool
	Content string
	Error   string
}

// Ok builds a successful Result.
func Ok(content string) Result { return Result{OK: true, Content: content} }

// Err builds a failed Result.
func Err(message string) Result { return Result{OK: false, Error: message} }

// wireDefinition is the snake_case shape exported to the model API.
type wireDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ExportForAPI maps a definition list to its wire form, dropping handlers.
func ExportForAPI(defs []Definition) []wireDefinition {
	out := make([]wireDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, wireDefinition{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema})
	}
	return out
}

// FindTool does a case-sensitive linear scan over defs and returns the
// first definition whose Name matches. Later duplicates are unreachable —
// the sequence is the policy.
func FindTool(defs []Definition, name string) (Definition, bool) {
	for _, d := range defs {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}

// ExecuteTool invokes t's handler with input, converting any panic the
// handler raises into an error Result instead of propagating it. The loop
// must never see an unhandled panic from a tool.
func ExecuteTool(t Definition, input map[string]any) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Err(fmt.Sprintf("%v", r))
		}
	}()

	r, err := t.Handler(input)
	if err != nil {
		return Err(err.Error())
	}
	return r
}
