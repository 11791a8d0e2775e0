// Package identity loads the six user-editable markdown files that define
// a Komatachi entity's self, memory, and user context, and assembles them
// into the model's system prompt. Files are reloaded from disk on every
// turn — there is no caching, so edits made between turns take effect
// immediately.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Files holds the six optional identity slots. A nil pointer means the
// file was absent; any other read error propagates to the caller instead.
type Files struct {
	Soul     *string
	Identity *string
	User     *string
	Memory   *string
	Agents   *string
	Tools    *string
}

var fileNames = []string{"SOUL.md", "IDENTITY.md", "USER.md", "MEMORY.md", "AGENTS.md", "TOOLS.md"}

// Load reads the six fixed filenames from homeDir. A missing file yields a
// nil slot; any other I/O error is returned immediately.
func Load(homeDir string) (Files, error) {
	values := make([]*string, len(fileNames))
	for i, name := range fileNames {
		content, err := readOptional(filepath.Join(homeDir, name))
		if err != nil {
			return Files{}, err
		}
		values[i] = content
	}
	return Files{
		Soul:     values[0],
		Identity: values[1],
		User:     values[2],
		Memory:   values[3],
		Agents:   values[4],
		Tools:    values[5],
	}, nil
}

func readOptional(path string) (*string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	trimmed := strings.TrimSpace(string(data))
	return &trimmed, nil
}

// ToolSummary is the minimal shape the prompt assembler needs from a
// registered tool — name and description, nothing wire-specific.
type ToolSummary struct {
	Name        string
	Description string
}

// Runtime carries the values the prompt needs that aren't identity files.
type Runtime struct {
	CurrentTime time.Time
}

// BuildSystemPrompt assembles the system prompt in a fixed section order:
// SOUL+IDENTITY+About-the-User, Available-Tools+TOOLS.md, Current-Time,
// Memory, Guidelines. Sections are joined by a blank line; empty sections
// are omitted entirely.
func BuildSystemPrompt(files Files, tools []ToolSummary, runtime Runtime) string {
	var sections []string

	if s := identitySection(files); s != "" {
		sections = append(sections, s)
	}
	if s := toolsSection(files, tools); s != "" {
		sections = append(sections, s)
	}
	sections = append(sections, "## Current Time\n\n"+runtime.CurrentTime.UTC().Format(time.RFC3339))
	if files.Memory != nil && *files.Memory != "" {
		sections = append(sections, "## Memory\n\n"+*files.Memory)
	}
	if files.Agents != nil && *files.Agents != "" {
		sections = append(sections, "## Guidelines\n\n"+*files.Agents)
	}

	return strings.Join(sections, "\n\n")
}

func identitySection(files Files) string {
	var parts []string
	if files.Soul != nil && *files.Soul != "" {
		parts = append(parts, *files.Soul)
	}
	if files.Identity != nil && *files.Identity != "" {
		parts = append(parts, *files.Identity)
	}
	if files.User != nil && *files.User != "" {
		parts = append(parts, "## About the User\n\n"+*files.User)
	}
	return strings.Join(parts, "\n\n")
}

func toolsSection(files Files, tools []ToolSummary) string {
	hasTools := len(tools) > 0
	hasToolsFile := files.Tools != nil && *files.Tools != ""
	if !hasTools && !hasToolsFile {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Available Tools\n\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "- **%s**: %s\n", t.Name, t.Description)
	}
	if hasToolsFile {
		if hasTools {
			b.WriteString("\n")
		}
		b.WriteString(*files.Tools)
	}
	return strings.TrimRight(b.String(), "\n")
}
