// Package editor captures post text with the user's $EDITOR.
package editor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// EnvEditor runs $EDITOR (fallback: "vi") on a temp file.
type EnvEditor struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewEnvEditor creates an EnvEditor attached to the process terminal.
func NewEnvEditor() *EnvEditor {
	return &EnvEditor{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

const instructionComment = `<!--
rantfeed: write your post below.

- SAVE and EXIT to publish (e.g., :wq in vi).
- Leaving the post empty cancels.
-->

`

// Compose opens the editor on content and returns what the user saved,
// without the instruction comment. An empty result means the user
// cancelled.
func (e *EnvEditor) Compose(ctx context.Context, content string) (string, error) {
	cmd, path, err := e.Cmd(ctx, content)
	if err != nil {
		return "", err
	}
	if err := cmd.Run(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("running editor: %w", err)
	}
	return e.ReadContent(path)
}

// Cmd prepares the editor command and the temp file it edits.
func (e *EnvEditor) Cmd(ctx context.Context, content string) (*exec.Cmd, string, error) {
	name := strings.TrimSpace(os.Getenv("EDITOR"))
	if name == "" {
		name = "vi"
	}
	args := strings.Fields(name)

	tmpFile, err := os.CreateTemp("", "rantfeed-*.md")
	if err != nil {
		return nil, "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer tmpFile.Close()

	if _, err := tmpFile.WriteString(instructionComment + content); err != nil {
		os.Remove(tmpPath)
		return nil, "", fmt.Errorf("writing to temp file: %w", err)
	}

	cmd := exec.CommandContext(ctx, args[0], append(args[1:], tmpPath)...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = e.Stdin, e.Stdout, e.Stderr
	return cmd, tmpPath, nil
}

// ReadContent reads the temp file, strips the instruction comment and
// surrounding whitespace, and removes the file.
func (e *EnvEditor) ReadContent(path string) (string, error) {
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading temp file: %w", err)
	}

	content := string(data)
	if idx := strings.Index(content, "-->"); idx != -1 {
		content = content[idx+3:]
	}
	return strings.TrimSpace(content), nil
}
