// Package promptfile stores named prompts as files on disk. Accepting a
// prompt-improvement task overwrites the named prompt with the proposed
// text.
package promptfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Writer persists prompts under a single directory, one file per prompt
// name.
type Writer struct {
	dir string
}

// NewWriter creates a prompt writer rooted at dir, creating the
// directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("prompt directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create prompt directory: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// WritePrompt overwrites the named prompt with the given text. The write
// goes through a temp file and rename so a crash never leaves a
// half-written prompt.
func (w *Writer) WritePrompt(ctx context.Context, name, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("prompt name cannot be empty")
	}
	// Prompt names are identifiers, not paths.
	if strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return fmt.Errorf("invalid prompt name %q", name)
	}

	target := filepath.Join(w.dir, name+".md")

	tmp, err := os.CreateTemp(w.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp prompt file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write prompt %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to flush prompt %q: %w", name, err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace prompt %q: %w", name, err)
	}

	return nil
}
