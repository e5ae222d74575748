// Package policy turns an internal policy document into a compliance checklist.
package policy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"echodoc/internal/domain"
)

const promptPrefix = "Based on the internal policy document below, create a list of specific, testable conditions " +
	"that a contract must meet to be compliant. Format your response ONLY as a bullet-point list " +
	"starting each line with '- '. Do not include any other text or explanations.\n\n"

// bulletChars are stripped from the start of every checklist line.
const bulletChars = "•-*0123456789. "

// ErrEmptyPolicy is returned for a policy without any text.
var ErrEmptyPolicy = errors.New("policy document has no text")

type Builder struct {
	completer domain.Completer
}

func NewBuilder(completer domain.Completer) *Builder {
	return &Builder{completer: completer}
}

// Checklist asks the model for testable compliance conditions.
func (b *Builder) Checklist(ctx context.Context, policyText string) ([]string, error) {
	if strings.TrimSpace(policyText) == "" {
		return nil, ErrEmptyPolicy
	}
	reply, err := b.completer.Complete(ctx, []domain.Turn{
		{Role: domain.RoleUser, Content: promptPrefix + policyText},
	})
	if err != nil {
		return nil, fmt.Errorf("policy: checklist: %w", err)
	}
	return ParseChecklist(reply), nil
}

// ParseChecklist splits a bullet list into items, dropping blank lines and
// leading bullets or numbering.
func ParseChecklist(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimLeft(strings.TrimSpace(line), bulletChars)
		if line != "" {
			items = append(items, line)
		}
	}
	return items
}

// WriteChecklist stores items as a "- " bullet list at path.
func WriteChecklist(path string, items []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var b strings.Builder
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
