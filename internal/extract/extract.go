// Package extract turns uploaded files into plain text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUnsupportedFormat is returned for file types with no extractor.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrPDFToolNotFound is returned when pdftotext is not installed.
	ErrPDFToolNotFound = errors.New("pdftotext not found in PATH (install poppler-utils)")
)

// CommandRunner runs an external program and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, ErrPDFToolNotFound
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Extractor implements domain.Extractor for plain text, markdown and PDF.
type Extractor struct {
	runner CommandRunner
}

func New() *Extractor {
	return &Extractor{runner: execRunner{}}
}

// NewWithRunner uses runner instead of executing pdftotext directly.
func NewWithRunner(runner CommandRunner) *Extractor {
	return &Extractor{runner: runner}
}

// Supported reports whether name has an extension Extract can handle.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".pdf":
		return true
	}
	return false
}

// Extract chooses the extractor by file extension.
func (e *Extractor) Extract(ctx context.Context, name string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("extract %s: not valid UTF-8", name)
		}
		return string(data), nil
	case ".pdf":
		return e.pdf(ctx, name, data)
	default:
		return "", fmt.Errorf("extract %s: %w", name, ErrUnsupportedFormat)
	}
}

func (e *Extractor) pdf(ctx context.Context, name string, data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "echodoc-*.pdf")
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("extract %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("extract %s: %w", name, err)
	}

	out, err := e.runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", tmp.Name(), "-")
	if err != nil {
		if errors.Is(err, ErrPDFToolNotFound) {
			return "", err
		}
		return "", fmt.Errorf("extract %s: pdftotext failed: %w", name, err)
	}
	// pdftotext separates pages with form feeds.
	return strings.ReplaceAll(string(out), "\f", "\n"), nil
}
