// Package extract pulls plain text out of documents: text files directly, images through
// tesseract and PDFs through pdftotext.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"unicode/utf8"

	"docsentry/internal/document"
	"docsentry/internal/logger"
)

var (
	// ErrExtraction reports that the file could not be read or the external tool failed
	ErrExtraction = errors.New("text extraction failed")
	// ErrNoText reports that extraction succeeded but produced only whitespace
	ErrNoText = errors.New("no text extracted")
)

// Extractor returns the text content of the file at path
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Runner executes an external command and returns its stdout
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command with os/exec, folding stderr into the error
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// PlainText reads UTF-8 text files
type PlainText struct{}

func (PlainText) Extract(_ context.Context, path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read file %s: %v", ErrExtraction, path, err)
	}
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%w: file %s is not valid UTF-8 text", ErrExtraction, path)
	}
	return nonBlank(string(content), path)
}

// Tesseract OCRs images with the tesseract binary
type Tesseract struct {
	Path string
	Args []string
	Run  Runner
}

func (t Tesseract) Extract(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	args := append([]string{path, "stdout"}, t.Args...)
	out, err := runner(t.Run)(ctx, binary(t.Path, "tesseract"), args...)
	if err != nil {
		return "", fmt.Errorf("%w: ocr of %s: %v", ErrExtraction, path, err)
	}
	return nonBlank(string(out), path)
}

// PDFText reads the text layer of a PDF with pdftotext
type PDFText struct {
	Path string
	Run  Runner
}

func (p PDFText) Extract(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	out, err := runner(p.Run)(ctx, binary(p.Path, "pdftotext"), "-layout", path, "-")
	if err != nil {
		return "", fmt.Errorf("%w: pdftotext of %s: %v", ErrExtraction, path, err)
	}
	return nonBlank(string(out), path)
}

// Auto picks an extractor from the file extension
type Auto struct {
	Text  Extractor
	Image Extractor
	PDF   Extractor
}

// NewAuto wires the three extractors around the given tool paths
func NewAuto(tesseractPath string, tesseractArgs []string, pdftotextPath string) *Auto {
	return &Auto{
		Text:  PlainText{},
		Image: Tesseract{Path: tesseractPath, Args: tesseractArgs},
		PDF:   PDFText{Path: pdftotextPath},
	}
}

func (a *Auto) Extract(ctx context.Context, path string) (string, error) {
	ctx = logger.WithContext(ctx, logger.ComponentKey, "extract")
	kind := document.GetFileType(path)

	var ex Extractor
	switch kind {
	case "pdf":
		ex = a.PDF
	case "image":
		ex = a.Image
	default:
		ex = a.Text
	}
	if ex == nil {
		return "", fmt.Errorf("%w: no extractor for %s files", ErrExtraction, kind)
	}

	text, err := ex.Extract(ctx, path)
	if err != nil {
		logger.Warn(ctx, "extraction failed", "path", path, "kind", kind, "error", err.Error())
		return "", err
	}
	logger.Debug(ctx, "extracted text", "path", path, "kind", kind, "chars", utf8.RuneCountInString(text))
	return text, nil
}

func nonBlank(text, path string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s", ErrNoText, path)
	}
	return text, nil
}

func runner(r Runner) Runner {
	if r == nil {
		return ExecRunner
	}
	return r
}

func binary(configured, fallback string) string {
	if configured == "" {
		return fallback
	}
	return configured
}
