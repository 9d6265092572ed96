package document

import (
	"fmt"
	"iter"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Chunk is a contiguous word window of a document's normalized text
type Chunk struct {
	Index     int    `json:"index"`
	StartWord int    `json:"start_word"`
	EndWord   int    `json:"end_word"`
	Content   string `json:"content"`
}

// Chunker splits text into overlapping fixed-size word windows
type Chunker struct {
	TargetWords  int
	OverlapWords int
}

// NewChunker validates the window sizes. Overlap must be smaller than the
// target so every chunk advances the offset.
func NewChunker(targetWords, overlapWords int) (Chunker, error) {
	if targetWords <= 0 {
		return Chunker{}, fmt.Errorf("chunk size must be positive, got %d", targetWords)
	}
	if overlapWords < 0 {
		return Chunker{}, fmt.Errorf("chunk overlap must not be negative, got %d", overlapWords)
	}
	if overlapWords >= targetWords {
		return Chunker{}, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlapWords, targetWords)
	}
	return Chunker{TargetWords: targetWords, OverlapWords: overlapWords}, nil
}

// Chunks returns a lazy sequence of chunks over text. Chunk i starts at word
// i*(TargetWords-OverlapWords). Ranging over the sequence again restarts it.
// Blank text yields no chunks.
func (c Chunker) Chunks(text string) iter.Seq2[int, Chunk] {
	return func(yield func(int, Chunk) bool) {
		words := strings.Fields(text)
		step := c.TargetWords - c.OverlapWords
		if step <= 0 {
			return
		}

		index := 0
		for start := 0; start < len(words); start += step {
			end := start + c.TargetWords
			if end > len(words) {
				end = len(words)
			}

			chunk := Chunk{
				Index:     index,
				StartWord: start,
				EndWord:   end,
				Content:   strings.Join(words[start:end], " "),
			}
			if !yield(index, chunk) {
				return
			}
			index++
		}
	}
}

// Normalize collapses every whitespace run to a single space and trims the ends
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Snippet returns the first n runes of text, followed by "..." when cut
func Snippet(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + "..."
}

// GetFileType determines the type of file based on extension
func GetFileType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return "pdf"
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp", ".gif", ".webp":
		return "image"
	case ".md", ".markdown":
		return "markdown"
	case ".txt", ".text":
		return "text"
	case ".csv":
		return "csv"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".xml":
		return "xml"
	case ".html", ".htm":
		return "html"
	default:
		return "unknown"
	}
}
