package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	"github.com/0xcro3dile/localrag-agent/internal/domain/ports"
)

// DefaultMaxChars bounds the text returned for one file.
const DefaultMaxChars = 4000

// Extractor implements ports.TextExtractor on top of a DocumentLoader.
type Extractor struct {
	loader   ports.DocumentLoader
	maxChars int
}

// NewExtractor creates an extractor returning at most maxChars characters.
func NewExtractor(loader ports.DocumentLoader, maxChars int) *Extractor {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Extractor{loader: loader, maxChars: maxChars}
}

// Extract returns the leading text of the file at path.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	doc, err := e.loader.Load(ctx, path)
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", path, asFileRead(err))
	}
	text := strings.TrimSpace(doc.Content)
	if text == "" {
		return "", fmt.Errorf("extracting %s: no text: %w", path, entities.ErrFileRead)
	}
	if r := []rune(text); len(r) > e.maxChars {
		text = string(r[:e.maxChars])
	}
	return text, nil
}

func asFileRead(err error) error {
	if errors.Is(err, entities.ErrFileRead) {
		return err
	}
	return fmt.Errorf("%v: %w", err, entities.ErrFileRead)
}
