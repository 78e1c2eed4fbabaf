// Package generator composes battle turns from participant personas.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/rhymeduel/internal/config"
)

// ErrShortResponse is returned when a model answers with fewer lines than requested.
var ErrShortResponse = errors.New("generator response too short")

// Request describes the turn to compose.
type Request struct {
	// Seat is the 1-based seat the turn belongs to.
	Seat int
	// Round is the 1-based round the turn belongs to.
	Round           int
	Payload         json.RawMessage
	OpponentPayload json.RawMessage
	// PriorContent is the opponent's last turn, empty when opening.
	PriorContent []string
}

// Generator composes the content units of one turn.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]string, error)
}

// New builds the configured generator wrapped in a Resilient fallback.
//
// Precondition: cfg has passed config validation; logger must be non-nil.
func New(cfg config.GeneratorConfig, logger *zap.Logger) (Generator, error) {
	prompts, err := LoadPrompts(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}

	var inner Generator
	switch cfg.Provider {
	case "anthropic":
		inner = NewAnthropic(AnthropicOptions{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Verses:    cfg.Verses,
		}, prompts)
	case "static", "":
		inner = NewStatic(prompts.Fallback)
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}

	logger.Info("content generator configured",
		zap.String("provider", cfg.Provider),
		zap.Int("verses", cfg.Verses),
	)
	return NewResilient(inner, cfg.Timeout, prompts.Fallback, logger), nil
}

// SplitVerses returns the first n non-blank lines of text, trimmed.
//
// Postcondition: Returns exactly n lines, or an error wrapping ErrShortResponse.
func SplitVerses(text string, n int) ([]string, error) {
	lines := make([]string, 0, n)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == n {
			return lines, nil
		}
	}
	return nil, fmt.Errorf("%w: got %d lines, want %d", ErrShortResponse, len(lines), n)
}
