package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicOptions configures an Anthropic generator.
type AnthropicOptions struct {
	APIKey    string
	Model     string
	MaxTokens int64
	// Verses is the number of lines requested per turn.
	Verses int
	// RequestOptions are appended to the client options, e.g. a base URL in tests.
	RequestOptions []option.RequestOption
}

// Anthropic composes turns with the Anthropic Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	verses    int
	prompts   *Prompts
}

// NewAnthropic creates an Anthropic generator.
//
// Precondition: prompts must be non-nil; opts.Verses must be >= 1.
func NewAnthropic(opts AnthropicOptions, prompts *Prompts) *Anthropic {
	reqOpts := append([]option.RequestOption{option.WithAPIKey(opts.APIKey)}, opts.RequestOptions...)
	return &Anthropic{
		client:    anthropic.NewClient(reqOpts...),
		model:     anthropic.Model(opts.Model),
		maxTokens: opts.MaxTokens,
		verses:    opts.Verses,
		prompts:   prompts,
	}
}

// Generate asks the model for one turn and returns its first Verses lines.
func (a *Anthropic) Generate(ctx context.Context, req Request) ([]string, error) {
	system, user, err := a.prompts.Render(req, a.verses)
	if err != nil {
		return nil, err
	}

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
		Temperature: anthropic.Float(0.9),
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
			text.WriteByte('\n')
		}
	}
	return SplitVerses(text.String(), a.verses)
}
