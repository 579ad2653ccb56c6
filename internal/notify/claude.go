package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const claudeDefaultModel = "claude-3-5-haiku-20241022"

// ClaudeConfig holds settings for the Claude analysis enricher.
type ClaudeConfig struct {
	APIKey string
	Model  string
}

// ClaudeProvider asks Claude for a short analysis of a change report
// and attaches it to the outgoing message. It delivers nothing itself;
// its value is the enrichment the other providers then carry. Env var
// ANTHROPIC_API_KEY takes precedence over the configured key.
type ClaudeProvider struct {
	client anthropic.Client
	model  anthropic.Model
	apiKey string
	log    *slog.Logger
}

// NewClaude creates the enricher. Available is false without a key.
func NewClaude(cfg ClaudeConfig, log *slog.Logger) *ClaudeProvider {
	if log == nil {
		log = slog.Default()
	}
	apiKey := cfg.APIKey
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	model := cfg.Model
	if model == "" {
		model = claudeDefaultModel
	}
	return &ClaudeProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
		apiKey: apiKey,
		log:    log,
	}
}

func (c *ClaudeProvider) Name() string { return "claude" }

func (c *ClaudeProvider) Available() bool { return c.apiKey != "" }

// Send is a no-op; the provider participates through Enrich only.
func (c *ClaudeProvider) Send(ctx context.Context, msg Message) bool { return true }

// Enrich appends a brief analysis to the message content and records
// it in Metadata["ai_analysis"]. On any API failure the original
// message comes back unchanged along with the error; the fan-out
// degrades rather than blocks.
func (c *ClaudeProvider) Enrich(ctx context.Context, msg Message) (Message, error) {
	prompt := fmt.Sprintf(`The following is a notification about grade changes for a student. In 2-3 sentences, summarize the overall trend (improving, slipping, or mixed) and point out anything a parent should follow up on. Be factual and brief; do not repeat the raw list.

%s

%s`, msg.Title, msg.Content)

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return msg, fmt.Errorf("failed to request analysis: %w", err)
	}
	if len(message.Content) == 0 {
		return msg, fmt.Errorf("unexpected response format: no content blocks")
	}
	content := message.Content[0]
	if content.Type != "text" {
		return msg, fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type)
	}

	analysis := content.Text
	out := msg
	out.Content = msg.Content + "\n\n--- AI Analysis ---\n" + analysis
	out.Metadata = make(map[string]string, len(msg.Metadata)+1)
	for k, v := range msg.Metadata {
		out.Metadata[k] = v
	}
	out.Metadata["ai_analysis"] = analysis
	return out, nil
}
