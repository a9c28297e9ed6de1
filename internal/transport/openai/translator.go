// Package openai wraps a hosted chat LLM behind the domain.Translator contract.
package openai

import (
	"context"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/snapdex/snapdex/internal/domain"
	"github.com/snapdex/snapdex/internal/metrics"
)

// Compile-time check: Translator implements domain.Translator.
var _ domain.Translator = (*Translator)(nil)

// translateInstruction steers the LLM toward the caption-style phrasing the
// encoder was trained on.
const translateInstruction = "You rewrite image search queries. " +
	"Turn the user's conversational request into a short caption-style phrase, " +
	"the kind that would appear under a stock photo. " +
	"Reply with the rewritten phrase only, no quotes, no explanations."

// Translator rewrites conversational queries via chat completions.
// It never fails a search: any API error or timeout degrades to the original
// query with Applied=false, and the degradation is logged.
type Translator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// Config holds the translation provider settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewTranslator creates an OpenAI-compatible query translator.
func NewTranslator(cfg *Config) *Translator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Translator{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: timeout,
		logger:  logger,
	}
}

// Translate rewrites the query into a caption-style phrase. On any error the
// original query comes back unchanged with Applied=false.
func (t *Translator) Translate(ctx context.Context, query string) domain.Translation {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: translateInstruction},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
		MaxTokens:   80,
		Temperature: 0,
	})
	if err != nil {
		t.logger.Warn("query translation degraded to original query",
			zap.String("query", query),
			zap.Error(err),
		)
		metrics.TranslationsTotal.WithLabelValues("fallback").Inc()
		return domain.Translation{Query: query, Applied: false}
	}

	rewritten := ""
	if len(resp.Choices) > 0 {
		rewritten = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	if rewritten == "" {
		t.logger.Warn("query translation returned empty rewrite", zap.String("query", query))
		metrics.TranslationsTotal.WithLabelValues("fallback").Inc()
		return domain.Translation{Query: query, Applied: false}
	}

	metrics.TranslationsTotal.WithLabelValues("applied").Inc()
	return domain.Translation{Query: rewritten, Applied: true}
}
