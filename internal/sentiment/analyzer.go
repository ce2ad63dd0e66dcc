// Package sentiment classifies customer feedback comments.
package sentiment

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util/errorutil"
)

const systemPrompt = "You classify customer support feedback. " +
	"Answer with exactly one lowercase word: positive, neutral or negative."

// maxCommentRunes bounds the text sent to the model.
const maxCommentRunes = 2000

// OpenAIAnalyzer asks a chat model for a one-word classification.
type OpenAIAnalyzer struct {
	client *openai.Client
	model  string
}

// NewOpenAIAnalyzer builds an analyzer from config.
func NewOpenAIAnalyzer(cfg config.OpenAIConfig) *OpenAIAnalyzer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIAnalyzer{client: openai.NewClientWithConfig(clientCfg), model: model}
}

// Analyze classifies text.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, text string) (domain.Sentiment, error) {
	if runes := []rune(text); len(runes) > maxCommentRunes {
		text = string(runes[:maxCommentRunes])
	}
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: 0,
		MaxTokens:   3,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", apperrors.NewExternalServiceError("sentiment", err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.NewExternalServiceError("sentiment", fmt.Errorf("empty completion"))
	}
	return parseLabel(resp.Choices[0].Message.Content)
}

func parseLabel(raw string) (domain.Sentiment, error) {
	label := strings.ToLower(strings.Trim(strings.TrimSpace(raw), ".!\"'"))
	if s, ok := domain.ParseSentiment(label); ok {
		return s, nil
	}
	return "", apperrors.NewExternalServiceError("sentiment", fmt.Errorf("unexpected label %q", raw))
}

// Neutral is used when no model is configured.
type Neutral struct{}

// Analyze always reports neutral.
func (Neutral) Analyze(context.Context, string) (domain.Sentiment, error) {
	return domain.SentimentNeutral, nil
}
