package app

import (
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/auth"
	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/sentiment"
	"github.com/spec-kit/helpdesk-engine/internal/service"
)

func newFeedbackTokens(cfg *config.Config) *auth.FeedbackTokenManager {
	return auth.NewFeedbackTokenManager(cfg.Auth.FeedbackTokenSecret, cfg.Auth.FeedbackTokenTTL())
}

// newSentimentAnalyzer falls back to a neutral classifier without an API key.
func newSentimentAnalyzer(cfg *config.Config, logger *zap.Logger) service.SentimentAnalyzer {
	if cfg.OpenAI.APIKey == "" {
		logger.Warn("OPENAI_API_KEY not set; feedback sentiment defaults to neutral")
		return sentiment.Neutral{}
	}
	return sentiment.NewOpenAIAnalyzer(cfg.OpenAI)
}
