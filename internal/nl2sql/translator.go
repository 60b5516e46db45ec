package nl2sql

import (
	"context"
	"fmt"
	"time"

	"github.com/nlsql/nlsql/internal/config"
)

const (
	ProviderHuggingFace = config.ProviderHuggingFace
	ProviderOpenAI      = config.ProviderOpenAI
)

type Request struct {
	NaturalLanguage string `json:"natural_language"`
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Translator produces the single most probable SQL statement for a request.
type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

type Config struct {
	Provider  string
	BaseURL   string
	APIKey    string
	Model     string
	MaxLength int
	Timeout   time.Duration
}

func NewTranslator(cfg Config) (Translator, error) {
	switch cfg.Provider {
	case ProviderHuggingFace, "":
		return NewHuggingFaceTranslator(HuggingFaceConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxLength: cfg.MaxLength,
			Timeout:   cfg.Timeout,
		})
	case ProviderOpenAI:
		return NewOpenAITranslator(OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxLength,
			Timeout:   cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}
}
