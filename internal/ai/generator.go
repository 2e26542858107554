package ai

import (
	"context"
	"fmt"
	"time"
)

// Generator turns a prompt into answer text.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
	Name() string
}

type GeneratorConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	TopP        float64
	NumCtx      int
	Timeout     time.Duration
}

func NewGenerator(cfg GeneratorConfig) (Generator, error) {
	switch cfg.Provider {
	case "ollama", "":
		return NewOllamaClient(cfg), nil
	case "openai":
		return NewOpenAIGenerator(NewOpenAICompatibleClient(cfg.Timeout), ChatConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
