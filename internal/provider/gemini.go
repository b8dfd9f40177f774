//go:build !nogemini

package provider

import (
	"context"

	"repochat/internal/config"
	"repochat/internal/domain"
	embedgemini "repochat/internal/embedding/gemini"
	llmgemini "repochat/internal/llm/gemini"
)

const geminiAvailable = true

func newGeminiCompleter(pc config.ProviderConfig, key string) (domain.Completer, error) {
	return llmgemini.NewClient(context.Background(), llmgemini.Config{
		APIKey:  key,
		BaseURL: pc.BaseURL,
		Model:   pc.Model,
	})
}

func newGeminiEmbedder(pc config.ProviderConfig, key string) (domain.Embedder, string, error) {
	e, err := embedgemini.NewClient(context.Background(), llmgemini.Config{
		APIKey:  key,
		BaseURL: pc.BaseURL,
		Model:   pc.EmbeddingModel,
	})
	if err != nil {
		return nil, "", err
	}
	return e, e.Model(), nil
}
