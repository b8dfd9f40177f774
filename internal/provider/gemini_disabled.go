//go:build nogemini

package provider

import (
	"repochat/internal/config"
	"repochat/internal/domain"
)

const geminiAvailable = false

func newGeminiCompleter(_ config.ProviderConfig, _ string) (domain.Completer, error) {
	return nil, geminiUnavailable("gemini")
}

func newGeminiEmbedder(_ config.ProviderConfig, _ string) (domain.Embedder, string, error) {
	return nil, "", geminiUnavailable("gemini")
}
