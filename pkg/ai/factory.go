package ai

import (
	"fmt"
	"net/http"
)

type Config struct {
	Provider ProviderType

	// RemoteURL is the base URL of the analysis service.
	RemoteURL string

	GeminiAPIKey string

	OllamaBaseURL string
	OllamaModel   string
}

// NewAnalyzer builds the configured backend. ProviderAuto chains every
// configured backend: remote service, then Gemini, then Ollama.
func NewAnalyzer(cfg Config) (Analyzer, error) {
	switch cfg.Provider {
	case ProviderRemote:
		if cfg.RemoteURL == "" {
			return nil, fmt.Errorf("LLM_SERVER_URL is required for remote provider")
		}
		return NewRemoteAnalyzer(cfg.RemoteURL, http.DefaultClient), nil

	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for Gemini provider")
		}
		return NewGeminiAnalyzer(cfg.GeminiAPIKey), nil

	case ProviderOllama:
		return NewOllamaAnalyzer(cfg.OllamaBaseURL, cfg.OllamaModel), nil

	default:
		chain := NewFallbackAnalyzer()
		if cfg.RemoteURL != "" {
			chain.Add("remote", NewRemoteAnalyzer(cfg.RemoteURL, http.DefaultClient))
		}
		if cfg.GeminiAPIKey != "" {
			chain.Add("gemini", NewGeminiAnalyzer(cfg.GeminiAPIKey))
		}
		if cfg.OllamaBaseURL != "" {
			chain.Add("ollama", NewOllamaAnalyzer(cfg.OllamaBaseURL, cfg.OllamaModel))
		}
		if chain.Len() == 0 {
			return nil, fmt.Errorf("no AI provider configured")
		}
		return chain, nil
	}
}
