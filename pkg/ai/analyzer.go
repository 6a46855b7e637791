package ai

import (
	"context"
	"errors"
)

// ProviderType selects the analysis backend.
type ProviderType string

const (
	ProviderRemote ProviderType = "remote"
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)

// Categories the analysis backends may assign.
var Categories = []string{"deadline", "payment", "public", "office", "others"}

const DefaultCategory = "others"

var ErrMalformedResponse = errors.New("ai: malformed analysis response")

type AnalysisRequest struct {
	UserID           string    `json:"cochat_id"`
	SenderID         string    `json:"sender_id"`
	ReceiverID       string    `json:"receiver_id"`
	Subject          *string   `json:"subject"`
	Content          string    `json:"content"`
	Preferences      string    `json:"preferences,omitempty"`
	PreferenceVector []float32 `json:"preference_vector"`
}

type Analysis struct {
	Recommended     bool
	Category        string
	Summary         string
	EmbeddingVector []float32
}

// Analyzer classifies one message against its owner's preference profile.
type Analyzer interface {
	Analyze(ctx context.Context, req *AnalysisRequest) (*Analysis, error)
}

func normalizeCategory(category string) string {
	for _, c := range Categories {
		if c == category {
			return c
		}
	}
	return DefaultCategory
}
