package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// RemoteAnalyzer calls the external analysis service's
// POST /analyze_and_filter endpoint.
type RemoteAnalyzer struct {
	baseURL    string
	httpClient *http.Client
}

func NewRemoteAnalyzer(baseURL string, httpClient *http.Client) *RemoteAnalyzer {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &RemoteAnalyzer{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

type remoteResponse struct {
	Recommended     *bool     `json:"recommended"`
	Category        string    `json:"category"`
	Summary         string    `json:"summary"`
	EmbeddingVector []float32 `json:"embedding_vector"`
}

func (r *RemoteAnalyzer) Analyze(ctx context.Context, req *AnalysisRequest) (*Analysis, error) {
	payload := *req
	if payload.PreferenceVector == nil {
		payload.PreferenceVector = []float32{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/analyze_and_filter", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("analyze_and_filter request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analyze_and_filter error (%d): %s", resp.StatusCode, string(respBody))
	}

	var out remoteResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	recommended := true
	if out.Recommended != nil {
		recommended = *out.Recommended
	}
	category := out.Category
	if category == "" {
		category = DefaultCategory
	}
	return &Analysis{
		Recommended:     recommended,
		Category:        category,
		Summary:         out.Summary,
		EmbeddingVector: out.EmbeddingVector,
	}, nil
}
