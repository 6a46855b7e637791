package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

const analysisPrompt = `You are an assistant that triages incoming messages for one user.
Tasks:
1. Summarize the message in at most two short sentences, in the message's language.
2. Classify it into exactly one category: "deadline", "payment", "public", "office", "others".
3. Decide whether the user should be notified, given their preferences. Default to true when unsure.

User preferences:
%s

Message:
Sender: %s
Subject: %s
Content:
%s

Respond with JSON only:
{"summary": "...", "category": "...", "recommended": true}`

func buildPrompt(req *AnalysisRequest) string {
	subject := ""
	if req.Subject != nil {
		subject = *req.Subject
	}
	prefs := req.Preferences
	if strings.TrimSpace(prefs) == "" {
		prefs = "(none)"
	}
	content := req.Content
	if len(content) > 8000 {
		content = content[:8000]
	}
	return fmt.Sprintf(analysisPrompt, prefs, req.SenderID, subject, content)
}

// parseModelOutput pulls the first JSON object out of free-form model text.
func parseModelOutput(text string) (*Analysis, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, ErrMalformedResponse
	}

	var out struct {
		Summary     string `json:"summary"`
		Category    string `json:"category"`
		Recommended *bool  `json:"recommended"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	recommended := true
	if out.Recommended != nil {
		recommended = *out.Recommended
	}
	return &Analysis{
		Recommended: recommended,
		Category:    normalizeCategory(strings.ToLower(strings.TrimSpace(out.Category))),
		Summary:     strings.TrimSpace(out.Summary),
	}, nil
}
