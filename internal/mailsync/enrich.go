package mailsync

import (
	"context"
	"log"

	msgdomain "cochat-backend/internal/message/domain"
	messengerdomain "cochat-backend/internal/messenger/domain"
	"cochat-backend/pkg/ai"
)

// enrich never fails: an unreachable or confused analyzer yields a
// recommended message in the default category.
func (c *Cursor) enrich(ctx context.Context, acc *messengerdomain.LinkedAccount, rec IncomingRecord, pref *Preference) ai.Analysis {
	fallback := ai.Analysis{Recommended: true, Category: msgdomain.CategoryOthers}
	if c.analyzer == nil {
		return fallback
	}

	req := &ai.AnalysisRequest{
		UserID:     acc.UserID,
		SenderID:   rec.Sender,
		ReceiverID: rec.Recipient,
		Subject:    rec.Subject,
		Content:    rec.Body,
	}
	if pref != nil {
		req.Preferences = pref.Text
		req.PreferenceVector = pref.Vector
	}

	ectx, cancel := context.WithTimeout(ctx, c.enrichTimeout)
	defer cancel()

	result, err := c.analyzer.Analyze(ectx, req)
	if err != nil || result == nil {
		log.Printf("[Sync] enrichment failed for %s/%s, failing open: %v", acc.Provider, rec.ProviderMessageID, err)
		return fallback
	}
	if result.Category == "" {
		result.Category = msgdomain.CategoryOthers
	}
	return *result
}
