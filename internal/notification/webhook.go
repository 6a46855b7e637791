package notification

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"

	messengerdomain "cochat-backend/internal/messenger/domain"
	igprovider "cochat-backend/internal/providers/instagram"
	igpkg "cochat-backend/pkg/instagram"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives provider push deliveries. Providers retry on any
// non-2xx status, so every delivery is answered with 200.
type WebhookHandler struct {
	syncer               Syncer
	instagramVerifyToken string
	instagramAppSecret   string
}

func NewWebhookHandler(syncer Syncer, instagramVerifyToken, instagramAppSecret string) *WebhookHandler {
	return &WebhookHandler{
		syncer:               syncer,
		instagramVerifyToken: instagramVerifyToken,
		instagramAppSecret:   instagramAppSecret,
	}
}

// GmailPush handles Pub/Sub push deliveries of Gmail notifications.
func (h *WebhookHandler) GmailPush(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": StatusIgnored})
		return
	}
	n, err := DecodePushEnvelope(body)
	if err != nil {
		log.Printf("[Webhook] Ignoring gmail push: %v", err)
		c.JSON(http.StatusOK, gin.H{"status": StatusIgnored})
		return
	}

	// the pass must finish even if Pub/Sub stops waiting for the response
	ctx := context.WithoutCancel(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": handleGmail(ctx, h.syncer, n)})
}

// InstagramVerify answers the webhook subscription handshake.
func (h *WebhookHandler) InstagramVerify(c *gin.Context) {
	challenge, ok := igpkg.VerifyChallenge(c.Query("hub.mode"), c.Query("hub.verify_token"), c.Query("hub.challenge"), h.instagramVerifyToken)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "webhook verification failed"})
		return
	}
	c.String(http.StatusOK, challenge)
}

// InstagramWebhook ingests the direct messages carried by a delivery.
func (h *WebhookHandler) InstagramWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": StatusIgnored})
		return
	}
	if h.instagramAppSecret != "" && !igpkg.ValidSignature(body, c.GetHeader("X-Hub-Signature-256"), h.instagramAppSecret) {
		log.Printf("[Webhook] Ignoring instagram delivery with a bad signature")
		c.JSON(http.StatusOK, gin.H{"status": StatusIgnored})
		return
	}

	var payload igpkg.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Printf("[Webhook] Ignoring instagram delivery: %v", err)
		c.JSON(http.StatusOK, gin.H{"status": StatusIgnored})
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	accepted := 0
	for accountID, records := range igprovider.Records(payload.Messages()) {
		result, err := h.syncer.IngestRecords(ctx, string(messengerdomain.ProviderInstagram), accountID, records)
		if err != nil {
			log.Printf("[Webhook] Ingest for instagram account %s failed: %v", accountID, err)
		}
		if result != nil {
			accepted += result.Accepted
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "received", "accepted": accepted})
}
