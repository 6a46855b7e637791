package instagram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// WebhookPayload is the body of an Instagram webhook POST. Messages arrive
// either under entry.messaging or, for dashboard test events, entry.changes.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID        string         `json:"id"`
	Time      json.Number    `json:"time"`
	Messaging []MessageEvent `json:"messaging"`
	Changes   []Change       `json:"changes"`
}

type Change struct {
	Field string       `json:"field"`
	Value MessageEvent `json:"value"`
}

type MessageEvent struct {
	Sender    Participant `json:"sender"`
	Recipient Participant `json:"recipient"`
	Timestamp json.Number `json:"timestamp"`
	Message   *struct {
		MID    string `json:"mid"`
		Text   string `json:"text"`
		IsEcho bool   `json:"is_echo"`
	} `json:"message"`
}

type Participant struct {
	ID string `json:"id"`
}

// DirectMessage is one text message from a webhook delivery. AccountID is the
// linked professional account the message belongs to.
type DirectMessage struct {
	AccountID string
	MID       string
	SenderID  string
	Recipient string
	Text      string
	Echo      bool
	SentAt    time.Time
}

// Messages extracts the direct messages of a payload in delivery order.
// Events that carry no message (reads, reactions) are skipped.
func (p *WebhookPayload) Messages() []DirectMessage {
	var out []DirectMessage
	for _, entry := range p.Entry {
		for _, ev := range entry.Messaging {
			if dm, ok := toDirectMessage(ev); ok {
				out = append(out, dm)
			}
		}
		for _, ch := range entry.Changes {
			if ch.Field != "messages" {
				continue
			}
			if dm, ok := toDirectMessage(ch.Value); ok {
				out = append(out, dm)
			}
		}
	}
	return out
}

func toDirectMessage(ev MessageEvent) (DirectMessage, bool) {
	if ev.Message == nil || ev.Recipient.ID == "" || ev.Sender.ID == "" {
		return DirectMessage{}, false
	}
	dm := DirectMessage{
		AccountID: ev.Recipient.ID,
		MID:       ev.Message.MID,
		SenderID:  ev.Sender.ID,
		Recipient: ev.Recipient.ID,
		Text:      ev.Message.Text,
		Echo:      ev.Message.IsEcho,
		SentAt:    parseTimestamp(ev.Timestamp),
	}
	if dm.Echo {
		dm.AccountID = ev.Sender.ID
	}
	if dm.MID == "" {
		dm.MID = dm.SenderID + "-" + string(ev.Timestamp)
	}
	return dm, true
}

// parseTimestamp accepts epoch milliseconds or seconds.
func parseTimestamp(n json.Number) time.Time {
	v, err := strconv.ParseInt(strings.TrimSpace(string(n)), 10, 64)
	if err != nil || v <= 0 {
		return time.Now()
	}
	if v < 1e12 {
		return time.Unix(v, 0)
	}
	return time.UnixMilli(v)
}

// VerifyChallenge answers the subscription handshake. ok is false when the
// request does not carry our verify token.
func VerifyChallenge(mode, token, challenge, verifyToken string) (string, bool) {
	if mode != "subscribe" || verifyToken == "" || !hmac.Equal([]byte(token), []byte(verifyToken)) {
		return "", false
	}
	return challenge, true
}

// ValidSignature checks the X-Hub-Signature-256 header against the app secret.
func ValidSignature(body []byte, header, appSecret string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(expected))
}
