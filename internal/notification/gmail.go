package notification

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"cochat-backend/internal/mailsync"
	messengerdomain "cochat-backend/internal/messenger/domain"
)

// StatusIgnored is reported for payloads that cannot be decoded.
const StatusIgnored = "ignored"

var ErrMalformedNotification = errors.New("malformed gmail notification")

// Syncer runs sync passes; *mailsync.Cursor implements it.
type Syncer interface {
	HandleNotification(ctx context.Context, provider, providerAccountID, marker string) (*mailsync.Result, error)
	IngestRecords(ctx context.Context, provider, providerAccountID string, records []mailsync.IncomingRecord) (*mailsync.Result, error)
}

// GmailNotification is the payload Gmail publishes when a watched mailbox changes.
type GmailNotification struct {
	EmailAddress string
	HistoryID    string
}

// PushEnvelope is the body of a Pub/Sub push request.
type PushEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// DecodePushEnvelope extracts the Gmail notification from a Pub/Sub push body.
func DecodePushEnvelope(body []byte) (*GmailNotification, error) {
	var env PushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	data, err := decodeBase64(env.Message.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	return DecodeGmailNotification(data)
}

// DecodeGmailNotification parses the JSON Gmail publishes. historyId may be
// a number or a string.
func DecodeGmailNotification(data []byte) (*GmailNotification, error) {
	var raw struct {
		EmailAddress string      `json:"emailAddress"`
		HistoryID    json.Number `json:"historyId"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}

	email := strings.ToLower(strings.TrimSpace(raw.EmailAddress))
	history := strings.TrimSpace(raw.HistoryID.String())
	if email == "" || history == "" {
		return nil, fmt.Errorf("%w: missing emailAddress or historyId", ErrMalformedNotification)
	}
	if _, err := strconv.ParseUint(history, 10, 64); err != nil {
		return nil, fmt.Errorf("%w: historyId %q", ErrMalformedNotification, history)
	}
	return &GmailNotification{EmailAddress: email, HistoryID: history}, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty data")
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("data is not base64")
}

// handleGmail runs the sync pass for one notification and reports its status.
func handleGmail(ctx context.Context, syncer Syncer, n *GmailNotification) string {
	result, err := syncer.HandleNotification(ctx, string(messengerdomain.ProviderGmail), n.EmailAddress, n.HistoryID)
	if err != nil {
		log.Printf("[PubSub] Sync for %s at %s failed: %v", n.EmailAddress, n.HistoryID, err)
	}
	if result == nil {
		return "error"
	}
	return string(result.Outcome)
}
