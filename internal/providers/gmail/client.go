// Package gmail adapts the Gmail API to the mailsync provider contract.
package gmail

import (
	"context"
	"fmt"
	"log"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"cochat-backend/internal/mailsync"
	gmailpkg "cochat-backend/pkg/gmail"
	"cochat-backend/pkg/mimetree"

	"google.golang.org/api/gmail/v1"
)

type Client struct {
	service *gmailpkg.Service
}

func NewClient(service *gmailpkg.Service) *Client {
	return &Client{service: service}
}

// FetchDelta lists messages added after the history ID since and fetches
// each one. A history ID too old for Gmail to replay yields an empty delta.
func (c *Client) FetchDelta(ctx context.Context, cred mailsync.Credential, since string) ([]mailsync.IncomingRecord, bool, error) {
	start, err := strconv.ParseUint(since, 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("invalid history id %q: %w", since, err)
	}

	srv, err := c.service.GetGmailService(ctx, cred.AccessToken)
	if err != nil {
		return nil, false, err
	}

	ids, err := gmailpkg.ListAddedMessages(ctx, srv, start)
	switch {
	case gmailpkg.IsUnauthorized(err):
		return nil, true, nil
	case gmailpkg.IsNotFound(err):
		log.Printf("[Gmail] history %d for %s is no longer available, resuming from the notification", start, cred.AccountID)
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("history list failed: %w", err)
	}

	records := make([]mailsync.IncomingRecord, 0, len(ids))
	for _, id := range ids {
		msg, err := gmailpkg.GetMessage(ctx, srv, id)
		switch {
		case gmailpkg.IsUnauthorized(err):
			return nil, true, nil
		case gmailpkg.IsNotFound(err):
			// deleted between the history listing and the fetch
			continue
		case err != nil:
			return nil, false, fmt.Errorf("message %s fetch failed: %w", id, err)
		}
		records = append(records, toRecord(msg, cred.AccountID))
	}
	return records, false, nil
}

func (c *Client) RefreshCredential(ctx context.Context, refreshToken string) (*mailsync.Credential, error) {
	token, err := c.service.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	cred := &mailsync.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		cred.Expiry = &expiry
	}
	return cred, nil
}

// MarkerBefore compares history IDs numerically.
func (c *Client) MarkerBefore(a, b string) bool {
	x, errA := strconv.ParseUint(a, 10, 64)
	y, errB := strconv.ParseUint(b, 10, 64)
	return errA == nil && errB == nil && x < y
}

func toRecord(msg *gmail.Message, accountEmail string) mailsync.IncomingRecord {
	rec := mailsync.IncomingRecord{
		ProviderMessageID: msg.Id,
		Labels:            msg.LabelIds,
		Recipient:         accountEmail,
	}
	if msg.InternalDate > 0 {
		rec.ReceivedAt = time.UnixMilli(msg.InternalDate)
	}
	if msg.Payload == nil {
		rec.Body = msg.Snippet
		return rec
	}

	headers := msg.Payload.Headers
	rec.Sender = address(gmailpkg.Header(headers, "From"))
	if to := address(gmailpkg.Header(headers, "To")); to != "" {
		rec.Recipient = to
	}
	if subject := gmailpkg.Header(headers, "Subject"); subject != "" {
		rec.Subject = &subject
	}

	rec.Body = mimetree.PlainText(gmailpkg.ToPart(msg.Payload))
	if rec.Body == "" {
		rec.Body = msg.Snippet
	}
	return rec
}

// address returns the first bare address of a header, or the header itself
// when it does not parse.
func address(header string) string {
	if header == "" {
		return ""
	}
	list, err := mail.ParseAddressList(header)
	if err != nil || len(list) == 0 {
		return strings.TrimSpace(header)
	}
	return strings.ToLower(list[0].Address)
}
