// Package imap adapts plain IMAP mailboxes to the mailsync provider contract.
package imap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"cochat-backend/internal/mailsync"
	imappkg "cochat-backend/pkg/imap"
	"cochat-backend/pkg/mimetree"
	"cochat-backend/pkg/sealer"

	"github.com/emersion/go-imap"
)

// ErrNoRefresh is returned because IMAP passwords cannot be refreshed.
var ErrNoRefresh = errors.New("imap: credentials cannot be refreshed, relink the account")

// Mailbox is the subset of the IMAP service the client needs.
type Mailbox interface {
	Verify(ctx context.Context, host, username, password string) (*imappkg.MailboxState, error)
	FetchSince(ctx context.Context, host, username, password string, lastUID uint32) (*imappkg.MailboxState, []imappkg.Message, error)
}

// Client stores passwords sealed; AccessToken in a Credential is the sealed form.
type Client struct {
	mailbox Mailbox
	sealer  *sealer.Sealer
}

func NewClient(mailbox Mailbox, s *sealer.Sealer) *Client {
	return &Client{mailbox: mailbox, sealer: s}
}

// FormatMarker encodes an INBOX position as "<uidvalidity>:<last uid>".
func FormatMarker(state *imappkg.MailboxState) string {
	return fmt.Sprintf("%d:%d", state.UIDValidity, state.LastUID)
}

func ParseMarker(marker string) (*imappkg.MailboxState, error) {
	validity, uid, ok := strings.Cut(marker, ":")
	if !ok {
		return nil, fmt.Errorf("invalid imap marker %q", marker)
	}
	v, err := strconv.ParseUint(validity, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid imap marker %q: %w", marker, err)
	}
	u, err := strconv.ParseUint(uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid imap marker %q: %w", marker, err)
	}
	return &imappkg.MailboxState{UIDValidity: uint32(v), LastUID: uint32(u)}, nil
}

// Head returns the marker for the mailbox as it is now.
func (c *Client) Head(ctx context.Context, cred mailsync.Credential) (string, error) {
	password, err := c.sealer.Open(cred.AccessToken)
	if err != nil {
		return "", err
	}
	state, err := c.mailbox.Verify(ctx, cred.Host, cred.AccountID, password)
	if err != nil {
		return "", err
	}
	return FormatMarker(state), nil
}

func (c *Client) FetchDelta(ctx context.Context, cred mailsync.Credential, since string) ([]mailsync.IncomingRecord, bool, error) {
	from, err := ParseMarker(since)
	if err != nil {
		return nil, false, err
	}
	password, err := c.sealer.Open(cred.AccessToken)
	if err != nil {
		return nil, true, nil
	}

	state, messages, err := c.mailbox.FetchSince(ctx, cred.Host, cred.AccountID, password, from.LastUID)
	if errors.Is(err, imappkg.ErrAuthFailed) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	if state.UIDValidity != from.UIDValidity {
		log.Printf("[IMAP] uidvalidity of %s changed (%d -> %d), resuming from the current position", cred.AccountID, from.UIDValidity, state.UIDValidity)
		return nil, false, nil
	}

	records := make([]mailsync.IncomingRecord, 0, len(messages))
	for _, m := range messages {
		records = append(records, toRecord(m, cred.AccountID, state.UIDValidity))
	}
	return records, false, nil
}

func (c *Client) RefreshCredential(ctx context.Context, refreshToken string) (*mailsync.Credential, error) {
	return nil, ErrNoRefresh
}

func (c *Client) MarkerBefore(a, b string) bool {
	x, errA := ParseMarker(a)
	y, errB := ParseMarker(b)
	if errA != nil || errB != nil || x.UIDValidity != y.UIDValidity {
		return false
	}
	return x.LastUID < y.LastUID
}

// toRecord keys messages by uidvalidity and UID, which together identify a
// message for the lifetime of the mailbox.
func toRecord(m imappkg.Message, account string, validity uint32) mailsync.IncomingRecord {
	rec := mailsync.IncomingRecord{
		ProviderMessageID: fmt.Sprintf("%s/%d/%d", account, validity, m.UID),
		Sender:            m.From,
		Recipient:         m.To,
		Labels:            labelsFromFlags(m.Flags),
		ReceivedAt:        m.Date,
	}
	if rec.Recipient == "" {
		rec.Recipient = account
	}
	if m.Subject != "" {
		subject := m.Subject
		rec.Subject = &subject
	}
	if len(m.Raw) > 0 {
		root, err := mimetree.Parse(bytes.NewReader(m.Raw))
		if err != nil {
			log.Printf("[IMAP] failed to parse message %d of %s: %v", m.UID, account, err)
		} else {
			rec.Body = mimetree.PlainText(root)
		}
	}
	return rec
}

// labelsFromFlags maps IMAP flags to provider labels. Everything read here
// comes from INBOX.
func labelsFromFlags(flags []string) []string {
	labels := []string{mailsync.LabelInbox}
	for _, f := range flags {
		switch f {
		case imap.DraftFlag:
			labels = append(labels, mailsync.LabelDraft)
		case imap.SeenFlag:
			labels = append(labels, "SEEN")
		case imap.FlaggedFlag:
			labels = append(labels, "STARRED")
		}
	}
	return labels
}
