// Package instagram adapts Instagram direct messages to the mailsync
// provider contract. Instagram pushes message content in its webhooks, so
// there is no delta to fetch.
package instagram

import (
	"context"

	"cochat-backend/internal/mailsync"
	igpkg "cochat-backend/pkg/instagram"
)

type Client struct {
	service *igpkg.Service
}

func NewClient(service *igpkg.Service) *Client {
	return &Client{service: service}
}

func (c *Client) FetchDelta(ctx context.Context, cred mailsync.Credential, since string) ([]mailsync.IncomingRecord, bool, error) {
	return nil, false, nil
}

// RefreshCredential extends a long-lived token. Instagram has no separate
// refresh token; the stored refresh token is the long-lived token itself.
func (c *Client) RefreshCredential(ctx context.Context, refreshToken string) (*mailsync.Credential, error) {
	token, err := c.service.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	expiry := token.Expiry
	return &mailsync.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.AccessToken,
		Expiry:       &expiry,
	}, nil
}

// Records groups webhook messages by the linked account they belong to.
// Echoes of messages the account sent are labelled SENT so the pipeline
// drops them.
func Records(msgs []igpkg.DirectMessage) map[string][]mailsync.IncomingRecord {
	out := make(map[string][]mailsync.IncomingRecord)
	for _, m := range msgs {
		label := mailsync.LabelInbox
		if m.Echo {
			label = mailsync.LabelSent
		}
		out[m.AccountID] = append(out[m.AccountID], mailsync.IncomingRecord{
			ProviderMessageID: m.MID,
			Sender:            m.SenderID,
			Recipient:         m.Recipient,
			Body:              m.Text,
			Labels:            []string{label},
			ReceivedAt:        m.SentAt,
		})
	}
	return out
}
