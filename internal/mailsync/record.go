package mailsync

import "time"

// Provider label names. Providers without labels map their flags onto these.
const (
	LabelDraft = "DRAFT"
	LabelSent  = "SENT"
	LabelInbox = "INBOX"
)

// IncomingRecord is one normalized item from a provider delta. It lives for
// a single pass.
type IncomingRecord struct {
	ProviderMessageID string
	Sender            string
	Recipient         string
	Subject           *string
	Body              string
	Labels            []string
	ReceivedAt        time.Time
}

// Credential is what a provider client needs to talk to one account.
type Credential struct {
	AccountID    string
	AccessToken  string
	RefreshToken string
	Expiry       *time.Time
	Host         string
}

// Preference is the account owner's standing preference profile.
type Preference struct {
	Text   string
	Vector []float32
}
