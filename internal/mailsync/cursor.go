package mailsync

import (
	"context"
	"fmt"
	"log"
	"time"

	msgdomain "cochat-backend/internal/message/domain"
	messengerdomain "cochat-backend/internal/messenger/domain"
	"cochat-backend/pkg/ai"

	"github.com/google/uuid"
)

// Notifier receives every message after its pass has committed.
type Notifier interface {
	Notify(ctx context.Context, msg *msgdomain.Message) error
}

const (
	defaultProviderTimeout   = 30 * time.Second
	defaultEnrichmentTimeout = 20 * time.Second
)

// Cursor advances per-account history cursors in response to provider
// notifications. Passes for one account never overlap.
type Cursor struct {
	store     Store
	providers *Registry
	analyzer  ai.Analyzer
	notifier  Notifier
	lease     *Lease

	providerTimeout time.Duration
	enrichTimeout   time.Duration
	now             func() time.Time
}

type Option func(*Cursor)

func WithAnalyzer(a ai.Analyzer) Option {
	return func(c *Cursor) { c.analyzer = a }
}

func WithNotifier(n Notifier) Option {
	return func(c *Cursor) { c.notifier = n }
}

func WithTimeouts(provider, enrichment time.Duration) Option {
	return func(c *Cursor) {
		if provider > 0 {
			c.providerTimeout = provider
		}
		if enrichment > 0 {
			c.enrichTimeout = enrichment
		}
	}
}

func NewCursor(store Store, providers *Registry, opts ...Option) *Cursor {
	c := &Cursor{
		store:           store,
		providers:       providers,
		lease:           NewLease(),
		providerTimeout: defaultProviderTimeout,
		enrichTimeout:   defaultEnrichmentTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleNotification runs one pass for the account named by a provider
// notification. An unlinked account is not an error.
func (c *Cursor) HandleNotification(ctx context.Context, provider, providerAccountID, marker string) (*Result, error) {
	if marker == "" {
		return nil, ErrEmptyMarker
	}
	client, ok := c.providers.Get(provider)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	release, err := c.lease.Acquire(ctx, leaseKey(provider, providerAccountID))
	if err != nil {
		return nil, err
	}
	defer release()

	acc, err := c.store.FindAccount(ctx, provider, providerAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if acc == nil {
		log.Printf("[Sync] %s account %s is not linked, ignoring notification", provider, providerAccountID)
		return &Result{Outcome: OutcomeNotLinked}, nil
	}

	result := &Result{AccountID: acc.ID}

	if acc.HistoryID == nil {
		if err := c.store.SetBaseline(ctx, acc.ID, marker); err != nil {
			return nil, fmt.Errorf("failed to set baseline: %w", err)
		}
		log.Printf("[Sync] baseline for account %s set to %s", acc.ID, marker)
		result.Outcome = OutcomeBaseline
		result.Cursor = marker
		return result, nil
	}

	cred := credentialOf(acc)
	records, expired, err := c.fetch(ctx, client, cred, *acc.HistoryID)
	if err != nil {
		return c.abortFetch(result, acc, err)
	}

	var refreshed *Credential
	if expired {
		refreshed, err = c.refresh(ctx, client, acc)
		if err != nil {
			log.Printf("[Sync] credential refresh failed for account %s: %v", acc.ID, err)
			result.Outcome = OutcomeRefreshFailed
			result.Cursor = *acc.HistoryID
			return result, fmt.Errorf("%w: %v", ErrCredentialRefresh, err)
		}

		records, expired, err = c.fetch(ctx, client, *refreshed, *acc.HistoryID)
		if err == nil && expired {
			err = fmt.Errorf("credential rejected after refresh")
			result.Outcome = OutcomeRefreshFailed
			result.Cursor = *acc.HistoryID
			c.saveCredential(ctx, acc.ID, refreshed)
			return result, fmt.Errorf("%w: %v", ErrCredentialRefresh, err)
		}
		if err != nil {
			c.saveCredential(ctx, acc.ID, refreshed)
			return c.abortFetch(result, acc, err)
		}
	}

	next := marker
	if ordering, ok := client.(MarkerOrdering); ok && ordering.MarkerBefore(marker, *acc.HistoryID) {
		next = *acc.HistoryID
	}

	messages := c.process(ctx, acc, records, result)
	inserted, err := c.store.Commit(ctx, &Commit{
		AccountID:  acc.ID,
		Cursor:     &next,
		Credential: refreshed,
		Messages:   messages,
	})
	if err != nil {
		log.Printf("[Sync] commit failed for account %s: %v", acc.ID, err)
		result.Outcome = OutcomeCommitFailed
		result.Cursor = *acc.HistoryID
		return result, fmt.Errorf("%w: %v", ErrCommit, err)
	}

	result.Outcome = OutcomeSynced
	result.Cursor = next
	result.Accepted = len(inserted)
	result.Duplicate += len(messages) - len(inserted)

	c.notify(ctx, inserted)
	log.Printf("[Sync] account %s synced to %s: accepted=%d duplicate=%d filtered=%d unrecommended=%d",
		acc.ID, next, result.Accepted, result.Duplicate, result.Filtered, result.Unrecommended)
	return result, nil
}

// IngestRecords runs the filter, dedup and enrichment stages for records
// pushed directly by a provider (webhooks that carry the content). The
// account cursor is not touched.
func (c *Cursor) IngestRecords(ctx context.Context, provider, providerAccountID string, records []IncomingRecord) (*Result, error) {
	release, err := c.lease.Acquire(ctx, leaseKey(provider, providerAccountID))
	if err != nil {
		return nil, err
	}
	defer release()

	acc, err := c.store.FindAccount(ctx, provider, providerAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if acc == nil {
		log.Printf("[Sync] %s account %s is not linked, dropping %d records", provider, providerAccountID, len(records))
		return &Result{Outcome: OutcomeNotLinked}, nil
	}

	result := &Result{AccountID: acc.ID, Cursor: acc.Cursor()}
	messages := c.process(ctx, acc, records, result)
	inserted, err := c.store.Commit(ctx, &Commit{AccountID: acc.ID, Messages: messages})
	if err != nil {
		result.Outcome = OutcomeCommitFailed
		return result, fmt.Errorf("%w: %v", ErrCommit, err)
	}

	result.Outcome = OutcomeSynced
	result.Accepted = len(inserted)
	result.Duplicate += len(messages) - len(inserted)
	c.notify(ctx, inserted)
	return result, nil
}

func (c *Cursor) fetch(ctx context.Context, client ProviderClient, cred Credential, since string) ([]IncomingRecord, bool, error) {
	fctx, cancel := context.WithTimeout(ctx, c.providerTimeout)
	defer cancel()
	return client.FetchDelta(fctx, cred, since)
}

func (c *Cursor) refresh(ctx context.Context, client ProviderClient, acc *messengerdomain.LinkedAccount) (*Credential, error) {
	if acc.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh credential stored")
	}
	rctx, cancel := context.WithTimeout(ctx, c.providerTimeout)
	defer cancel()

	fresh, err := client.RefreshCredential(rctx, acc.RefreshToken)
	if err != nil {
		return nil, err
	}
	if fresh == nil || fresh.AccessToken == "" {
		return nil, fmt.Errorf("provider returned an empty credential")
	}

	merged := credentialOf(acc)
	merged.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		merged.RefreshToken = fresh.RefreshToken
	}
	merged.Expiry = fresh.Expiry
	return &merged, nil
}

// saveCredential keeps a successful refresh even when the pass aborts.
func (c *Cursor) saveCredential(ctx context.Context, accountID string, cred *Credential) {
	if _, err := c.store.Commit(ctx, &Commit{AccountID: accountID, Credential: cred}); err != nil {
		log.Printf("[Sync] failed to save refreshed credential for account %s: %v", accountID, err)
	}
}

func (c *Cursor) abortFetch(result *Result, acc *messengerdomain.LinkedAccount, err error) (*Result, error) {
	log.Printf("[Sync] delta fetch failed for account %s, cursor stays at %s: %v", acc.ID, acc.Cursor(), err)
	result.Outcome = OutcomeFetchFailed
	result.Cursor = acc.Cursor()
	return result, fmt.Errorf("%w: %v", ErrFetchDelta, err)
}

// process applies filter, dedup and enrichment in provider order and
// returns the messages to persist.
func (c *Cursor) process(ctx context.Context, acc *messengerdomain.LinkedAccount, records []IncomingRecord, result *Result) []*msgdomain.Message {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.ProviderMessageID != "" {
			ids = append(ids, rec.ProviderMessageID)
		}
	}
	existing, err := c.store.ExistingMessageIDs(ctx, string(acc.Provider), ids)
	if err != nil {
		// the unique index still rejects duplicates at commit
		log.Printf("[Sync] dedup lookup failed for account %s: %v", acc.ID, err)
		existing = map[string]bool{}
	}

	pref, err := c.store.Preference(ctx, acc.UserID)
	if err != nil {
		log.Printf("[Sync] failed to load preferences for user %s: %v", acc.UserID, err)
	}

	seen := make(map[string]bool, len(records))
	var messages []*msgdomain.Message
	for _, rec := range records {
		if rec.ProviderMessageID == "" || discard(rec.Labels) {
			result.Filtered++
			continue
		}
		if existing[rec.ProviderMessageID] || seen[rec.ProviderMessageID] {
			result.Duplicate++
			continue
		}
		seen[rec.ProviderMessageID] = true

		analysis := c.enrich(ctx, acc, rec, pref)
		if !analysis.Recommended {
			result.Unrecommended++
			continue
		}
		messages = append(messages, c.toMessage(acc, rec, analysis))
	}
	return messages
}

func (c *Cursor) toMessage(acc *messengerdomain.LinkedAccount, rec IncomingRecord, analysis ai.Analysis) *msgdomain.Message {
	received := rec.ReceivedAt
	if received.IsZero() {
		received = c.now()
	}
	return &msgdomain.Message{
		ID:                uuid.New().String(),
		UserID:            acc.UserID,
		LinkedAccountID:   acc.ID,
		Provider:          string(acc.Provider),
		ProviderMessageID: rec.ProviderMessageID,
		SenderID:          rec.Sender,
		ReceiverID:        rec.Recipient,
		Subject:           rec.Subject,
		Content:           rec.Body,
		Category:          analysis.Category,
		Summary:           analysis.Summary,
		EmbeddingVector:   analysis.EmbeddingVector,
		Recommended:       true,
		ReceivedAt:        received,
	}
}

func (c *Cursor) notify(ctx context.Context, messages []*msgdomain.Message) {
	if c.notifier == nil {
		return
	}
	for _, m := range messages {
		if err := c.notifier.Notify(ctx, m); err != nil {
			log.Printf("[Sync] notification for message %s failed: %v", m.ID, err)
		}
	}
}

func credentialOf(acc *messengerdomain.LinkedAccount) Credential {
	return Credential{
		AccountID:    acc.ProviderAccountID,
		AccessToken:  acc.AccessToken,
		RefreshToken: acc.RefreshToken,
		Expiry:       acc.TokenExpiry,
		Host:         acc.IMAPHost,
	}
}

func leaseKey(provider, providerAccountID string) string {
	return provider + ":" + providerAccountID
}
