package mailsync

import (
	"context"
	"fmt"
	"log"
)

// CredentialUpdate receives the stored credential and returns the fields to
// change. An empty RefreshToken or nil Expiry keeps the stored value; a nil
// credential changes nothing.
type CredentialUpdate func(ctx context.Context, current Credential) (*Credential, error)

// Exclusive runs fn while holding the account's lease, so no pass for the
// account runs at the same time.
func (c *Cursor) Exclusive(ctx context.Context, provider, providerAccountID string, fn func(ctx context.Context) error) error {
	release, err := c.lease.Acquire(ctx, leaseKey(provider, providerAccountID))
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// UpdateCredential changes an account's credential outside a sync pass. The
// account is read again under the lease and the change is persisted through
// the same commit path a pass uses. It returns the credential now stored.
func (c *Cursor) UpdateCredential(ctx context.Context, provider, providerAccountID string, update CredentialUpdate) (*Credential, error) {
	var stored *Credential
	err := c.Exclusive(ctx, provider, providerAccountID, func(ctx context.Context) error {
		acc, err := c.store.FindAccount(ctx, provider, providerAccountID)
		if err != nil {
			return fmt.Errorf("failed to load account: %w", err)
		}
		if acc == nil {
			return fmt.Errorf("%w: %s %s", ErrNotLinked, provider, providerAccountID)
		}

		current := credentialOf(acc)
		uctx, cancel := context.WithTimeout(ctx, c.providerTimeout)
		fresh, err := update(uctx, current)
		cancel()
		if err != nil {
			return err
		}
		if fresh == nil {
			stored = &current
			return nil
		}
		if fresh.AccessToken == "" {
			return fmt.Errorf("provider returned an empty credential")
		}

		if _, err := c.store.Commit(ctx, &Commit{AccountID: acc.ID, Credential: fresh}); err != nil {
			return fmt.Errorf("%w: %v", ErrCommit, err)
		}
		merged := current
		merged.AccessToken = fresh.AccessToken
		if fresh.RefreshToken != "" {
			merged.RefreshToken = fresh.RefreshToken
		}
		if fresh.Expiry != nil {
			merged.Expiry = fresh.Expiry
		}
		stored = &merged
		log.Printf("[Sync] credential of account %s updated", acc.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}
