package mailsync

import (
	"context"
	"errors"
	"time"

	authdomain "cochat-backend/internal/auth/domain"
	msgdomain "cochat-backend/internal/message/domain"
	messengerdomain "cochat-backend/internal/messenger/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the persisted state a pass reads and writes.
type Store interface {
	// FindAccount returns nil, nil when the account is not linked.
	FindAccount(ctx context.Context, provider, providerAccountID string) (*messengerdomain.LinkedAccount, error)
	// SetBaseline sets the cursor only if it is still null.
	SetBaseline(ctx context.Context, accountID, marker string) error
	ExistingMessageIDs(ctx context.Context, provider string, ids []string) (map[string]bool, error)
	Preference(ctx context.Context, userID string) (*Preference, error)
	// Commit writes messages and account changes in one transaction and
	// returns the messages that were actually inserted.
	Commit(ctx context.Context, c *Commit) ([]*msgdomain.Message, error)
}

type Commit struct {
	AccountID  string
	Cursor     *string
	Credential *Credential
	Messages   []*msgdomain.Message
}

const idLookupChunk = 500

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FindAccount(ctx context.Context, provider, providerAccountID string) (*messengerdomain.LinkedAccount, error) {
	var acc messengerdomain.LinkedAccount
	err := s.db.WithContext(ctx).
		Where("provider = ? AND provider_account_id = ?", provider, providerAccountID).
		Order("created_at asc").
		First(&acc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &acc, nil
}

func (s *GormStore) SetBaseline(ctx context.Context, accountID, marker string) error {
	return s.db.WithContext(ctx).Model(&messengerdomain.LinkedAccount{}).
		Where("id = ? AND history_id IS NULL", accountID).
		Updates(map[string]any{"history_id": marker, "updated_at": time.Now()}).Error
}

func (s *GormStore) ExistingMessageIDs(ctx context.Context, provider string, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	for start := 0; start < len(ids); start += idLookupChunk {
		end := start + idLookupChunk
		if end > len(ids) {
			end = len(ids)
		}
		var existing []string
		err := s.db.WithContext(ctx).Model(&msgdomain.Message{}).
			Where("provider = ? AND provider_message_id IN ?", provider, ids[start:end]).
			Pluck("provider_message_id", &existing).Error
		if err != nil {
			return nil, err
		}
		for _, id := range existing {
			found[id] = true
		}
	}
	return found, nil
}

func (s *GormStore) Preference(ctx context.Context, userID string) (*Preference, error) {
	var user authdomain.User
	err := s.db.WithContext(ctx).Select("id", "preferences", "preference_vector").
		Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Preference{}, nil
		}
		return nil, err
	}
	return &Preference{Text: user.Preferences, Vector: user.PreferenceVector}, nil
}

func (s *GormStore) Commit(ctx context.Context, c *Commit) ([]*msgdomain.Message, error) {
	var inserted []*msgdomain.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted = inserted[:0]
		for _, m := range c.Messages {
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_message_id"}},
				DoNothing: true,
			}).Create(m)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				inserted = append(inserted, m)
			}
		}

		updates := map[string]any{}
		if c.Cursor != nil {
			updates["history_id"] = *c.Cursor
		}
		if cred := c.Credential; cred != nil {
			updates["access_token"] = cred.AccessToken
			if cred.RefreshToken != "" {
				updates["refresh_token"] = cred.RefreshToken
			}
			if cred.Expiry != nil {
				updates["token_expiry"] = *cred.Expiry
			}
		}
		if len(updates) == 0 {
			return nil
		}
		updates["updated_at"] = time.Now()
		return tx.Model(&messengerdomain.LinkedAccount{}).Where("id = ?", c.AccountID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}
