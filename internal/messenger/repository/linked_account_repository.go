package repository

import (
	"errors"
	"time"

	messengerdomain "cochat-backend/internal/messenger/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LinkedAccountRepository interface {
	// Upsert links an account or refreshes the credentials of an existing link.
	// The sync cursor of an existing link is left untouched.
	Upsert(account *messengerdomain.LinkedAccount) error
	FindByID(id string) (*messengerdomain.LinkedAccount, error)
	FindByUserID(userID string) ([]messengerdomain.LinkedAccount, error)
	FindByProvider(provider messengerdomain.Provider) ([]messengerdomain.LinkedAccount, error)
	FindByProviderAccount(provider messengerdomain.Provider, providerAccountID string) (*messengerdomain.LinkedAccount, error)
	Delete(userID, id string) (bool, error)
	UpdateWatchExpiry(id string, expiry time.Time) error
}

type linkedAccountRepository struct {
	db *gorm.DB
}

func NewLinkedAccountRepository(db *gorm.DB) LinkedAccountRepository {
	return &linkedAccountRepository{db: db}
}

func (r *linkedAccountRepository) Upsert(account *messengerdomain.LinkedAccount) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "provider"}, {Name: "provider_account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token", "refresh_token", "token_expiry", "imap_host", "updated_at",
		}),
	}).Create(account).Error
	if err != nil {
		return err
	}

	// On conflict the row keeps its original id and cursor; reload them.
	var stored messengerdomain.LinkedAccount
	err = r.db.Where("user_id = ? AND provider = ? AND provider_account_id = ?",
		account.UserID, account.Provider, account.ProviderAccountID).First(&stored).Error
	if err != nil {
		return err
	}
	*account = stored
	return nil
}

func (r *linkedAccountRepository) FindByID(id string) (*messengerdomain.LinkedAccount, error) {
	var account messengerdomain.LinkedAccount
	if err := r.db.Where("id = ?", id).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *linkedAccountRepository) FindByUserID(userID string) ([]messengerdomain.LinkedAccount, error) {
	var accounts []messengerdomain.LinkedAccount
	err := r.db.Where("user_id = ?", userID).Order("created_at asc").Find(&accounts).Error
	return accounts, err
}

func (r *linkedAccountRepository) FindByProvider(provider messengerdomain.Provider) ([]messengerdomain.LinkedAccount, error) {
	var accounts []messengerdomain.LinkedAccount
	err := r.db.Where("provider = ?", provider).Find(&accounts).Error
	return accounts, err
}

func (r *linkedAccountRepository) FindByProviderAccount(provider messengerdomain.Provider, providerAccountID string) (*messengerdomain.LinkedAccount, error) {
	var account messengerdomain.LinkedAccount
	err := r.db.Where("provider = ? AND provider_account_id = ?", provider, providerAccountID).
		Order("created_at asc").First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *linkedAccountRepository) Delete(userID, id string) (bool, error) {
	res := r.db.Where("id = ? AND user_id = ?", id, userID).Delete(&messengerdomain.LinkedAccount{})
	return res.RowsAffected > 0, res.Error
}

func (r *linkedAccountRepository) UpdateWatchExpiry(id string, expiry time.Time) error {
	return r.db.Model(&messengerdomain.LinkedAccount{}).Where("id = ?", id).
		Updates(map[string]any{"watch_expiry": expiry, "updated_at": time.Now()}).Error
}
