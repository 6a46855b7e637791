package domain

import "time"

type Provider string

const (
	ProviderGmail     Provider = "gmail"
	ProviderInstagram Provider = "instagram"
	ProviderIMAP      Provider = "imap"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderGmail, ProviderInstagram, ProviderIMAP:
		return true
	}
	return false
}

// LinkedAccount binds one external mailbox to one internal user.
// HistoryID is the sync cursor; nil means the account was never synchronized.
type LinkedAccount struct {
	ID                string     `json:"id" gorm:"primaryKey"`
	UserID            string     `json:"user_id" gorm:"not null;uniqueIndex:uk_user_provider_account,priority:1"`
	Provider          Provider   `json:"provider" gorm:"type:varchar(32);not null;uniqueIndex:uk_user_provider_account,priority:2;index:idx_provider_account,priority:1"`
	ProviderAccountID string     `json:"provider_account_id" gorm:"not null;uniqueIndex:uk_user_provider_account,priority:3;index:idx_provider_account,priority:2"`
	AccessToken       string     `json:"-" gorm:"type:text"`
	RefreshToken      string     `json:"-" gorm:"type:text"`
	HistoryID         *string    `json:"history_id,omitempty"`
	TokenExpiry       *time.Time `json:"token_expiry,omitempty"`
	IMAPHost          string     `json:"imap_host,omitempty"`
	WatchExpiry       *time.Time `json:"watch_expiry,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (LinkedAccount) TableName() string {
	return "linked_accounts"
}

func (a *LinkedAccount) Cursor() string {
	if a.HistoryID == nil {
		return ""
	}
	return *a.HistoryID
}
