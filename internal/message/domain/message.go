package domain

import (
	"time"

	"cochat-backend/pkg/vector"
)

const CategoryOthers = "others"

// Message is a persisted, enriched message owned by an internal user.
// (Provider, ProviderMessageID) is unique across the whole table.
type Message struct {
	ID                string        `json:"id" gorm:"primaryKey"`
	UserID            string        `json:"user_id" gorm:"not null;index:idx_messages_user_received,priority:1"`
	LinkedAccountID   string        `json:"linked_account_id" gorm:"index"`
	Provider          string        `json:"provider" gorm:"type:varchar(32);not null;uniqueIndex:uk_provider_message,priority:1"`
	ProviderMessageID string        `json:"provider_message_id" gorm:"not null;uniqueIndex:uk_provider_message,priority:2"`
	SenderID          string        `json:"sender_id"`
	ReceiverID        string        `json:"receiver_id"`
	Subject           *string       `json:"subject,omitempty"`
	Content           string        `json:"content" gorm:"type:text"`
	Category          string        `json:"category" gorm:"type:varchar(64);index"`
	Summary           string        `json:"summary" gorm:"type:text"`
	EmbeddingVector   vector.Vector `json:"-" gorm:"type:text"`
	Recommended       bool          `json:"recommended"`
	ReceivedAt        time.Time     `json:"received_at" gorm:"index:idx_messages_user_received,priority:2"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) SubjectText() string {
	if m.Subject == nil {
		return ""
	}
	return *m.Subject
}
