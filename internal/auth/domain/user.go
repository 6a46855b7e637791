package domain

import (
	"time"

	"cochat-backend/pkg/vector"
)

type User struct {
	ID       string `json:"id" gorm:"primaryKey"`
	Email    string `json:"email" gorm:"uniqueIndex;not null"`
	Password string `json:"-"`
	Name     string `json:"name"`
	// Preferences is the free-text profile sent with every analysis request.
	Preferences      string        `json:"preferences" gorm:"type:text"`
	PreferenceVector vector.Vector `json:"-" gorm:"type:text"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

type RefreshToken struct {
	Token     string    `json:"token" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index"`
	ExpiresAt time.Time `json:"expires_at"`
}
