package usecase

import (
	"context"
	"errors"

	authdomain "cochat-backend/internal/auth/domain"
	authdto "cochat-backend/internal/auth/dto"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUserNotFound       = errors.New("user not found")
)

type AuthUsecase interface {
	Register(req *authdto.RegisterRequest) (*authdto.TokenResponse, error)
	Login(req *authdto.LoginRequest) (*authdto.TokenResponse, error)
	RefreshToken(refreshToken string) (*authdto.TokenResponse, error)
	Logout(refreshToken string) error
	ValidateToken(token string) (*authdomain.User, error)
	GetUserByID(userID string) (*authdomain.User, error)

	SetPreferences(ctx context.Context, userID, preferences string) (*authdomain.User, error)
	SetPreferenceEmbedder(embedder PreferenceEmbedder)

	RegisterFCMToken(userID, token, deviceInfo string) error
	UnregisterFCMToken(userID, token string) error
}

// PreferenceEmbedder turns a preference profile into the vector sent to
// the analysis service.
type PreferenceEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
