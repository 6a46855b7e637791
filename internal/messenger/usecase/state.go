package usecase

import (
	"fmt"
	"time"

	messengerdomain "cochat-backend/internal/messenger/domain"

	"github.com/golang-jwt/jwt/v5"
)

const stateTTL = 10 * time.Minute

// signState binds an OAuth round trip to the user that started it.
func (u *messengerUsecase) signState(userID string, provider messengerdomain.Provider) (string, error) {
	now := u.now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  userID,
		"provider": string(provider),
		"iat":      now.Unix(),
		"exp":      now.Add(stateTTL).Unix(),
	}).SignedString(u.stateKey)
}

func (u *messengerUsecase) parseState(state string, provider messengerdomain.Provider) (string, error) {
	token, err := jwt.Parse(state, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return u.stateKey, nil
	}, jwt.WithTimeFunc(u.now))
	if err != nil || !token.Valid {
		return "", ErrInvalidState
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidState
	}
	if p, _ := claims["provider"].(string); p != string(provider) {
		return "", ErrInvalidState
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return "", ErrInvalidState
	}
	return userID, nil
}
