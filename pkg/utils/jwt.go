package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

const tokenIssuer = "crosspost"

var ErrInvalidToken = errors.New("invalid session token")

// SignSession issues an HS256 session token for userID that expires ttl after now.
func SignSession(secretKey, userID string, ttl time.Duration, now time.Time) (string, error) {
	claims := transfer.CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secretKey))
}

func ParseSession(secretKey, tokenString string) (*transfer.CustomClaims, error) {
	claims := &transfer.CustomClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secretKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RenewSession returns a fresh token once less than half of ttl remains on
// claims, and "" while the current one is still good.
func RenewSession(secretKey string, claims *transfer.CustomClaims, ttl time.Duration, now time.Time) (string, error) {
	if ttl <= 0 || claims.ExpiresAt == nil || claims.ExpiresAt.Sub(now) > ttl/2 {
		return "", nil
	}
	return SignSession(secretKey, claims.UserID, ttl, now)
}
