package identity

import (
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// Claims are carried in every session token. The standard Id claim is the session id.
type Claims struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	IssuedAtMs int64  `json:"iat_ms"`
	jwt.StandardClaims
}

// Token is a signed session token handed to the client.
type Token struct {
	Value     string    `json:"token"`
	SessionID string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func generateToken(secret []byte, userID, email, sessionID string, now time.Time, ttl time.Duration) (*Token, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("jwt secret is not set")
	}
	expires := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:     userID,
		Email:      email,
		IssuedAtMs: now.UnixMilli(),
		StandardClaims: jwt.StandardClaims{
			Id:        sessionID,
			Subject:   userID,
			IssuedAt:  now.Unix(),
			ExpiresAt: expires.Unix(),
		},
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return nil, err
	}
	return &Token{Value: signed, SessionID: sessionID, ExpiresAt: expires}, nil
}

func parseToken(secret []byte, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" || claims.Id == "" {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
