package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenTTL = 24 * time.Hour

// CallClaims represents the claims in a call token. Providers present it
// when attaching a connection to the call session it was issued for.
type CallClaims struct {
	SessionID string `json:"session_id"`
	Provider  string `json:"provider,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates call tokens with an HMAC secret.
type TokenIssuer struct {
	secret []byte
}

func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret must not be empty")
	}
	return &TokenIssuer{secret: []byte(secret)}, nil
}

// GenerateCallToken issues a token scoped to one call session.
func (t *TokenIssuer) GenerateCallToken(sessionID, provider string) (string, error) {
	claims := &CallClaims{
		SessionID: sessionID,
		Provider:  provider,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// ValidateToken validates a call token and returns its claims.
func (t *TokenIssuer) ValidateToken(tokenString string) (*CallClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CallClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*CallClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrInvalidKey
}
