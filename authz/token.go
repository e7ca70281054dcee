package authz

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential is the decoded bearer token: which user, which session.
type Credential struct {
	UserID       string
	SessionToken string
}

// ErrCredentialExpired distinguishes an expired token from a malformed one so
// the middleware can answer TOKEN_EXPIRED instead of INVALID_TOKEN.
var ErrCredentialExpired = errors.New("credential expired")

type tokenClaims struct {
	UserID       string `json:"user_id"`
	SessionToken string `json:"session_token"`
	jwt.RegisteredClaims
}

// SignCredential issues an HS256 bearer token for a credential.
func SignCredential(secret string, cred Credential, ttl time.Duration) (string, error) {
	claims := tokenClaims{
		UserID:       cred.UserID,
		SessionToken: cred.SessionToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseCredential verifies and decodes a bearer token.
func ParseCredential(secret, tokenString string) (*Credential, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrCredentialExpired
		}
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid || claims.UserID == "" || claims.SessionToken == "" {
		return nil, errors.New("invalid token claims")
	}
	return &Credential{UserID: claims.UserID, SessionToken: claims.SessionToken}, nil
}
