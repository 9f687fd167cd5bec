package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when the access token cannot be decoded.
var ErrInvalidToken = errors.New("invalid access token")

// Profile is the user identity carried in the access token.
type Profile struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Locale string `json:"locale,omitempty"`
	Role   string `json:"role"`
}

// TokenSet is the persisted authentication state.
type TokenSet struct {
	IDToken      string    `json:"id_token,omitempty"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresIn    int64     `json:"expires_in,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	CreatedOn    time.Time `json:"created_on"`
	Role         string    `json:"role,omitempty"`
	Profile      *Profile  `json:"profile,omitempty"`
}

// Claims are the access token claims.
type Claims struct {
	Profile     Profile  `json:"profile"`
	Authorities []string `json:"authorities,omitempty"`
	jwt.RegisteredClaims
}

// Decode parses the token without verifying the signature.
// The result must never be used for an authorization decision.
func Decode(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	return &claims, nil
}
