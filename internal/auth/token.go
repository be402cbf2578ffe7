// Package auth inspects bearer tokens before they are sent.
//
// Signatures are not verified here; that is the server's job. The check only
// turns an expired JWT into a clear local error instead of a 401.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired = errors.New("API token has expired")
	ErrEmptyToken   = errors.New("API token is empty")
)

// TokenInfo describes what could be read from a token without verifying it.
type TokenInfo struct {
	IsJWT     bool
	Subject   string
	Issuer    string
	ExpiresAt time.Time // zero when the token carries no exp claim
}

// Inspect decodes a JWT's registered claims. Opaque tokens return
// IsJWT=false and no error.
func Inspect(token string) (TokenInfo, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return TokenInfo{}, ErrEmptyToken
	}
	if strings.Count(token, ".") != 2 {
		return TokenInfo{}, nil
	}

	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		// Three dot-separated parts that don't decode: treat as opaque.
		return TokenInfo{}, nil
	}

	info := TokenInfo{
		IsJWT:   true,
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// CheckExpiry returns ErrTokenExpired when token is a JWT whose exp lies
// before now+leeway. Empty and opaque tokens pass; config validation reports
// a missing token separately.
func CheckExpiry(token string, now time.Time, leeway time.Duration) error {
	info, err := Inspect(token)
	if err != nil {
		if errors.Is(err, ErrEmptyToken) {
			return nil
		}
		return err
	}
	if !info.IsJWT || info.ExpiresAt.IsZero() {
		return nil
	}
	if info.ExpiresAt.Before(now.Add(leeway)) {
		return fmt.Errorf("%w (expired at %s)", ErrTokenExpired, info.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}
