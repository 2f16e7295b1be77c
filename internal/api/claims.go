package api

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is what the client can read from an access token without the
// signing key. Nothing here is trusted for authorization decisions.
type Claims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}

// PeekClaims decodes a JWT access token without verifying its signature.
func PeekClaims(token string) (*Claims, error) {
	if token == "" {
		return nil, errors.New("no token")
	}
	var mc struct {
		Email string `json:"email"`
		jwt.RegisteredClaims
	}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &mc); err != nil {
		return nil, err
	}
	c := &Claims{Subject: mc.Subject, Email: mc.Email}
	if mc.ExpiresAt != nil {
		c.ExpiresAt = mc.ExpiresAt.Time
	}
	return c, nil
}

// Expired reports whether the peeked expiry is in the past. A token without
// an exp claim never reports expired.
func (c *Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}
