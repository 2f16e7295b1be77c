package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/filedeck/filedeck/internal/devserver/config"
	"github.com/filedeck/filedeck/internal/devserver/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
	TokenGrant   = "grant"
)

var errTokenType = errors.New("unexpected token type")

// Claims is the payload of every token; Type tells the kinds apart.
type Claims struct {
	Email     string `json:"email,omitempty"`
	SessionID string `json:"sid,omitempty"`
	Type      string `json:"typ"`
	jwt.RegisteredClaims
}

// Tokens signs and checks the HS256 tokens shared by both services.
type Tokens struct {
	secret []byte
	cfg    config.JWTConfig
	now    func() time.Time
}

func NewTokens(cfg config.JWTConfig, now func() time.Time) *Tokens {
	if now == nil {
		now = time.Now
	}
	return &Tokens{secret: []byte(cfg.Secret), cfg: cfg, now: now}
}

func (t *Tokens) sign(claims Claims, ttl time.Duration) (string, error) {
	now := t.now()
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Access issues an access token for user bound to device session sid.
func (t *Tokens) Access(user *models.User, sid string) (string, error) {
	return t.sign(Claims{
		Email:            user.Email,
		SessionID:        sid,
		Type:             TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID},
	}, t.cfg.AccessTTL)
}

// Refresh issues a refresh token and returns its jti.
func (t *Tokens) Refresh(userID, sid string) (string, string, error) {
	jti := uuid.NewString()
	signed, err := t.sign(Claims{
		SessionID:        sid,
		Type:             TokenRefresh,
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID, ID: jti},
	}, t.cfg.RefreshTTL)
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}

// Grant issues a public-link access grant for linkID.
func (t *Tokens) Grant(linkID string) (string, error) {
	return t.sign(Claims{
		Type:             TokenGrant,
		RegisteredClaims: jwt.RegisteredClaims{Subject: linkID},
	}, t.cfg.GrantTTL)
}

func (t *Tokens) Parse(tokenString, typ string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Type != typ {
		return nil, errTokenType
	}
	return claims, nil
}
