package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tecu23/blitz-server/pkg/session"
)

var (
	// ErrInvalidToken is returned for malformed tokens and bad signatures.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned once a token is past its expiry.
	ErrExpiredToken = errors.New("token expired")
)

// Claims is the payload of a player token. The subject is the user id.
type Claims struct {
	Handle string `json:"name,omitempty"`
	Guest  bool   `json:"guest,omitempty"`
	Rating int    `json:"rating,omitempty"`
	RD     int    `json:"rd,omitempty"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 player tokens and mints guest
// identities. It implements session.Authenticator.
type Tokens struct {
	secret   []byte
	guestTTL time.Duration
	leeway   time.Duration
	now      func() time.Time
}

// NewTokens creates a signer/verifier for secret.
func NewTokens(secret string, guestTTL time.Duration) (*Tokens, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	if guestTTL <= 0 {
		guestTTL = 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), guestTTL: guestTTL, leeway: 5 * time.Second, now: time.Now}, nil
}

// WithClock replaces the clock used for issuing and expiry checks.
func (t *Tokens) WithClock(now func() time.Time) {
	if now != nil {
		t.now = now
	}
}

// Sign encodes and signs claims. IssuedAt defaults to now.
func (t *Tokens) Sign(c Claims) (string, error) {
	if c.IssuedAt == nil {
		c.IssuedAt = jwt.NewNumericDate(t.now())
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify checks the signature and expiry of token and returns its claims.
func (t *Tokens) Verify(token string) (Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(token), &c,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(t.leeway),
		jwt.WithTimeFunc(t.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, ErrExpiredToken
	case err != nil:
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	case strings.TrimSpace(c.Subject) == "":
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return c, nil
}

// Authenticate implements session.Authenticator. A valid guest token
// restores the same guest identity.
func (t *Tokens) Authenticate(_ context.Context, credential string) (session.Identity, error) {
	c, err := t.Verify(credential)
	if err != nil {
		return session.Identity{}, err
	}
	id := session.Identity{
		UserID:          c.Subject,
		Handle:          c.Handle,
		Guest:           c.Guest,
		Rating:          c.Rating,
		RatingDeviation: c.RD,
	}
	if c.Guest {
		id.Token = credential
	}
	if id.Handle == "" {
		id.Handle = c.Subject
	}
	return id, nil
}

// Guest mints a fresh guest identity with a token the client can present
// on reconnect.
func (t *Tokens) Guest() (session.Identity, error) {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	now := t.now()
	c := Claims{
		Handle: "Guest" + strings.ToUpper(raw[:6]),
		Guest:  true,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "guest-" + raw[:12],
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.guestTTL)),
		},
	}
	token, err := t.Sign(c)
	if err != nil {
		return session.Identity{}, err
	}
	return session.Identity{UserID: c.Subject, Handle: c.Handle, Guest: true, Token: token}, nil
}
