// Package session resolves the current user. Identities travel as signed
// HS256 JWTs: long-lived session tokens and short-lived OAuth state tokens.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer         = "daily-nexus"
	audSession     = "session"
	audStatePrefix = "oauth-state:"

	StateTTL = 10 * time.Minute
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid or expired token")

// UserContext identifies the user a core operation acts for.
type UserContext struct {
	UserID string
}

// Valid reports whether the context names a user.
func (u UserContext) Valid() bool {
	return strings.TrimSpace(u.UserID) != ""
}

type userKey struct{}

// WithUser attaches the user to ctx.
func WithUser(ctx context.Context, u UserContext) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// FromContext returns the user attached by WithUser.
func FromContext(ctx context.Context) (UserContext, bool) {
	u, ok := ctx.Value(userKey{}).(UserContext)
	return u, ok && u.Valid()
}

// Issuer signs and verifies session and state tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// IssueSession returns a session token for userID.
func (i *Issuer) IssueSession(userID string) (string, error) {
	return i.sign(userID, audSession, i.ttl)
}

// ParseSession verifies a session token.
func (i *Issuer) ParseSession(token string) (UserContext, error) {
	return i.parse(token, audSession)
}

// IssueState returns the OAuth state value for a consent redirect. It binds
// the user to one provider and expires after StateTTL.
func (i *Issuer) IssueState(userID, provider string) (string, error) {
	return i.sign(userID, audStatePrefix+provider, StateTTL)
}

// ParseState verifies a state value returned on the callback of provider.
func (i *Issuer) ParseState(token, provider string) (UserContext, error) {
	return i.parse(token, audStatePrefix+provider)
}

func (i *Issuer) sign(userID, audience string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("sign token: empty user id")
	}
	now := i.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   userID,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (i *Issuer) parse(token, audience string) (UserContext, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return UserContext{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	u := UserContext{UserID: claims.Subject}
	if !u.Valid() {
		return UserContext{}, ErrInvalidToken
	}
	return u, nil
}
