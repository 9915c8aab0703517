// Package auth provides the mocked authentication collaborator: it verifies
// no credentials, but mints real signed session tokens and persists the
// identity across process restarts.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nimbus-im/nimbus/internal/model"
	"github.com/nimbus-im/nimbus/pkg/apperr"
)

// wellKnownNames maps demo emails to display names, mirroring the seeded
// roster. Anyone else logs in as "Demo User".
var wellKnownNames = map[string]string{
	"alice@test.com": "Alice Johnson",
	"bob@test.com":   "Bob Smith",
	"carol@test.com": "Carol Davis",
}

// demoUserID is the fixed id every login receives. The seeded roster is
// written against it.
const demoUserID = "1"

// Claims are the session token claims.
type Claims struct {
	jwt.RegisteredClaims
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// Authenticator mints and verifies session tokens. Credential verification
// is intentionally absent.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithClock overrides the authenticator's time source.
func WithClock(c func() time.Time) Option {
	return func(a *Authenticator) { a.clock = c }
}

// New creates an Authenticator signing with secret.
func New(secret string, ttl time.Duration, opts ...Option) *Authenticator {
	a := &Authenticator{
		secret: []byte(secret),
		ttl:    ttl,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Login accepts any email/password pair and produces the demo identity.
func (a *Authenticator) Login(req model.LoginRequest) (model.Identity, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return model.Identity{}, apperr.Invalid("email must not be empty")
	}
	if req.Password == "" {
		return model.Identity{}, apperr.Invalid("password must not be empty")
	}

	name, ok := wellKnownNames[email]
	if !ok {
		name = "Demo User"
	}
	return a.issue(demoUserID, name, email)
}

// Register accepts any registration and produces a fresh identity.
func (a *Authenticator) Register(req model.RegisterRequest) (model.Identity, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return model.Identity{}, apperr.Invalid("email must not be empty")
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return model.Identity{}, apperr.Invalid("display name must not be empty")
	}
	if req.Password == "" {
		return model.Identity{}, apperr.Invalid("password must not be empty")
	}
	return a.issue(uuid.Must(uuid.NewV7()).String(), name, email)
}

func (a *Authenticator) issue(id, name, email string) (model.Identity, error) {
	now := a.clock()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
		DisplayName: name,
		Email:       email,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return model.Identity{}, fmt.Errorf("failed to sign session token: %w", err)
	}

	return model.Identity{
		User: model.User{
			ID:          id,
			DisplayName: name,
			Email:       email,
			Online:      true,
		},
		SessionToken: token,
	}, nil
}

// Verify parses a session token and reconstructs the identity it carries.
func (a *Authenticator) Verify(tokenString string) (model.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.clock))
	if err != nil || !token.Valid {
		return model.Identity{}, apperr.Unauthenticated("invalid session token")
	}

	return model.Identity{
		User: model.User{
			ID:          claims.Subject,
			DisplayName: claims.DisplayName,
			Email:       claims.Email,
			Online:      true,
		},
		SessionToken: tokenString,
	}, nil
}
