// Package identity resolves the caller of a request to a user id or a guest.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// GuestHeader carries the id issued to an unauthenticated visitor.
const GuestHeader = "X-Guest-ID"

// ErrInvalidToken is returned for a bearer token that fails verification.
// A missing token is not an error; the caller becomes a guest.
var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is who is driving a roadmap session. Guests run in local-only
// mode and their progress is discarded when the session ends.
type Identity struct {
	UserID string `json:"user_id"`
	Guest  bool   `json:"guest"`
	// Minted is set when the guest id was issued by this request rather
	// than sent by the client.
	Minted bool `json:"-"`
}

// Key namespaces the id so a guest id can never collide with a user id.
func (i Identity) Key() string {
	if i.Guest {
		return "guest:" + i.UserID
	}
	return "user:" + i.UserID
}

// Provider resolves the identity behind a request.
type Provider interface {
	Identify(r *http.Request) (Identity, error)
}

// JWTProvider verifies HS256 bearer tokens and falls back to guest ids.
type JWTProvider struct {
	secret []byte
}

// NewJWTProvider creates a provider that verifies tokens signed with secret.
func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret)}
}

// Identify returns the token subject for a valid bearer token. Without a
// token it returns a guest identity, reusing a well-formed X-Guest-ID or
// minting a new one.
func (p *JWTProvider) Identify(r *http.Request) (Identity, error) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return Identity{}, fmt.Errorf("malformed authorization header: %w", ErrInvalidToken)
		}
		sub, err := p.validate(token)
		if err != nil {
			return Identity{}, err
		}
		return Identity{UserID: sub}, nil
	}

	if id, err := uuid.Parse(r.Header.Get(GuestHeader)); err == nil {
		return Identity{UserID: id.String(), Guest: true}, nil
	}
	return Identity{UserID: uuid.NewString(), Guest: true, Minted: true}, nil
}

func (p *JWTProvider) validate(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token has no subject: %w", ErrInvalidToken)
	}
	return sub, nil
}

// Issue signs a token for userID valid for ttl.
func (p *JWTProvider) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(p.secret)
}
