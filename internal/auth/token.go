// Package auth mints and verifies the device tokens the sync client sends
// to the remote backend.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrDisabled     = errors.New("device tokens disabled")
)

const issuer = "tokostok"

type deviceClaims struct {
	jwtlib.RegisteredClaims
}

// Manager signs HS256 tokens whose subject is a device id. A Manager built
// with an empty secret is disabled: Sign fails and callers skip auth.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Manager{
		secret: []byte(strings.TrimSpace(secret)),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

func (m *Manager) Enabled() bool {
	return m != nil && len(m.secret) > 0
}

func (m *Manager) Sign(deviceID string) (string, error) {
	if !m.Enabled() {
		return "", ErrDisabled
	}
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return "", errors.New("device id is required")
	}

	now := m.now().UTC()
	claims := deviceClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   deviceID,
			Issuer:    issuer,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Parse verifies tokenStr and returns the device id it was minted for.
func (m *Manager) Parse(tokenStr string) (string, error) {
	if !m.Enabled() {
		return "", ErrDisabled
	}
	claims := &deviceClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	},
		jwtlib.WithValidMethods([]string{"HS256"}),
		jwtlib.WithIssuer(issuer),
		jwtlib.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("invalid token subject")
	}
	return sub, nil
}

// TokenSource mints a fresh token for deviceID on every call.
func (m *Manager) TokenSource(deviceID string) func(ctx context.Context) (string, error) {
	return func(context.Context) (string, error) {
		return m.Sign(deviceID)
	}
}
