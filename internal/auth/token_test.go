package auth

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndParseRoundTripsDeviceID(t *testing.T) {
	m := NewManager("rahasia-toko", time.Minute)

	token, err := m.Sign("kasir-01")
	require.NoError(t, err)

	device, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "kasir-01", device)
}

func TestParseRejectsForeignSecret(t *testing.T) {
	token, err := NewManager("secret-a", time.Minute).Sign("kasir-01")
	require.NoError(t, err)

	_, err = NewManager("secret-b", time.Minute).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	m := NewManager("rahasia-toko", time.Minute)
	m.SetClock(func() time.Time { return time.Now().Add(-time.Hour) })
	token, err := m.Sign("kasir-01")
	require.NoError(t, err)

	m.SetClock(time.Now)
	_, err = m.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsUnsignedToken(t *testing.T) {
	m := NewManager("rahasia-toko", time.Minute)
	claims := jwtlib.RegisteredClaims{
		Subject:   "kasir-01",
		Issuer:    issuer,
		ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Minute)),
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, claims).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = m.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDisabledManager(t *testing.T) {
	m := NewManager("  ", time.Minute)
	assert.False(t, m.Enabled())

	_, err := m.Sign("kasir-01")
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = m.Parse("anything")
	assert.ErrorIs(t, err, ErrDisabled)
}
