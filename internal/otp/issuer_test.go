package otp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breezeauth/riskgate/internal/model"
)

func TestValidateCodeFormat(t *testing.T) {
	assert.NoError(t, ValidateCodeFormat("000000"))
	assert.NoError(t, ValidateCodeFormat("123456"))
	assert.ErrorIs(t, ValidateCodeFormat("12345"), ErrInvalidCodeFormat)
	assert.ErrorIs(t, ValidateCodeFormat("abcdef"), ErrInvalidCodeFormat)
	assert.ErrorIs(t, ValidateCodeFormat("12 456"), ErrInvalidCodeFormat)
}

func TestStaticIssuer(t *testing.T) {
	_, err := NewStaticIssuer("12ab56")
	require.ErrorIs(t, err, ErrInvalidCodeFormat)

	s, err := NewStaticIssuer("123456")
	require.NoError(t, err)

	c := &model.Challenge{SessionID: "s"}
	require.NoError(t, s.Prepare(c))
	code, err := s.Code(c, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "123456", code)
	assert.True(t, s.Verify(c, "123456", time.Now()))
	assert.False(t, s.Verify(c, "123457", time.Now()))
}

func TestTOTPIssuer_CodesArePerChallenge(t *testing.T) {
	issuer := NewTOTPIssuer(TOTPConfig{Period: 30, Skew: 1})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	a := &model.Challenge{SessionID: "a"}
	b := &model.Challenge{SessionID: "b"}
	require.NoError(t, issuer.Prepare(a))
	require.NoError(t, issuer.Prepare(b))
	require.NotEmpty(t, a.Secret)
	require.NotEqual(t, a.Secret, b.Secret)

	code, err := issuer.Code(a, now)
	require.NoError(t, err)
	require.NoError(t, ValidateCodeFormat(code))

	assert.True(t, issuer.Verify(a, code, now))
	assert.True(t, issuer.Verify(a, code, now.Add(30*time.Second)), "one step of skew")
	assert.False(t, issuer.Verify(a, code, now.Add(5*time.Minute)), "expired")
}

func TestTOTPIssuer_MissingSecret(t *testing.T) {
	issuer := NewTOTPIssuer(TOTPConfig{})
	c := &model.Challenge{SessionID: "x"}

	_, err := issuer.Code(c, time.Now())
	assert.ErrorIs(t, err, ErrMissingSecret)
	assert.False(t, issuer.Verify(c, "123456", time.Now()))
}
