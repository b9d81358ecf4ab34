package nonce

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestIssuer(t *testing.T, now *time.Time) *Issuer {
	t.Helper()
	iss, err := NewIssuer(testSecret, WithClock(func() time.Time { return *now }))
	require.NoError(t, err)
	return iss
}

func TestNewIssuerRejectsShortSecret(t *testing.T) {
	_, err := NewIssuer("short")
	require.Error(t, err)
}

func TestFormNonceRoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 0)
	iss := newTestIssuer(t, &now)

	tok, err := iss.FormNonce("42")
	require.NoError(t, err)
	require.Equal(t, now.Add(defaultFormTTL), tok.ExpiresAt)

	require.NoError(t, iss.VerifyForm(tok.Value, "42"))
	require.ErrorIs(t, iss.VerifyForm(tok.Value, "43"), ErrInvalid)
}

func TestCustomerNonceExpiresAfterTwoMinutes(t *testing.T) {
	now := time.Unix(1700000000, 0)
	iss := newTestIssuer(t, &now)

	tok, err := iss.CustomerNonce("cus_1")
	require.NoError(t, err)
	require.NoError(t, iss.VerifyCustomer(tok.Value, "cus_1"))

	now = now.Add(time.Minute)
	require.NoError(t, iss.VerifyCustomer(tok.Value, "cus_1"))

	now = now.Add(2 * time.Minute)
	err = iss.VerifyCustomer(tok.Value, "cus_1")
	require.ErrorIs(t, err, ErrExpired)
}

func TestNonceScopesDoNotMix(t *testing.T) {
	now := time.Unix(1700000000, 0)
	iss := newTestIssuer(t, &now)

	tok, err := iss.FormNonce("cus_1")
	require.NoError(t, err)
	require.ErrorIs(t, iss.VerifyCustomer(tok.Value, "cus_1"), ErrInvalid)
}

func TestNonceRejectsForeignSignature(t *testing.T) {
	now := time.Unix(1700000000, 0)
	iss := newTestIssuer(t, &now)
	other, err := NewIssuer("ffffffffffffffffffffffffffffffff", WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	tok, err := other.FormNonce("42")
	require.NoError(t, err)

	err = iss.VerifyForm(tok.Value, "42")
	require.True(t, errors.Is(err, ErrInvalid))
	require.ErrorIs(t, iss.VerifyForm("", "42"), ErrInvalid)
	require.ErrorIs(t, iss.VerifyForm("not-a-token", "42"), ErrInvalid)
}
