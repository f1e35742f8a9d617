package security

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodecAt(t *testing.T, now *time.Time) *TokenCodec {
	t.Helper()
	c, err := NewTestTokenCodec()
	require.NoError(t, err)
	return c.WithClock(func() time.Time { return *now })
}

func TestTokenCodec_AccessRoundTrip(t *testing.T) {
	c, err := NewTestTokenCodec()
	require.NoError(t, err)

	tok, err := c.IssueAccessToken(Principal{UserID: "u1", IsVerified: true})
	require.NoError(t, err)
	require.NotEmpty(t, tok.Token)
	require.NotEmpty(t, tok.ID)
	assert.True(t, tok.ExpiresAt.After(time.Now()))

	claims, err := c.VerifyAccessToken(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID())
	assert.True(t, claims.IsVerified)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
	assert.Equal(t, tok.ID, claims.ID)
	assert.Empty(t, claims.SessionID)
}

func TestTokenCodec_RefreshRoundTrip(t *testing.T) {
	c, err := NewTestTokenCodec()
	require.NoError(t, err)

	tok, err := c.IssueRefreshToken(Principal{UserID: "u2"})
	require.NoError(t, err)

	claims, err := c.VerifyRefreshToken(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "u2", claims.UserID())
	assert.Equal(t, TokenTypeRefresh, claims.TokenType)
	assert.Equal(t, tok.ID, claims.ID)
	assert.False(t, claims.IsVerified)
	assert.WithinDuration(t, tok.IssuedAt.Add(TestRefreshTTL), tok.ExpiresAt, time.Second)
}

func TestTokenCodec_SessionAccessToken(t *testing.T) {
	c, err := NewTestTokenCodec()
	require.NoError(t, err)

	tok, err := c.IssueSessionAccessToken(Principal{UserID: "u1"}, "sess-1")
	require.NoError(t, err)
	claims, err := c.VerifyAccessToken(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", claims.SessionID)
}

func TestTokenCodec_EmptyUserID(t *testing.T) {
	c, err := NewTestTokenCodec()
	require.NoError(t, err)
	_, err = c.IssueAccessToken(Principal{})
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenCodec_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := newTestCodecAt(t, &now)

	access, err := c.IssueAccessToken(Principal{UserID: "u1"})
	require.NoError(t, err)
	refresh, err := c.IssueRefreshToken(Principal{UserID: "u1"})
	require.NoError(t, err)

	now = now.Add(TestAccessTTL - time.Second)
	_, err = c.VerifyAccessToken(access.Token)
	require.NoError(t, err)

	now = access.ExpiresAt.Add(time.Second)
	_, err = c.VerifyAccessToken(access.Token)
	assert.ErrorIs(t, err, ErrTokenExpired)
	_, err = c.VerifyRefreshToken(refresh.Token)
	assert.NoError(t, err)

	now = refresh.ExpiresAt.Add(time.Second)
	_, err = c.VerifyRefreshToken(refresh.Token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenCodec_WrongTokenType(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := newTestCodecAt(t, &now)

	access, err := c.IssueAccessToken(Principal{UserID: "u1"})
	require.NoError(t, err)
	refresh, err := c.IssueRefreshToken(Principal{UserID: "u1"})
	require.NoError(t, err)

	_, err = c.VerifyRefreshToken(access.Token)
	assert.ErrorIs(t, err, ErrWrongTokenType)
	_, err = c.VerifyAccessToken(refresh.Token)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	// An expired refresh token replayed as an access token is still reported as the wrong type.
	now = refresh.ExpiresAt.Add(time.Minute)
	_, err = c.VerifyAccessToken(refresh.Token)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestTokenCodec_TokenTypeClaimMismatch(t *testing.T) {
	c, err := NewTestTokenCodec()
	require.NoError(t, err)

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "forged",
			Subject:   "u1",
			Issuer:    TestIssuer,
			Audience:  jwt.ClaimStrings{TestAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
		TokenType: TokenTypeRefresh,
	}
	raw, err := sign(c.access.Private, claims)
	require.NoError(t, err)

	_, err = c.VerifyAccessToken(raw)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestTokenCodec_Invalid(t *testing.T) {
	c, err := NewTestTokenCodec()
	require.NoError(t, err)

	tok, err := c.IssueAccessToken(Principal{UserID: "u1"})
	require.NoError(t, err)

	parts := strings.Split(tok.Token, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	for name, raw := range map[string]string{
		"garbage":  "invalid-token",
		"empty":    "",
		"tampered": tampered,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.VerifyAccessToken(raw)
			assert.ErrorIs(t, err, ErrTokenInvalid)
		})
	}
}

func TestTokenCodec_IssuerAndAudience(t *testing.T) {
	access, err := LoadKeyPair(testAccessPrivateKeyPEM, testAccessPublicKeyPEM)
	require.NoError(t, err)
	refresh, err := LoadKeyPair(testRefreshPrivateKeyPEM, testRefreshPublicKeyPEM)
	require.NoError(t, err)

	other, err := NewTokenCodec(access, refresh, "other-issuer", TestAudience, time.Minute, time.Hour)
	require.NoError(t, err)
	otherAud, err := NewTokenCodec(access, refresh, TestIssuer, "other-audience", time.Minute, time.Hour)
	require.NoError(t, err)
	c, err := NewTestTokenCodec()
	require.NoError(t, err)

	tok, err := other.IssueAccessToken(Principal{UserID: "u1"})
	require.NoError(t, err)
	_, err = c.VerifyAccessToken(tok.Token)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	tok, err = otherAud.IssueRefreshToken(Principal{UserID: "u1"})
	require.NoError(t, err)
	_, err = c.VerifyRefreshToken(tok.Token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestNewTokenCodec_RejectsSharedKey(t *testing.T) {
	access, err := LoadKeyPair(testAccessPrivateKeyPEM, testAccessPublicKeyPEM)
	require.NoError(t, err)

	_, err = NewTokenCodec(access, access, TestIssuer, TestAudience, time.Minute, time.Hour)
	assert.ErrorIs(t, err, ErrSharedSigningKey)

	_, err = NewTokenCodec(access, KeyPair{}, TestIssuer, TestAudience, time.Minute, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestTokenCodec_DecodeUnsafe(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := newTestCodecAt(t, &now)

	tok, err := c.IssueRefreshToken(Principal{UserID: "u9"})
	require.NoError(t, err)
	now = now.Add(48 * time.Hour)

	claims := c.DecodeUnsafe(tok.Token)
	require.NotNil(t, claims)
	assert.Equal(t, TokenTypeRefresh, claims.TokenType)
	assert.Equal(t, "u9", claims.UserID())

	assert.Nil(t, c.DecodeUnsafe("not-a-jwt"))
}
