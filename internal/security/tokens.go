package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenInvalid is returned when a token is malformed, its signature does not match, or iss/aud are wrong.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned when the signature is valid but the token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrWrongTokenType is returned when an access token is presented where a refresh token was required, or vice versa.
	ErrWrongTokenType = errors.New("wrong token type")
	// ErrSharedSigningKey is returned when the access and refresh key pairs are the same.
	ErrSharedSigningKey = errors.New("access and refresh signing keys must differ")
)

// TokenType distinguishes access from refresh tokens inside the claim set.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the claim set shared by access and refresh tokens. Subject is the user ID.
// SessionID is only set on access tokens issued for a redeemed session.
type Claims struct {
	jwt.RegisteredClaims
	TokenType  TokenType `json:"token_type"`
	IsVerified bool      `json:"is_verified"`
	SessionID  string    `json:"sid,omitempty"`
}

// UserID returns the subject claim.
func (c *Claims) UserID() string { return c.Subject }

// Principal is the user identity a token is issued for.
type Principal struct {
	UserID     string
	IsVerified bool
}

// IssuedToken is a signed token together with its jti and expiry.
type IssuedToken struct {
	Token     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// KeyPair is a signing key and its matching verification key.
type KeyPair struct {
	Private crypto.Signer
	Public  crypto.PublicKey
}

// TokenCodec issues and verifies access and refresh JWTs (RS256 or ES256).
// Access and refresh tokens are signed with distinct key pairs so one can never be replayed as the other.
// It holds no mutable state and is safe for concurrent use.
type TokenCodec struct {
	access     KeyPair
	refresh    KeyPair
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	nowF       func() time.Time
}

// NewTokenCodec returns a TokenCodec. Returns ErrSharedSigningKey when both pairs use the same public key.
func NewTokenCodec(access, refresh KeyPair, issuer, audience string, accessTTL, refreshTTL time.Duration) (*TokenCodec, error) {
	if access.Private == nil || access.Public == nil || refresh.Private == nil || refresh.Public == nil {
		return nil, ErrInvalidKey
	}
	if KeyAlg(access.Public) == "" || KeyAlg(refresh.Public) == "" {
		return nil, ErrInvalidKey
	}
	if sameKey(access.Public, refresh.Public) {
		return nil, ErrSharedSigningKey
	}
	return &TokenCodec{
		access:     access,
		refresh:    refresh,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		nowF:       time.Now,
	}, nil
}

// WithClock replaces the time source used for iat/exp and for expiry checks. For tests.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	if now != nil {
		c.nowF = now
	}
	return c
}

// AccessTTL returns the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccessToken issues a short-lived access token for p.
func (c *TokenCodec) IssueAccessToken(p Principal) (IssuedToken, error) {
	return c.issue(p, TokenTypeAccess, "")
}

// IssueSessionAccessToken issues an access token bound to sessionID via the sid claim.
func (c *TokenCodec) IssueSessionAccessToken(p Principal, sessionID string) (IssuedToken, error) {
	return c.issue(p, TokenTypeAccess, sessionID)
}

// IssueRefreshToken issues a long-lived refresh token for p. The returned ID (jti) is the
// refresh token identity that sessions correlate to.
func (c *TokenCodec) IssueRefreshToken(p Principal) (IssuedToken, error) {
	return c.issue(p, TokenTypeRefresh, "")
}

// VerifyAccessToken verifies signature, iss, aud, expiry and token type of an access token.
func (c *TokenCodec) VerifyAccessToken(raw string) (*Claims, error) {
	return c.verify(raw, TokenTypeAccess)
}

// VerifyRefreshToken verifies signature, iss, aud, expiry and token type of a refresh token.
func (c *TokenCodec) VerifyRefreshToken(raw string) (*Claims, error) {
	return c.verify(raw, TokenTypeRefresh)
}

// DecodeUnsafe decodes claims without verifying signature or expiry. Returns nil if the token
// cannot be decoded. Only for branching on token type; never for authorization.
func (c *TokenCodec) DecodeUnsafe(raw string) *Claims {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil
	}
	return claims
}

func (c *TokenCodec) issue(p Principal, typ TokenType, sessionID string) (IssuedToken, error) {
	if p.UserID == "" {
		return IssuedToken{}, ErrTokenInvalid
	}
	jti, err := generateJTI()
	if err != nil {
		return IssuedToken{}, err
	}
	keys, ttl := c.access, c.accessTTL
	if typ == TokenTypeRefresh {
		keys, ttl = c.refresh, c.refreshTTL
	}
	now := c.nowF().UTC()
	iat := jwt.NewNumericDate(now)
	exp := jwt.NewNumericDate(now.Add(ttl))
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   p.UserID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  iat,
			ExpiresAt: exp,
		},
		TokenType:  typ,
		IsVerified: p.IsVerified,
		SessionID:  sessionID,
	}
	token, err := sign(keys.Private, claims)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Token: token, ID: jti, IssuedAt: iat.Time, ExpiresAt: exp.Time}, nil
}

func (c *TokenCodec) verify(raw string, want TokenType) (*Claims, error) {
	keys, other := c.access, c.refresh
	if want == TokenTypeRefresh {
		keys, other = c.refresh, c.access
	}
	claims, err := c.parse(raw, keys.Public)
	if err == nil {
		if claims.TokenType != want {
			return nil, ErrWrongTokenType
		}
		return claims, nil
	}
	// jwt/v5 checks the signature before claims, so an expiry error implies a good signature.
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenExpired
	}
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenUnverifiable) {
		if _, otherErr := c.parse(raw, other.Public); otherErr == nil || errors.Is(otherErr, jwt.ErrTokenExpired) {
			return nil, ErrWrongTokenType
		}
	}
	return nil, ErrTokenInvalid
}

func (c *TokenCodec) parse(raw string, pub crypto.PublicKey) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{KeyAlg(pub)}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.nowF),
	)
	token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return pub, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func sign(key crypto.Signer, claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch key.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidKey
	}
	return jwt.NewWithClaims(method, claims).SignedString(key)
}

func sameKey(a, b crypto.PublicKey) bool {
	eq, ok := a.(interface{ Equal(crypto.PublicKey) bool })
	return ok && eq.Equal(b)
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
