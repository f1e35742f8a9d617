// Package domain holds the session record and the query shapes used against it.
package domain

import "time"

// RevokedBy names the actor that revoked a session.
type RevokedBy string

const (
	RevokedByUser   RevokedBy = "user"
	RevokedByAdmin  RevokedBy = "admin"
	RevokedBySystem RevokedBy = "system"
)

// Valid reports whether r is one of the known actors.
func (r RevokedBy) Valid() bool {
	switch r {
	case RevokedByUser, RevokedByAdmin, RevokedBySystem:
		return true
	}
	return false
}

// DeviceInfo describes the client device. Descriptive only; overwritten on each refresh.
type DeviceInfo struct {
	DeviceType     string `json:"deviceType"`
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browserVersion"`
	OS             string `json:"os"`
	OSVersion      string `json:"osVersion"`
}

// Client is the per-request metadata recorded on a session: device plus network location.
type Client struct {
	Device      DeviceInfo
	IPAddress   string
	Location    string
	CountryCode string // empty when unknown
}

// Session is one authenticated device/browser instance, independently revocable.
type Session struct {
	ID               string
	UserID           string
	SessionTokenHash string // SHA-256 of the opaque session token; the plain token is never stored
	RefreshTokenID   string // jti of the refresh token this session correlates to
	Device           DeviceInfo
	IPAddress        string
	Location         string
	CountryCode      *string // nil when unknown
	CreatedAt        time.Time
	LastActiveAt     time.Time
	ExpiresAt        time.Time
	IsRevoked        bool
	RevokedAt        *time.Time
	RevokedBy        *RevokedBy
}

// IsActive reports whether s is neither revoked nor expired at now.
func (s *Session) IsActive(now time.Time) bool {
	return !s.IsRevoked && s.ExpiresAt.After(now)
}

// IsExpired reports whether s is past its expiry at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Status returns the session status at now. Revocation takes precedence over expiry.
func (s *Session) Status(now time.Time) Status {
	switch {
	case s.IsRevoked:
		return StatusRevoked
	case s.IsExpired(now):
		return StatusExpired
	default:
		return StatusActive
	}
}

// ApplyClient overwrites the device and location fields from c.
func (s *Session) ApplyClient(c Client) {
	s.Device = c.Device
	s.IPAddress = c.IPAddress
	s.Location = c.Location
	s.CountryCode = CountryCodePtr(c.CountryCode)
}

// CountryCodePtr returns nil for an empty code.
func CountryCodePtr(code string) *string {
	if code == "" {
		return nil
	}
	return &code
}

// Stats summarises all of a user's sessions.
type Stats struct {
	Total           int `json:"total"`
	Active          int `json:"active"`
	Revoked         int `json:"revoked"`
	Expired         int `json:"expired"`
	UniqueDevices   int `json:"uniqueDevices"`
	UniqueLocations int `json:"uniqueLocations"`
}

// CleanupResult is the outcome of one cleanup pass.
type CleanupResult struct {
	ExpiredDeleted    int64 `json:"expiredDeleted"`
	OldRevokedDeleted int64 `json:"oldRevokedDeleted"`
}
