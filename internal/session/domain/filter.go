package domain

import (
	"fmt"
	"time"
)

// Status is a derived session state used for filtering.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// ParseStatus validates a status filter value. Empty means any status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case "", StatusActive, StatusExpired, StatusRevoked:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown session status %q", s)
}

const (
	DefaultFilterLimit = 50
	MaxFilterLimit     = 100
)

// Filter selects sessions for device-management views and admin tooling.
// Zero-valued fields do not constrain the result.
type Filter struct {
	UserID      string
	Status      Status
	DeviceType  string
	Location    string // case-insensitive substring
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// Normalized returns f with limit and offset clamped to their allowed ranges.
func (f Filter) Normalized() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultFilterLimit
	}
	if f.Limit > MaxFilterLimit {
		f.Limit = MaxFilterLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Page is one page of filtered sessions plus the total number of matches.
type Page struct {
	Sessions []*Session
	Total    int
	Limit    int
	Offset   int
}
