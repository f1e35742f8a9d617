package repository

import (
	"fmt"
	"strings"
	"time"

	"resume-builder/backend/internal/session/domain"
)

// whereBuilder accumulates SQL predicates with positional parameters. Values are only ever
// passed as arguments; never formatted into the query text.
type whereBuilder struct {
	clauses []string
	args    []any
}

// arg appends v and returns its placeholder.
func (b *whereBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *whereBuilder) add(clause string) {
	b.clauses = append(b.clauses, clause)
}

func (b *whereBuilder) sql() string {
	if len(b.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.clauses, " AND ")
}

// buildFilter maps f onto predicates over the sessions table. f must be normalized.
func buildFilter(f domain.Filter, now time.Time) *whereBuilder {
	b := &whereBuilder{}
	if f.UserID != "" {
		b.add("user_id = " + b.arg(f.UserID))
	}
	switch f.Status {
	case domain.StatusActive:
		b.add("NOT is_revoked AND expires_at > " + b.arg(now))
	case domain.StatusExpired:
		b.add("NOT is_revoked AND expires_at <= " + b.arg(now))
	case domain.StatusRevoked:
		b.add("is_revoked")
	}
	if f.DeviceType != "" {
		b.add("lower(device_type) = lower(" + b.arg(f.DeviceType) + ")")
	}
	if f.Location != "" {
		b.add(`location ILIKE '%' || ` + b.arg(escapeLike(f.Location)) + ` || '%' ESCAPE '\'`)
	}
	if f.CreatedFrom != nil {
		b.add("created_at >= " + b.arg(*f.CreatedFrom))
	}
	if f.CreatedTo != nil {
		b.add("created_at <= " + b.arg(*f.CreatedTo))
	}
	return b
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// matchesFilter is the in-memory equivalent of buildFilter.
func matchesFilter(s *domain.Session, f domain.Filter, now time.Time) bool {
	if f.UserID != "" && s.UserID != f.UserID {
		return false
	}
	if f.Status != "" && s.Status(now) != f.Status {
		return false
	}
	if f.DeviceType != "" && !strings.EqualFold(s.Device.DeviceType, f.DeviceType) {
		return false
	}
	if f.Location != "" && !strings.Contains(strings.ToLower(s.Location), strings.ToLower(f.Location)) {
		return false
	}
	if f.CreatedFrom != nil && s.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && s.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	return true
}
