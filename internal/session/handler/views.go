package handler

import (
	"time"

	"resume-builder/backend/internal/session/cleanup"
	"resume-builder/backend/internal/session/domain"
)

type sessionJSON struct {
	ID           string            `json:"id"`
	UserID       string            `json:"userId,omitempty"`
	DeviceInfo   domain.DeviceInfo `json:"deviceInfo"`
	IPAddress    string            `json:"ipAddress"`
	Location     string            `json:"location"`
	CountryCode  *string           `json:"countryCode"`
	Status       domain.Status     `json:"status"`
	CreatedAt    time.Time         `json:"createdAt"`
	LastActiveAt time.Time         `json:"lastActiveAt"`
	ExpiresAt    time.Time         `json:"expiresAt"`
	RevokedAt    *time.Time        `json:"revokedAt,omitempty"`
	RevokedBy    *domain.RevokedBy `json:"revokedBy,omitempty"`
	IsCurrent    bool              `json:"isCurrent"`
}

// toJSON never exposes the session token hash or the refresh token ID.
func toJSON(s *domain.Session, now time.Time, withUser bool) sessionJSON {
	out := sessionJSON{
		ID:           s.ID,
		DeviceInfo:   s.Device,
		IPAddress:    s.IPAddress,
		Location:     s.Location,
		CountryCode:  s.CountryCode,
		Status:       s.Status(now),
		CreatedAt:    s.CreatedAt,
		LastActiveAt: s.LastActiveAt,
		ExpiresAt:    s.ExpiresAt,
		RevokedAt:    s.RevokedAt,
		RevokedBy:    s.RevokedBy,
	}
	if withUser {
		out.UserID = s.UserID
	}
	return out
}

func toJSONList(sessions []*domain.Session, now time.Time, withUser bool) []sessionJSON {
	out := make([]sessionJSON, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toJSON(s, now, withUser))
	}
	return out
}

type cleanupStatusJSON struct {
	Running    bool                  `json:"running"`
	Interval   string                `json:"interval"`
	LastRunAt  *time.Time            `json:"lastRunAt"`
	NextRunAt  *time.Time            `json:"nextRunAt"`
	LastResult *domain.CleanupResult `json:"lastResult"`
	LastError  string                `json:"lastError,omitempty"`
	Passes     int64                 `json:"passes"`
	Skipped    int64                 `json:"skipped"`
}

func cleanupStatusToJSON(st cleanup.Status) cleanupStatusJSON {
	return cleanupStatusJSON{
		Running:    st.Running,
		Interval:   st.Interval.String(),
		LastRunAt:  st.LastRunAt,
		NextRunAt:  st.NextRunAt,
		LastResult: st.LastResult,
		LastError:  st.LastError,
		Passes:     st.Passes,
		Skipped:    st.Skipped,
	}
}
