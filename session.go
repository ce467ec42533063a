package identity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is the ephemeral, client-held copy of the non-secret subset of a
// profile. It is only ever as valid as its last successful revalidation
// against the store and must never be treated as authoritative.
type Session struct {
	UserID        uuid.UUID      `json:"user_id"`
	Email         string         `json:"email"`
	Role          Role           `json:"role"`
	Status        ApprovalStatus `json:"status"`
	AccountStatus AccountStatus  `json:"account_status"`
	LastLoginAt   *time.Time     `json:"last_login_at,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	Authenticated bool           `json:"authenticated"`
}

// snapshotProfile copies the non-secret profile fields into a session. The
// password digest never crosses this boundary.
func snapshotProfile(profile *Profile) *Session {
	if profile == nil {
		return nil
	}

	var attrs map[string]any
	if len(profile.Attributes) > 0 {
		attrs = make(map[string]any, len(profile.Attributes))
		for k, v := range profile.Attributes {
			attrs[k] = v
		}
	}

	return &Session{
		UserID:        profile.ID,
		Email:         profile.Email,
		Role:          profile.Role,
		Status:        profile.Status,
		AccountStatus: profile.AccountStatus,
		LastLoginAt:   profile.LastLoginAt,
		Attributes:    attrs,
		Authenticated: true,
	}
}

// HasRole reports whether the cached session carries the given role. It reads
// only the snapshot and never triggers a store call.
func (s *Session) HasRole(role Role) bool {
	if s == nil || !s.Authenticated {
		return false
	}
	return s.Role == role
}

// IsAdmin reports whether the session belongs to an administrator.
func (s *Session) IsAdmin() bool { return s.HasRole(RoleAdmin) }

// IsCollector reports whether the session belongs to a collector.
func (s *Session) IsCollector() bool { return s.HasRole(RoleCollector) }

// IsRecyclingCenter reports whether the session belongs to a recycling center.
func (s *Session) IsRecyclingCenter() bool { return s.HasRole(RoleRecyclingCenter) }

func (s Session) String() string {
	lastLogin := "<nil>"
	if s.LastLoginAt != nil {
		lastLogin = s.LastLoginAt.Format(time.RFC1123)
	}
	return fmt.Sprintf(
		"user=%s role=%s status=%s account=%s auth=%t last_login=%s",
		s.UserID,
		s.Role,
		s.Status,
		s.AccountStatus,
		s.Authenticated,
		lastLogin,
	)
}
