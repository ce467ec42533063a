package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ApprovalStatus governs whether login is permitted for an account.
type ApprovalStatus string

const (
	// StatusActive accounts may authenticate.
	StatusActive ApprovalStatus = "active"
	// StatusPendingApproval accounts await administrative activation.
	StatusPendingApproval ApprovalStatus = "pending_approval"
	// StatusRejected accounts had their registration declined.
	StatusRejected ApprovalStatus = "rejected"
)

// AccountStatus governs whether the record itself is still valid, regardless
// of approval status. Deactivation and deletion are administrative actions the
// core detects but never performs.
type AccountStatus string

const (
	AccountActive      AccountStatus = "active"
	AccountDeactivated AccountStatus = "deactivated"
	AccountDeleted     AccountStatus = "deleted"
)

// ParseApprovalStatus validates a stored approval status value.
func ParseApprovalStatus(s string) (ApprovalStatus, bool) {
	switch ApprovalStatus(s) {
	case StatusActive, StatusPendingApproval, StatusRejected:
		return ApprovalStatus(s), true
	default:
		return "", false
	}
}

// ParseAccountStatus validates a stored account status value.
func ParseAccountStatus(s string) (AccountStatus, bool) {
	switch AccountStatus(s) {
	case AccountActive, AccountDeactivated, AccountDeleted:
		return AccountStatus(s), true
	default:
		return "", false
	}
}

// Profile is the persistent user record. The store owns it; this core mutates
// it only through CredentialStore. PasswordDigest never crosses the server
// trust boundary: it is stripped before any value reaches session state.
type Profile struct {
	bun.BaseModel  `bun:"table:profiles,alias:prf"`
	ID             uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email          string         `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordDigest string         `bun:"password_digest,notnull" json:"-"`
	Role           Role           `bun:"role,notnull" json:"role,omitempty"`
	Status         ApprovalStatus `bun:"status,notnull" json:"status,omitempty"`
	AccountStatus  AccountStatus  `bun:"account_status,notnull" json:"account_status,omitempty"`
	LoginAttempts  int            `bun:"login_attempts" json:"login_attempts,omitempty"`
	LockedUntil    *time.Time     `bun:"locked_until,nullzero" json:"locked_until,omitempty"`
	LastLoginAt    *time.Time     `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	Attributes     map[string]any `bun:"attributes" json:"attributes,omitempty"`
	CreatedAt      *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// EnsureDefaults backfills zero-valued status fields on records created before
// the columns existed.
func (p *Profile) EnsureDefaults() {
	if p == nil {
		return
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
	if p.AccountStatus == "" {
		p.AccountStatus = AccountActive
	}
}

// SetAttribute appends role-specific payload (vehicle/license info, center
// registration number). The core stores it opaquely and never validates it.
func (p *Profile) SetAttribute(key string, val any) *Profile {
	if p.Attributes == nil {
		p.Attributes = make(map[string]any)
	}
	p.Attributes[key] = val
	return p
}

// IsLocked reports whether a lockout window is active at the given instant.
func (p *Profile) IsLocked(now time.Time) bool {
	return p.LockedUntil != nil && p.LockedUntil.After(now)
}

// NormalizeEmail lowercases and trims an email so lookups and uniqueness
// checks are case and whitespace insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ResetToken is a single-use, time-boxed password reset capability. It moves
// unused to used exactly once; any later presentation is rejected regardless
// of the validity window.
type ResetToken struct {
	bun.BaseModel `bun:"table:password_reset_tokens,alias:prt"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"token,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	Used          bool       `bun:"used" json:"used,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Expired reports whether the token is outside its validity window.
func (t *ResetToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
