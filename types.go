package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Clock abstracts time.Now so policies (lockout windows, token expiry,
// revalidation intervals) are testable with a frozen clock.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a func() time.Time into a Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the default wall clock.
func SystemClock() Clock { return ClockFunc(time.Now) }

// RandomSource produces unguessable opaque tokens. The default reads
// crypto/rand; tests substitute a deterministic source.
type RandomSource interface {
	Token(size int) (string, error)
}

// PasswordHasher hashes and verifies credentials. The default implementation
// is bcrypt backed; tests may inject a fast fake.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// CredentialStore is the row-level contract the core consumes from the
// persistent profile table plus the reset token table. Implementations must
// normalize email comparisons and are expected to absorb transient faults
// (see StoreAdapter, which routes every call through the retry executor).
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*Profile, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	Insert(ctx context.Context, profile *Profile) (*Profile, error)
	Update(ctx context.Context, profile *Profile) (*Profile, error)

	// Login tracking bypasses the ORM so counter resets clear columns that
	// partial updates would skip as zero values.
	TrackFailedLogin(ctx context.Context, profile *Profile, lockedUntil *time.Time) error
	TrackSuccessfulLogin(ctx context.Context, profile *Profile, at time.Time) error
	ResetCredentials(ctx context.Context, id uuid.UUID, passwordDigest string) error

	InsertToken(ctx context.Context, token *ResetToken) (*ResetToken, error)
	FindToken(ctx context.Context, token string) (*ResetToken, error)
	MarkTokenUsed(ctx context.Context, id uuid.UUID) error
}

// BlobStore is whatever "write blob, read blob, clear blob" mechanism the
// host environment provides for persisting the non-secret session snapshot
// between process runs. The blob is purely a UI-responsiveness optimization.
type BlobStore interface {
	Put(ctx context.Context, blob string) error
	Get(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
