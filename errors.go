package identity

import (
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

const (
	TextCodeDuplicateEmail     = "DUPLICATE_EMAIL"
	TextCodeInvalidInput       = "INVALID_INPUT"
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeAccountLocked      = "ACCOUNT_LOCKED"
	TextCodePendingApproval    = "ACCOUNT_PENDING_APPROVAL"
	TextCodeAccountRejected    = "ACCOUNT_REJECTED"
	TextCodeAccountDeactivated = "ACCOUNT_DEACTIVATED"
	TextCodeSessionInvalidated = "SESSION_INVALIDATED"
	TextCodeTokenInvalid       = "TOKEN_INVALID"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeStoreUnavailable   = "STORE_UNAVAILABLE"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
)

// ErrDuplicateEmail is returned when registering an email that already exists.
var ErrDuplicateEmail = errors.New("email is already registered", errors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(errors.CodeConflict)

// ErrInvalidInput is returned for malformed registration or reset payloads.
var ErrInvalidInput = errors.New("invalid input", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidInput).
	WithCode(errors.CodeBadRequest)

// ErrInvalidCredentials covers both an unknown email and a wrong password so
// failures never leak whether an account exists.
var ErrInvalidCredentials = errors.New("invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrAccountLocked is returned while a lockout window is active, even when the
// presented password is correct.
var ErrAccountLocked = errors.New("account temporarily locked", errors.CategoryRateLimit).
	WithTextCode(TextCodeAccountLocked)

// ErrAccountPendingApproval is returned for accounts awaiting administrative
// activation.
var ErrAccountPendingApproval = errors.New("account is pending approval", errors.CategoryAuth).
	WithTextCode(TextCodePendingApproval).
	WithCode(errors.CodeForbidden)

// ErrAccountRejected is returned for accounts whose registration was rejected.
var ErrAccountRejected = errors.New("account registration was rejected", errors.CategoryAuth).
	WithTextCode(TextCodeAccountRejected).
	WithCode(errors.CodeForbidden)

// ErrAccountDeactivated is returned when the account record itself is no
// longer valid (deactivated or deleted by an administrator).
var ErrAccountDeactivated = errors.New("account is deactivated", errors.CategoryAuth).
	WithTextCode(TextCodeAccountDeactivated).
	WithCode(errors.CodeForbidden)

// ErrSessionInvalidated is returned by Validate after tearing down a session
// whose backing record diverged. The reason rides in the metadata.
var ErrSessionInvalidated = errors.New("session invalidated", errors.CategoryAuth).
	WithTextCode(TextCodeSessionInvalidated).
	WithCode(errors.CodeUnauthorized)

// ErrTokenInvalid is returned for unknown or already consumed reset tokens.
var ErrTokenInvalid = errors.New("invalid or already used reset token", errors.CategoryValidation).
	WithTextCode(TextCodeTokenInvalid)

// ErrTokenExpired is returned for reset tokens outside their validity window.
var ErrTokenExpired = errors.New("reset token has expired", errors.CategoryValidation).
	WithTextCode(TextCodeTokenExpired)

// ErrStoreUnavailable is surfaced once the retry executor has exhausted its
// attempts against a transiently failing store.
var ErrStoreUnavailable = errors.New("profile store unavailable", errors.CategoryInternal).
	WithTextCode(TextCodeStoreUnavailable)

// ErrEmptyPassword rejects empty plaintext before it reaches the hasher.
var ErrEmptyPassword = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword)

// AccountLockedError builds an ErrAccountLocked carrying the lock deadline.
func AccountLockedError(until time.Time) *errors.Error {
	return cloneSentinel(ErrAccountLocked).WithMetadata(map[string]any{
		"locked_until": until,
	})
}

// SessionInvalidatedError builds an ErrSessionInvalidated with the divergence
// reason ("not found", "deactivated", "deleted").
func SessionInvalidatedError(reason string) *errors.Error {
	return cloneSentinel(ErrSessionInvalidated).WithMetadata(map[string]any{
		"reason": reason,
	})
}

// DuplicateEmailError builds an ErrDuplicateEmail naming the conflicting email.
func DuplicateEmailError(email string) *errors.Error {
	return cloneSentinel(ErrDuplicateEmail).WithMetadata(map[string]any{
		"email": email,
	})
}

// InvalidInputError builds an ErrInvalidInput carrying field-level detail.
func InvalidInputError(meta map[string]any) *errors.Error {
	return cloneSentinel(ErrInvalidInput).WithMetadata(meta)
}

// cloneSentinel copies a package sentinel before per-call metadata is
// attached, since WithMetadata mutates its receiver.
func cloneSentinel(sentinel *errors.Error) *errors.Error {
	clone := sentinel.Clone()
	if clone == nil {
		return sentinel
	}
	return clone
}

// IsDuplicateEmail reports whether err is a duplicate registration conflict.
func IsDuplicateEmail(err error) bool {
	return hasTextCode(err, TextCodeDuplicateEmail)
}

// IsInvalidInput reports whether err is a payload validation rejection.
func IsInvalidInput(err error) bool {
	return hasTextCode(err, TextCodeInvalidInput)
}

// IsTokenInvalid reports whether err is an unknown or consumed reset token.
func IsTokenInvalid(err error) bool {
	return hasTextCode(err, TextCodeTokenInvalid)
}

// IsTokenExpired reports whether err is an expired reset token.
func IsTokenExpired(err error) bool {
	return hasTextCode(err, TextCodeTokenExpired)
}

// IsStoreUnavailable reports whether err is an exhausted-retries store fault.
func IsStoreUnavailable(err error) bool {
	return hasTextCode(err, TextCodeStoreUnavailable)
}

// IsAccountLocked reports whether err is a lockout rejection.
func IsAccountLocked(err error) bool {
	return hasTextCode(err, TextCodeAccountLocked)
}

// IsInvalidCredentials reports whether err is the shared credential failure.
func IsInvalidCredentials(err error) bool {
	return hasTextCode(err, TextCodeInvalidCredentials)
}

// IsSessionInvalidated reports whether err came from a torn-down session.
func IsSessionInvalidated(err error) bool {
	return hasTextCode(err, TextCodeSessionInvalidated)
}

// LockedUntil extracts the lock deadline from an ErrAccountLocked, if present.
func LockedUntil(err error) (time.Time, bool) {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return time.Time{}, false
	}
	until, ok := richErr.Metadata["locked_until"].(time.Time)
	return until, ok
}

// InvalidatedReason extracts the teardown reason from an ErrSessionInvalidated.
func InvalidatedReason(err error) (string, bool) {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return "", false
	}
	reason, ok := richErr.Metadata["reason"].(string)
	return reason, ok
}

// logRichError logs a structured error with its category, text code, and
// pretty-printed metadata when available.
func logRichError(logger Logger, msg string, err error) {
	if logger == nil || err == nil {
		return
	}

	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		logger.Error("%s: %v", msg, err)
		return
	}

	logger.Error("%s: %s",
		msg,
		richErr.Message,
	)
	logger.Debug("category=%s text_code=%s details=%s",
		richErr.Category,
		richErr.TextCode,
		print.MaybePrettyJSON(richErr.Metadata),
	)
}

func hasTextCode(err error, code string) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}
