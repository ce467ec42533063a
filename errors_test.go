package identity_test

import (
	"fmt"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identity "github.com/greenloop/go-identity"
)

func TestSentinelTextCodes(t *testing.T) {
	tests := []struct {
		err      error
		textCode string
		category goerrors.Category
	}{
		{identity.ErrDuplicateEmail, identity.TextCodeDuplicateEmail, goerrors.CategoryConflict},
		{identity.ErrInvalidInput, identity.TextCodeInvalidInput, goerrors.CategoryBadInput},
		{identity.ErrInvalidCredentials, identity.TextCodeInvalidCredentials, goerrors.CategoryAuth},
		{identity.ErrAccountLocked, identity.TextCodeAccountLocked, goerrors.CategoryRateLimit},
		{identity.ErrAccountPendingApproval, identity.TextCodePendingApproval, goerrors.CategoryAuth},
		{identity.ErrAccountRejected, identity.TextCodeAccountRejected, goerrors.CategoryAuth},
		{identity.ErrAccountDeactivated, identity.TextCodeAccountDeactivated, goerrors.CategoryAuth},
		{identity.ErrSessionInvalidated, identity.TextCodeSessionInvalidated, goerrors.CategoryAuth},
		{identity.ErrTokenInvalid, identity.TextCodeTokenInvalid, goerrors.CategoryValidation},
		{identity.ErrTokenExpired, identity.TextCodeTokenExpired, goerrors.CategoryValidation},
		{identity.ErrStoreUnavailable, identity.TextCodeStoreUnavailable, goerrors.CategoryInternal},
		{identity.ErrEmptyPassword, identity.TextCodeEmptyPassword, goerrors.CategoryValidation},
	}

	for _, tt := range tests {
		t.Run(tt.textCode, func(t *testing.T) {
			var richErr *goerrors.Error
			require.True(t, goerrors.As(tt.err, &richErr))
			assert.Equal(t, tt.textCode, richErr.TextCode)
			assert.Equal(t, tt.category, richErr.Category)
		})
	}
}

func TestPredicatesMatchOnlyTheirCode(t *testing.T) {
	assert.True(t, identity.IsInvalidCredentials(identity.ErrInvalidCredentials))
	assert.False(t, identity.IsInvalidCredentials(identity.ErrAccountLocked))

	assert.True(t, identity.IsAccountLocked(identity.ErrAccountLocked))
	assert.False(t, identity.IsAccountLocked(identity.ErrInvalidCredentials))

	assert.True(t, identity.IsDuplicateEmail(identity.ErrDuplicateEmail))
	assert.True(t, identity.IsTokenInvalid(identity.ErrTokenInvalid))
	assert.True(t, identity.IsTokenExpired(identity.ErrTokenExpired))
	assert.True(t, identity.IsStoreUnavailable(identity.ErrStoreUnavailable))
	assert.True(t, identity.IsSessionInvalidated(identity.ErrSessionInvalidated))
	assert.True(t, identity.IsInvalidInput(identity.ErrInvalidInput))

	assert.False(t, identity.IsInvalidCredentials(nil))
	assert.False(t, identity.IsInvalidCredentials(fmt.Errorf("plain error")))
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("login failed: %w", identity.ErrInvalidCredentials)
	assert.True(t, identity.IsInvalidCredentials(wrapped))

	rewrapped := goerrors.Wrap(identity.ErrTokenExpired, goerrors.CategoryOperation, "reset failed")
	assert.True(t, identity.IsTokenExpired(rewrapped))
}

func TestAccountLockedErrorCarriesDeadline(t *testing.T) {
	until := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	err := identity.AccountLockedError(until)

	assert.True(t, identity.IsAccountLocked(err))

	got, ok := identity.LockedUntil(err)
	require.True(t, ok)
	assert.Equal(t, until, got)

	_, ok = identity.LockedUntil(identity.ErrInvalidCredentials)
	assert.False(t, ok, "no deadline on other errors")

	_, ok = identity.LockedUntil(fmt.Errorf("plain error"))
	assert.False(t, ok)
}

func TestSessionInvalidatedErrorCarriesReason(t *testing.T) {
	err := identity.SessionInvalidatedError("deactivated")

	assert.True(t, identity.IsSessionInvalidated(err))

	reason, ok := identity.InvalidatedReason(err)
	require.True(t, ok)
	assert.Equal(t, "deactivated", reason)

	_, ok = identity.InvalidatedReason(identity.ErrTokenInvalid)
	assert.False(t, ok)
}

func TestMetadataDoesNotMutateSentinel(t *testing.T) {
	a := identity.SessionInvalidatedError("deactivated")
	b := identity.SessionInvalidatedError("not found")

	reasonA, _ := identity.InvalidatedReason(a)
	reasonB, _ := identity.InvalidatedReason(b)
	assert.Equal(t, "deactivated", reasonA)
	assert.Equal(t, "not found", reasonB)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(identity.ErrSessionInvalidated, &richErr))
	_, leaked := richErr.Metadata["reason"]
	assert.False(t, leaked, "builders must copy, not mutate, the sentinel")
}
