package identity

import (
	"context"
	"time"
)

// MaxLoginAttempts is the number of consecutive failures that locks an
// account. Fixed policy, not configurable per call, so enforcement is
// consistent everywhere the throttle is consulted.
const MaxLoginAttempts = 5

// LockoutDuration is how long a locked account refuses logins, correct
// password included.
const LockoutDuration = 30 * time.Minute

// LoginThrottle tracks failed-attempt counters and lock timestamps per
// account and decides whether a login attempt is admitted.
type LoginThrottle struct {
	store  CredentialStore
	clock  Clock
	logger Logger
}

// NewLoginThrottle builds a throttle over the given store.
func NewLoginThrottle(store CredentialStore, clock Clock) *LoginThrottle {
	if clock == nil {
		clock = SystemClock()
	}
	return &LoginThrottle{
		store:  store,
		clock:  clock,
		logger: defLogger{},
	}
}

func (t *LoginThrottle) WithLogger(logger Logger) *LoginThrottle {
	if logger != nil {
		t.logger = logger
	}
	return t
}

// CheckAdmission refuses the attempt while a lockout window is active. An
// elapsed lock admits the next attempt; the stale timestamp is cleared by the
// next successful login.
func (t *LoginThrottle) CheckAdmission(profile *Profile) error {
	if profile == nil {
		return ErrInvalidCredentials
	}

	if profile.IsLocked(t.clock.Now()) {
		return AccountLockedError(*profile.LockedUntil)
	}

	return nil
}

// RecordFailure increments the attempt counter and, at the threshold, starts
// a lockout window. Returns the updated attempt count.
func (t *LoginThrottle) RecordFailure(ctx context.Context, profile *Profile) (int, error) {
	profile.LoginAttempts++

	if profile.LoginAttempts >= MaxLoginAttempts {
		until := t.clock.Now().Add(LockoutDuration)
		profile.LockedUntil = &until
		t.logger.Warn("account locked after %d failed logins: %s", profile.LoginAttempts, profile.ID)
	}

	if err := t.store.TrackFailedLogin(ctx, profile, profile.LockedUntil); err != nil {
		return profile.LoginAttempts, err
	}

	return profile.LoginAttempts, nil
}

// RecordSuccess zeroes the counter, clears any lock, and stamps the login
// time.
func (t *LoginThrottle) RecordSuccess(ctx context.Context, profile *Profile) error {
	now := t.clock.Now()

	if err := t.store.TrackSuccessfulLogin(ctx, profile, now); err != nil {
		return err
	}

	profile.LoginAttempts = 0
	profile.LockedUntil = nil
	profile.LastLoginAt = &now

	return nil
}
