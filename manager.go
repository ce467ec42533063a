package identity

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/sync/singleflight"
)

// DefaultRevalidateInterval is how often an established session is
// reconciled against the authoritative store.
var DefaultRevalidateInterval = 30 * time.Second

// Manager holds the locally cached authenticated identity, performs login and
// logout, and revalidates the cached identity against the store, tearing the
// session down on divergence. It is an explicit instance with injected
// dependencies: multiple managers can coexist and tests substitute fakes.
type Manager struct {
	store        CredentialStore
	hasher       PasswordHasher
	clock        Clock
	logger       Logger
	registration *RegistrationWorkflow
	throttle     *LoginThrottle
	resetFlow    *PasswordResetFlow
	codec        *SessionCodec
	blobs        BlobStore
	random       RandomSource

	mu      sync.RWMutex
	session *Session

	validateGroup singleflight.Group
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithClock injects a clock (useful for tests).
func WithClock(clock Clock) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithHasher overrides the password hasher.
func WithHasher(hasher PasswordHasher) ManagerOption {
	return func(m *Manager) {
		if hasher != nil {
			m.hasher = hasher
		}
	}
}

// WithManagerLogger overrides the logger.
func WithManagerLogger(logger Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRandomSource overrides the random source used for reset tokens.
func WithRandomSource(random RandomSource) ManagerOption {
	return func(m *Manager) {
		if random != nil {
			m.random = random
		}
	}
}

// WithSessionPersistence wires a codec and host blob store so the session
// snapshot survives process restarts. Purely a UI-responsiveness
// optimization; a rehydrated session is unauthenticated until validated.
func WithSessionPersistence(codec *SessionCodec, blobs BlobStore) ManagerOption {
	return func(m *Manager) {
		m.codec = codec
		m.blobs = blobs
	}
}

// NewManager builds a session manager over the given store.
func NewManager(store CredentialStore, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:  store,
		hasher: BcryptHasher{},
		clock:  SystemClock(),
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if m.random == nil {
		m.random = CryptoRandom()
	}

	m.registration = NewRegistrationWorkflow(store, m.hasher).WithLogger(m.logger)
	m.throttle = NewLoginThrottle(store, m.clock).WithLogger(m.logger)
	m.resetFlow = NewPasswordResetFlow(store, m.hasher, m.clock, m.random).WithLogger(m.logger)

	return m
}

// Register runs the registration workflow. A PUBLIC registrant walks away
// with an authenticated cached session; approval-gated roles receive only the
// confirmation payload.
func (m *Manager) Register(ctx context.Context, data Registration) (*RegistrationOutcome, error) {
	outcome, err := m.registration.Register(ctx, data)
	if err != nil {
		return nil, err
	}

	if outcome.Session != nil && !outcome.PendingApproval {
		session := *outcome.Session
		m.cacheSession(ctx, &session)
	}

	return outcome, nil
}

// Login authenticates email/password. Admission strictly precedes
// verification and verification strictly precedes counter mutation: a locked
// account is never charged an extra failed attempt, and a correct password on
// a locked account is still rejected.
func (m *Manager) Login(ctx context.Context, email, password string) (*Session, error) {
	profile, err := m.store.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if goerrors.IsNotFound(err) {
			// Same error as a wrong password so failures never reveal
			// whether the account exists.
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	profile.EnsureDefaults()

	if profile.AccountStatus != AccountActive {
		return nil, ErrAccountDeactivated
	}

	switch profile.Status {
	case StatusActive:
	case StatusPendingApproval:
		return nil, ErrAccountPendingApproval
	case StatusRejected:
		return nil, ErrAccountRejected
	default:
		// An unrecognized status is a data integrity problem, never a
		// successful login.
		return nil, goerrors.New("profile has unrecognized status", goerrors.CategoryInternal).
			WithMetadata(map[string]any{"status": string(profile.Status)})
	}

	if err := m.throttle.CheckAdmission(profile); err != nil {
		return nil, err
	}

	if err := m.hasher.ComparePasswordAndHash(password, profile.PasswordDigest); err != nil {
		if !IsInvalidCredentials(err) {
			return nil, err
		}
		if _, terr := m.throttle.RecordFailure(ctx, profile); terr != nil {
			m.logger.Error("failed to record login failure: %v", terr)
		}
		return nil, ErrInvalidCredentials
	}

	if err := m.throttle.RecordSuccess(ctx, profile); err != nil {
		m.logger.Error("failed to record successful login: %v", err)
	}

	session := snapshotProfile(profile)
	m.cacheSession(ctx, session)

	return m.Current(), nil
}

// Logout clears the cached session. Idempotent; the teardown is synchronous
// so no caller observes a stale authenticated flag afterwards.
func (m *Manager) Logout(ctx context.Context) {
	m.teardown(ctx)
}

// Validate re-fetches the profile behind the cached session and reconciles.
// Any divergence (record gone, deactivated, deleted) tears the session down
// before returning; otherwise the cached fields are refreshed from the
// authoritative record, since role or status may have changed out of band.
// Concurrent calls collapse into one in-flight check.
func (m *Manager) Validate(ctx context.Context) (*Session, error) {
	m.mu.RLock()
	cached := m.session
	m.mu.RUnlock()

	if cached == nil {
		return nil, SessionInvalidatedError("not authenticated")
	}

	result, err, _ := m.validateGroup.Do("validate", func() (any, error) {
		return m.revalidate(ctx, cached)
	})

	if err != nil {
		return nil, err
	}

	return result.(*Session), nil
}

func (m *Manager) revalidate(ctx context.Context, cached *Session) (*Session, error) {
	profile, err := m.store.FindByID(ctx, cached.UserID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			m.teardownSession(ctx, cached)
			return nil, SessionInvalidatedError("not found")
		}
		// Store unavailability is not divergence. Session validity is
		// binary, so an unreachable store still tears the session down.
		m.teardownSession(ctx, cached)
		return nil, err
	}

	profile.EnsureDefaults()

	// Anything other than an active record invalidates the session,
	// unrecognized status values included.
	if profile.AccountStatus != AccountActive {
		m.teardownSession(ctx, cached)
		return nil, SessionInvalidatedError(string(profile.AccountStatus))
	}

	session := snapshotProfile(profile)
	if !m.refreshSession(ctx, cached, session) {
		// Torn down while the fetch was in flight (logout racing a
		// revalidation tick). The teardown wins; never resurrect it.
		return nil, SessionInvalidatedError("not authenticated")
	}

	return m.Current(), nil
}

// refreshSession installs the refreshed snapshot only while the session it
// refreshes is still the cached one. Returns false when the session was torn
// down or replaced since the revalidation began.
func (m *Manager) refreshSession(ctx context.Context, cached, session *Session) bool {
	m.mu.Lock()
	if m.session == nil || m.session.UserID != cached.UserID {
		m.mu.Unlock()
		return false
	}
	m.session = session
	m.mu.Unlock()

	m.persistBlob(ctx, session)

	return true
}

// StartRevalidation reconciles immediately and then on every interval tick
// until ctx is cancelled. Launches its own goroutine.
func (m *Manager) StartRevalidation(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRevalidateInterval
	}

	go func() {
		if _, err := m.Validate(ctx); err != nil && !IsSessionInvalidated(err) {
			m.logger.Warn("session revalidation failed: %v", err)
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.Validate(ctx); err != nil {
					if IsSessionInvalidated(err) {
						m.logger.Info("session invalidated by store: %v", err)
						return
					}
					m.logger.Warn("session revalidation failed: %v", err)
				}
			}
		}
	}()
}

// ChangePassword re-verifies the current password before hashing and storing
// the new one. The session is kept.
func (m *Manager) ChangePassword(ctx context.Context, current, newPassword string) error {
	m.mu.RLock()
	cached := m.session
	m.mu.RUnlock()

	if cached == nil {
		return SessionInvalidatedError("not authenticated")
	}

	profile, err := m.store.FindByID(ctx, cached.UserID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			m.teardownSession(ctx, cached)
			return SessionInvalidatedError("not found")
		}
		return err
	}

	if err := m.hasher.ComparePasswordAndHash(current, profile.PasswordDigest); err != nil {
		if IsInvalidCredentials(err) {
			return ErrInvalidCredentials
		}
		return err
	}

	digest, err := m.hasher.HashPassword(newPassword)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash new password")
	}

	return m.store.ResetCredentials(ctx, profile.ID, digest)
}

// RequestPasswordReset issues a reset token. The result never reveals whether
// the email exists.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) (*ResetRequestReceipt, error) {
	return m.resetFlow.RequestReset(ctx, email)
}

// ResetPassword consumes a single-use reset token and installs the new
// password.
func (m *Manager) ResetPassword(ctx context.Context, token, newPassword string) error {
	return m.resetFlow.Reset(ctx, token, newPassword)
}

// Rehydrate restores the cached session from the host blob store. The
// restored snapshot is unauthenticated; Validate is invoked to confirm it
// against the store before it counts.
func (m *Manager) Rehydrate(ctx context.Context) (*Session, error) {
	if m.codec == nil || m.blobs == nil {
		return nil, SessionInvalidatedError("no session persistence configured")
	}

	blob, err := m.blobs.Get(ctx)
	if err != nil || blob == "" {
		return nil, SessionInvalidatedError("no persisted session")
	}

	session, err := m.codec.Decode(blob)
	if err != nil {
		_ = m.blobs.Clear(ctx)
		return nil, err
	}

	m.mu.Lock()
	m.session = session
	m.mu.Unlock()

	return m.Validate(ctx)
}

// Current returns a copy of the cached session, or nil when unauthenticated.
// It never triggers a store call.
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return nil
	}

	copied := *m.session
	return &copied
}

// HasRole reads only the cached session.
func (m *Manager) HasRole(role Role) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.HasRole(role)
}

// IsAdmin reads only the cached session.
func (m *Manager) IsAdmin() bool { return m.HasRole(RoleAdmin) }

// IsCollector reads only the cached session.
func (m *Manager) IsCollector() bool { return m.HasRole(RoleCollector) }

// IsRecyclingCenter reads only the cached session.
func (m *Manager) IsRecyclingCenter() bool { return m.HasRole(RoleRecyclingCenter) }

func (m *Manager) cacheSession(ctx context.Context, session *Session) {
	m.mu.Lock()
	m.session = session
	m.mu.Unlock()

	m.persistBlob(ctx, session)
}

func (m *Manager) teardown(ctx context.Context) {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()

	m.clearBlob(ctx)
}

// teardownSession clears the cached session only while it is still the one
// the caller validated, so an in-flight check for a stale session never
// destroys a session established after it started.
func (m *Manager) teardownSession(ctx context.Context, cached *Session) {
	m.mu.Lock()
	if m.session == nil || m.session.UserID != cached.UserID {
		m.mu.Unlock()
		return
	}
	m.session = nil
	m.mu.Unlock()

	m.clearBlob(ctx)
}

func (m *Manager) clearBlob(ctx context.Context) {
	if m.blobs == nil {
		return
	}
	if err := m.blobs.Clear(ctx); err != nil {
		m.logger.Warn("failed to clear persisted session blob: %v", err)
	}
}

func (m *Manager) persistBlob(ctx context.Context, session *Session) {
	if m.codec == nil || m.blobs == nil || session == nil {
		return
	}

	blob, err := m.codec.Encode(session)
	if err != nil {
		m.logger.Warn("failed to encode session blob: %v", err)
		return
	}

	if err := m.blobs.Put(ctx, blob); err != nil {
		m.logger.Warn("failed to persist session blob: %v", err)
	}
}
