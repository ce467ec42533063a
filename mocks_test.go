package identity_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	identity "github.com/greenloop/go-identity"
)

func notFoundErr(kind string) error {
	return goerrors.New(kind+" not found", goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound)
}

// memStore is an in-memory CredentialStore used by flow tests. failNext
// injects transient faults so retry behavior is observable.
type memStore struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*identity.Profile
	byEmail  map[string]uuid.UUID
	tokens   map[string]*identity.ResetToken
	failNext int
}

func newMemStore() *memStore {
	return &memStore{
		profiles: map[uuid.UUID]*identity.Profile{},
		byEmail:  map[string]uuid.UUID{},
		tokens:   map[string]*identity.ResetToken{},
	}
}

func (s *memStore) maybeFail() error {
	if s.failNext > 0 {
		s.failNext--
		return identity.MarkTransient(fmt.Errorf("store hiccup"))
	}
	return nil
}

func (s *memStore) seed(p *identity.Profile) *identity.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	cp.Email = identity.NormalizeEmail(cp.Email)
	s.profiles[cp.ID] = &cp
	s.byEmail[cp.Email] = cp.ID
	out := cp
	return &out
}

func (s *memStore) FindByEmail(ctx context.Context, email string) (*identity.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.maybeFail(); err != nil {
		return nil, err
	}
	id, ok := s.byEmail[identity.NormalizeEmail(email)]
	if !ok {
		return nil, notFoundErr("profile")
	}
	cp := *s.profiles[id]
	return &cp, nil
}

func (s *memStore) FindByID(ctx context.Context, id uuid.UUID) (*identity.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.maybeFail(); err != nil {
		return nil, err
	}
	p, ok := s.profiles[id]
	if !ok {
		return nil, notFoundErr("profile")
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) Insert(ctx context.Context, profile *identity.Profile) (*identity.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.maybeFail(); err != nil {
		return nil, err
	}
	email := identity.NormalizeEmail(profile.Email)
	if _, exists := s.byEmail[email]; exists {
		return nil, identity.ErrDuplicateEmail
	}
	cp := *profile
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	cp.Email = email
	s.profiles[cp.ID] = &cp
	s.byEmail[email] = cp.ID
	out := cp
	return &out, nil
}

func (s *memStore) Update(ctx context.Context, profile *identity.Profile) (*identity.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.maybeFail(); err != nil {
		return nil, err
	}
	if _, ok := s.profiles[profile.ID]; !ok {
		return nil, notFoundErr("profile")
	}
	cp := *profile
	s.profiles[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *memStore) TrackFailedLogin(ctx context.Context, profile *identity.Profile, lockedUntil *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.maybeFail(); err != nil {
		return err
	}
	p, ok := s.profiles[profile.ID]
	if !ok {
		return notFoundErr("profile")
	}
	p.LoginAttempts = profile.LoginAttempts
	p.LockedUntil = lockedUntil
	return nil
}

func (s *memStore) TrackSuccessfulLogin(ctx context.Context, profile *identity.Profile, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.maybeFail(); err != nil {
		return err
	}
	p, ok := s.profiles[profile.ID]
	if !ok {
		return notFoundErr("profile")
	}
	p.LoginAttempts = 0
	p.LockedUntil = nil
	p.LastLoginAt = &at
	return nil
}

func (s *memStore) ResetCredentials(ctx context.Context, id uuid.UUID, passwordDigest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.maybeFail(); err != nil {
		return err
	}
	p, ok := s.profiles[id]
	if !ok {
		return notFoundErr("profile")
	}
	p.PasswordDigest = passwordDigest
	p.LoginAttempts = 0
	p.LockedUntil = nil
	return nil
}

func (s *memStore) InsertToken(ctx context.Context, token *identity.ResetToken) (*identity.ResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.maybeFail(); err != nil {
		return nil, err
	}
	cp := *token
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	s.tokens[cp.Token] = &cp
	out := cp
	return &out, nil
}

func (s *memStore) FindToken(ctx context.Context, token string) (*identity.ResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.maybeFail(); err != nil {
		return nil, err
	}
	t, ok := s.tokens[token]
	if !ok {
		return nil, notFoundErr("token")
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) MarkTokenUsed(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.maybeFail(); err != nil {
		return err
	}
	for _, t := range s.tokens {
		if t.ID == id {
			t.Used = true
			return nil
		}
	}
	return notFoundErr("token")
}

func (s *memStore) profileByEmail(email string) *identity.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[identity.NormalizeEmail(email)]
	if !ok {
		return nil
	}
	cp := *s.profiles[id]
	return &cp
}

var _ identity.CredentialStore = (*memStore)(nil)

// retryingStore wraps memStore lookups in the retry discipline so flow
// tests can exercise transient-fault absorption without a real database.
type retryingStore struct {
	*memStore
	policy identity.RetryPolicy
}

func newRetryingStore(store *memStore) *retryingStore {
	return &retryingStore{
		memStore: store,
		policy: identity.NewRetryPolicy(
			identity.WithSleep(func(context.Context, time.Duration) error { return nil }),
		),
	}
}

func (s *retryingStore) FindByID(ctx context.Context, id uuid.UUID) (*identity.Profile, error) {
	return identity.Retry(ctx, s.policy, func(ctx context.Context) (*identity.Profile, error) {
		return s.memStore.FindByID(ctx, id)
	})
}

func (s *retryingStore) FindByEmail(ctx context.Context, email string) (*identity.Profile, error) {
	return identity.Retry(ctx, s.policy, func(ctx context.Context) (*identity.Profile, error) {
		return s.memStore.FindByEmail(ctx, email)
	})
}

var _ identity.CredentialStore = (*retryingStore)(nil)

// gateStore holds FindByID until released so tests can interleave other
// manager calls with an in-flight revalidation.
type gateStore struct {
	*memStore
	entered chan struct{}
	release chan struct{}
}

func newGateStore(store *memStore) *gateStore {
	return &gateStore{
		memStore: store,
		entered:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
}

func (s *gateStore) FindByID(ctx context.Context, id uuid.UUID) (*identity.Profile, error) {
	s.entered <- struct{}{}
	<-s.release
	return s.memStore.FindByID(ctx, id)
}

var _ identity.CredentialStore = (*gateStore)(nil)

// MockCredentialStore is a testify mock for tests that need call
// expectations rather than behavior.
type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) FindByEmail(ctx context.Context, email string) (*identity.Profile, error) {
	args := m.Called(ctx, email)
	p, _ := args.Get(0).(*identity.Profile)
	return p, args.Error(1)
}

func (m *MockCredentialStore) FindByID(ctx context.Context, id uuid.UUID) (*identity.Profile, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*identity.Profile)
	return p, args.Error(1)
}

func (m *MockCredentialStore) Insert(ctx context.Context, profile *identity.Profile) (*identity.Profile, error) {
	args := m.Called(ctx, profile)
	p, _ := args.Get(0).(*identity.Profile)
	return p, args.Error(1)
}

func (m *MockCredentialStore) Update(ctx context.Context, profile *identity.Profile) (*identity.Profile, error) {
	args := m.Called(ctx, profile)
	p, _ := args.Get(0).(*identity.Profile)
	return p, args.Error(1)
}

func (m *MockCredentialStore) TrackFailedLogin(ctx context.Context, profile *identity.Profile, lockedUntil *time.Time) error {
	args := m.Called(ctx, profile, lockedUntil)
	return args.Error(0)
}

func (m *MockCredentialStore) TrackSuccessfulLogin(ctx context.Context, profile *identity.Profile, at time.Time) error {
	args := m.Called(ctx, profile, at)
	return args.Error(0)
}

func (m *MockCredentialStore) ResetCredentials(ctx context.Context, id uuid.UUID, passwordDigest string) error {
	args := m.Called(ctx, id, passwordDigest)
	return args.Error(0)
}

func (m *MockCredentialStore) InsertToken(ctx context.Context, token *identity.ResetToken) (*identity.ResetToken, error) {
	args := m.Called(ctx, token)
	t, _ := args.Get(0).(*identity.ResetToken)
	return t, args.Error(1)
}

func (m *MockCredentialStore) FindToken(ctx context.Context, token string) (*identity.ResetToken, error) {
	args := m.Called(ctx, token)
	t, _ := args.Get(0).(*identity.ResetToken)
	return t, args.Error(1)
}

func (m *MockCredentialStore) MarkTokenUsed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

var _ identity.CredentialStore = (*MockCredentialStore)(nil)

// fakeClock is a frozen, advanceable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock {
	return &fakeClock{now: at}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var _ identity.Clock = (*fakeClock)(nil)

// fakeRandom produces predictable tokens.
type fakeRandom struct {
	mu      sync.Mutex
	counter int
}

func (r *fakeRandom) Token(size int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter++
	return fmt.Sprintf("token-%04d", r.counter), nil
}

var _ identity.RandomSource = (*fakeRandom)(nil)

// fastHasher avoids bcrypt's deliberate slowness in flow tests.
type fastHasher struct{}

func (fastHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", identity.ErrEmptyPassword
	}
	return "digest:" + password, nil
}

func (fastHasher) ComparePasswordAndHash(password, hash string) error {
	if hash == "digest:"+password {
		return nil
	}
	return identity.ErrInvalidCredentials
}

var _ identity.PasswordHasher = fastHasher{}

// memBlobStore is an in-memory host blob store.
type memBlobStore struct {
	mu   sync.Mutex
	blob string
}

func (b *memBlobStore) Put(ctx context.Context, blob string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blob = blob
	return nil
}

func (b *memBlobStore) Get(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blob, nil
}

func (b *memBlobStore) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blob = ""
	return nil
}

var _ identity.BlobStore = (*memBlobStore)(nil)
