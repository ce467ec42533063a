package identity

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// StoreAdapter implements CredentialStore on top of the Bun repositories,
// routing every call through the retry executor and normalizing email before
// any query. Semantic failures (not found, duplicate key) propagate
// immediately; transient faults are retried and, once exhausted, resurface as
// the generic ErrStoreUnavailable.
type StoreAdapter struct {
	repo   RepositoryManager
	policy RetryPolicy
	logger Logger
}

var _ CredentialStore = (*StoreAdapter)(nil)

// NewStoreAdapter wraps the repository manager in the retry discipline.
func NewStoreAdapter(repo RepositoryManager, opts ...RetryOption) *StoreAdapter {
	options := append([]RetryOption{WithClassifier(isTransientStoreError)}, opts...)
	return &StoreAdapter{
		repo:   repo,
		policy: NewRetryPolicy(options...),
		logger: defLogger{},
	}
}

func (s *StoreAdapter) WithLogger(logger Logger) *StoreAdapter {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *StoreAdapter) FindByEmail(ctx context.Context, email string) (*Profile, error) {
	return retryStore(ctx, s, func(ctx context.Context) (*Profile, error) {
		return s.repo.Profiles().GetByEmail(ctx, NormalizeEmail(email))
	})
}

func (s *StoreAdapter) FindByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return retryStore(ctx, s, func(ctx context.Context) (*Profile, error) {
		return s.repo.Profiles().GetByID(ctx, id.String())
	})
}

func (s *StoreAdapter) Insert(ctx context.Context, profile *Profile) (*Profile, error) {
	return retryStore(ctx, s, func(ctx context.Context) (*Profile, error) {
		created, err := s.repo.Profiles().Create(ctx, profile)
		if err != nil {
			if isDuplicateKeyError(err) {
				return nil, DuplicateEmailError(profile.Email)
			}
			return nil, err
		}
		return created, nil
	})
}

func (s *StoreAdapter) Update(ctx context.Context, profile *Profile) (*Profile, error) {
	return retryStore(ctx, s, func(ctx context.Context) (*Profile, error) {
		return s.repo.Profiles().Update(ctx, profile, repository.UpdateByID(profile.ID.String()))
	})
}

func (s *StoreAdapter) TrackFailedLogin(ctx context.Context, profile *Profile, lockedUntil *time.Time) error {
	_, err := retryStore(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.repo.Profiles().TrackFailedLogin(ctx, profile, lockedUntil)
	})
	return err
}

func (s *StoreAdapter) TrackSuccessfulLogin(ctx context.Context, profile *Profile, at time.Time) error {
	_, err := retryStore(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.repo.Profiles().TrackSuccessfulLogin(ctx, profile, at)
	})
	return err
}

func (s *StoreAdapter) ResetCredentials(ctx context.Context, id uuid.UUID, passwordDigest string) error {
	_, err := retryStore(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.repo.Profiles().ResetCredentials(ctx, id, passwordDigest)
	})
	return err
}

func (s *StoreAdapter) InsertToken(ctx context.Context, token *ResetToken) (*ResetToken, error) {
	return retryStore(ctx, s, func(ctx context.Context) (*ResetToken, error) {
		return s.repo.ResetTokens().Create(ctx, token)
	})
}

func (s *StoreAdapter) FindToken(ctx context.Context, token string) (*ResetToken, error) {
	return retryStore(ctx, s, func(ctx context.Context) (*ResetToken, error) {
		return s.repo.ResetTokens().GetByToken(ctx, token)
	})
}

func (s *StoreAdapter) MarkTokenUsed(ctx context.Context, id uuid.UUID) error {
	_, err := retryStore(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.repo.ResetTokens().MarkUsed(ctx, id)
	})
	return err
}

// retryStore runs op through the adapter policy. Transient classification
// happens here so repositories stay oblivious to retry concerns.
func retryStore[T any](ctx context.Context, s *StoreAdapter, op func(ctx context.Context) (T, error)) (T, error) {
	result, err := Retry(ctx, s.policy, op)
	if err != nil && isTransientStoreError(err) {
		logRichError(s.logger, "store call failed after retries", err)
		var zero T
		return zero, goerrors.Wrap(err, ErrStoreUnavailable.Category, ErrStoreUnavailable.Message).
			WithTextCode(ErrStoreUnavailable.TextCode)
	}
	return result, err
}

// isTransientStoreError classifies store failures that are likely to succeed
// on retry: broken connections, timeouts, sqlite write contention. Semantic
// failures (not found, constraint violations) are permanent.
func isTransientStoreError(err error) bool {
	if err == nil {
		return false
	}
	if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
		return false
	}
	if isDuplicateKeyError(err) {
		return false
	}
	if IsTransient(err) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "i/o timeout"),
		strings.Contains(msg, "database is locked"):
		return true
	}
	return false
}

func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, TextCodeDuplicateEmail) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
