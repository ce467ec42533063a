package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// ResetTokenTTL is the validity window for a reset token.
const ResetTokenTTL = 24 * time.Hour

// ResetTokenBytes is the entropy of the opaque token before hex encoding.
const ResetTokenBytes = 32

// ResetRequestReceipt is the success-shaped result every RequestReset call
// returns, whether or not the email exists, so the flow never becomes an
// account enumeration oracle.
type ResetRequestReceipt struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

// PasswordResetFlow issues, validates, and consumes single-use, time-boxed
// reset tokens.
type PasswordResetFlow struct {
	store  CredentialStore
	hasher PasswordHasher
	clock  Clock
	random RandomSource
	logger Logger
}

// NewPasswordResetFlow builds the flow. Clock and random source default to the
// system implementations.
func NewPasswordResetFlow(store CredentialStore, hasher PasswordHasher, clock Clock, random RandomSource) *PasswordResetFlow {
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	if clock == nil {
		clock = SystemClock()
	}
	if random == nil {
		random = CryptoRandom()
	}
	return &PasswordResetFlow{
		store:  store,
		hasher: hasher,
		clock:  clock,
		random: random,
		logger: defLogger{},
	}
}

func (f *PasswordResetFlow) WithLogger(logger Logger) *PasswordResetFlow {
	if logger != nil {
		f.logger = logger
	}
	return f
}

// RequestReset issues a token when email maps to an active account. The
// receipt is identical either way; only the store knows the difference.
func (f *PasswordResetFlow) RequestReset(ctx context.Context, email string) (*ResetRequestReceipt, error) {
	email = NormalizeEmail(email)

	receipt := &ResetRequestReceipt{
		Email:   email,
		Message: "If an account exists for this email, a password reset link has been sent.",
	}

	profile, err := f.store.FindByEmail(ctx, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return receipt, nil
		}
		return nil, err
	}

	if profile.AccountStatus != AccountActive {
		return receipt, nil
	}

	opaque, err := f.random.Token(ResetTokenBytes)
	if err != nil {
		return nil, err
	}

	token := &ResetToken{
		ID:        uuid.New(),
		Email:     email,
		Token:     opaque,
		ExpiresAt: f.clock.Now().Add(ResetTokenTTL),
	}

	if _, err := f.store.InsertToken(ctx, token); err != nil {
		return nil, err
	}

	f.logger.Info("password reset token issued for %s", email)

	return receipt, nil
}

// Reset consumes a token and installs the new password. The digest update
// (which also clears the attempt counter and any lock) happens before the
// token is marked used, so a crash between the two steps leaves the token
// reusable rather than burning it with the password unchanged.
func (f *PasswordResetFlow) Reset(ctx context.Context, token, newPassword string) error {
	record, err := f.store.FindToken(ctx, token)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrTokenInvalid
		}
		return err
	}

	if record.Used {
		return ErrTokenInvalid
	}

	if record.Expired(f.clock.Now()) {
		return ErrTokenExpired
	}

	profile, err := f.store.FindByEmail(ctx, record.Email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrTokenInvalid
		}
		return err
	}

	digest, err := f.hasher.HashPassword(newPassword)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash new password")
	}

	if err := f.store.ResetCredentials(ctx, profile.ID, digest); err != nil {
		return err
	}

	if err := f.store.MarkTokenUsed(ctx, record.ID); err != nil {
		return err
	}

	f.logger.Info("password reset completed for %s", record.Email)

	return nil
}
