package identity

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Profiles() Profiles
	ResetTokens() ResetTokens
}

// ResetTokens is the persistence surface for single-use reset tokens.
type ResetTokens interface {
	repository.Repository[*ResetToken]

	GetByToken(ctx context.Context, token string) (*ResetToken, error)
	GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*ResetToken, error)
	MarkUsed(ctx context.Context, id uuid.UUID) error
	MarkUsedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type resetTokens struct {
	repository.Repository[*ResetToken]
	db *bun.DB
}

var _ ResetTokens = (*resetTokens)(nil)

func NewResetTokensRepository(db *bun.DB) ResetTokens {
	handlers := repository.ModelHandlers[*ResetToken]{
		NewRecord: func() *ResetToken {
			return &ResetToken{}
		},
		GetID: func(record *ResetToken) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *ResetToken, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "token"
		},
	}
	return &resetTokens{
		Repository: repository.NewRepository(db, handlers),
		db:         db,
	}
}

func (r *resetTokens) GetByToken(ctx context.Context, token string) (*ResetToken, error) {
	return r.GetByTokenTx(ctx, r.db, token)
}

func (r *resetTokens) GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*ResetToken, error) {
	record := &ResetToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", token).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

func (r *resetTokens) MarkUsed(ctx context.Context, id uuid.UUID) error {
	return r.MarkUsedTx(ctx, r.db, id)
}

func (r *resetTokens) MarkUsedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewRaw(`
		UPDATE "password_reset_tokens" AS "prt"
		SET
			"used" = TRUE
		WHERE
			("prt".id = ?);
	`, id).Exec(ctx)

	return err
}

type mngr struct {
	db          *bun.DB
	profiles    Profiles
	resetTokens ResetTokens
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:          db,
		profiles:    NewProfilesRepository(db),
		resetTokens: NewResetTokensRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.profiles == nil {
		return errors.New("repository profiles should be initialized")
	}

	if m.resetTokens == nil {
		return errors.New("repository resetTokens should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Profiles() Profiles {
	return m.profiles
}

func (m mngr) ResetTokens() ResetTokens {
	return m.resetTokens
}
