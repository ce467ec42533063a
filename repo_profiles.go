package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ResetProfileCredentialsSQL = `UPDATE "profiles" AS "prf"
SET
	"password_digest" = ?,
	"login_attempts" = 0,
	"locked_until" = NULL
WHERE
	"prf"."id" = ?
RETURNING *;`

// Profiles is the persistence surface for user profiles. Login tracking uses
// raw SQL because counter resets must clear columns the ORM would skip as
// zero values.
type Profiles interface {
	repository.Repository[*Profile]

	GetByEmail(ctx context.Context, email string) (*Profile, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Profile, error)

	TrackFailedLogin(ctx context.Context, profile *Profile, lockedUntil *time.Time) error
	TrackFailedLoginTx(ctx context.Context, tx bun.IDB, profile *Profile, lockedUntil *time.Time) error
	TrackSuccessfulLogin(ctx context.Context, profile *Profile, at time.Time) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, profile *Profile, at time.Time) error

	ResetCredentials(ctx context.Context, id uuid.UUID, passwordDigest string) error
	ResetCredentialsTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordDigest string) error
}

type profiles struct {
	repository.Repository[*Profile]
	db *bun.DB
}

var (
	_ Profiles                        = (*profiles)(nil)
	_ repository.Repository[*Profile] = (*profiles)(nil)
)

func NewProfilesRepository(db *bun.DB) Profiles {
	repo := repository.NewRepository[*Profile](db, repository.ModelHandlers[*Profile]{
		NewRecord: func() *Profile { return &Profile{} },
		GetID: func(p *Profile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Profile, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &profiles{
		Repository: repo,
		db:         db,
	}
}

func (r *profiles) GetByEmail(ctx context.Context, email string) (*Profile, error) {
	return r.GetByEmailTx(ctx, r.db, email)
}

func (r *profiles) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Profile, error) {
	email = NormalizeEmail(email)

	record := &Profile{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", email).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": email,
				})
		}
		return nil, err
	}

	return record, nil
}

func (r *profiles) Create(ctx context.Context, record *Profile, criteria ...repository.InsertCriteria) (*Profile, error) {
	return r.CreateTx(ctx, r.db, record, criteria...)
}

func (r *profiles) CreateTx(ctx context.Context, tx bun.IDB, record *Profile, criteria ...repository.InsertCriteria) (*Profile, error) {
	prepareProfileDefaults(record)
	return r.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (r *profiles) TrackFailedLogin(ctx context.Context, profile *Profile, lockedUntil *time.Time) error {
	return r.TrackFailedLoginTx(ctx, r.db, profile, lockedUntil)
}

func (r *profiles) TrackFailedLoginTx(ctx context.Context, tx bun.IDB, profile *Profile, lockedUntil *time.Time) error {
	// NOTE: raw SQL so a nil locked_until actually clears the column.
	_, err := tx.NewRaw(`
		UPDATE "profiles" AS "prf"
		SET
			"login_attempts" = ?,
			"locked_until" = ?
		WHERE
			("prf".id = ?);
	`, profile.LoginAttempts, lockedUntil, profile.ID).Exec(ctx)

	return err
}

func (r *profiles) TrackSuccessfulLogin(ctx context.Context, profile *Profile, at time.Time) error {
	return r.TrackSuccessfulLoginTx(ctx, r.db, profile, at)
}

func (r *profiles) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, profile *Profile, at time.Time) error {
	_, err := tx.NewRaw(`
		UPDATE "profiles" AS "prf"
		SET
			"last_login_at" = ?,
			"login_attempts" = 0,
			"locked_until" = NULL
		WHERE
			("prf".id = ?);
	`, at, profile.ID).Exec(ctx)

	return err
}

func (r *profiles) ResetCredentials(ctx context.Context, id uuid.UUID, passwordDigest string) error {
	return r.ResetCredentialsTx(ctx, r.db, id, passwordDigest)
}

func (r *profiles) ResetCredentialsTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordDigest string) error {
	res, err := r.Repository.RawTx(ctx, tx, ResetProfileCredentialsSQL, passwordDigest, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func prepareProfileDefaults(record *Profile) {
	if record == nil {
		return
	}
	record.Email = NormalizeEmail(record.Email)
	record.EnsureDefaults()
}
