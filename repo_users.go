package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Action-token mutations run as single statements so the paired columns
// change together: verification consumes token and flips is_verified, reset
// finalization swaps the hash and drops both reset columns.
var ConsumeVerificationTokenSQL = `UPDATE "users" AS "usr"
SET
	"is_verified" = TRUE,
	"verification_token" = NULL,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."verification_token" = ?
RETURNING *;`

var SetPasswordResetTokenSQL = `UPDATE "users" AS "usr"
SET
	"password_reset_token" = ?,
	"password_reset_expiry" = ?,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."email" = ?
RETURNING *;`

var FinalizePasswordResetSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"password_reset_token" = NULL,
	"password_reset_expiry" = NULL,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."password_reset_token" = ?
RETURNING *;`

// Users is the credential store contract
type Users interface {
	repository.Repository[*User]

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)

	GetByResetToken(ctx context.Context, token string) (*User, error)
	GetByResetTokenTx(ctx context.Context, tx bun.IDB, token string) (*User, error)

	ConsumeVerificationToken(ctx context.Context, token string) (*User, error)
	ConsumeVerificationTokenTx(ctx context.Context, tx bun.IDB, token string) (*User, error)

	SetPasswordResetToken(ctx context.Context, email, token string, expiry time.Time) (*User, error)
	SetPasswordResetTokenTx(ctx context.Context, tx bun.IDB, email, token string, expiry time.Time) (*User, error)

	FinalizePasswordReset(ctx context.Context, token, passwordHash string) (*User, error)
	FinalizePasswordResetTx(ctx context.Context, tx bun.IDB, token, passwordHash string) (*User, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

// NewUsersRepository builds the Users repository over a bun database
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": NormalizeEmail(email),
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) GetByResetToken(ctx context.Context, token string) (*User, error) {
	return a.GetByResetTokenTx(ctx, a.db, token)
}

func (a *users) GetByResetTokenTx(ctx context.Context, tx bun.IDB, token string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.password_reset_token = ?", token).
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

func (a *users) ConsumeVerificationToken(ctx context.Context, token string) (*User, error) {
	return a.ConsumeVerificationTokenTx(ctx, a.db, token)
}

func (a *users) ConsumeVerificationTokenTx(ctx context.Context, tx bun.IDB, token string) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, ConsumeVerificationTokenSQL, token)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"field": "verification_token",
			})
	}

	return res[0], nil
}

func (a *users) SetPasswordResetToken(ctx context.Context, email, token string, expiry time.Time) (*User, error) {
	return a.SetPasswordResetTokenTx(ctx, a.db, email, token, expiry)
}

func (a *users) SetPasswordResetTokenTx(ctx context.Context, tx bun.IDB, email, token string, expiry time.Time) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, SetPasswordResetTokenSQL, token, expiry.UTC(), NormalizeEmail(email))
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"email": NormalizeEmail(email),
			})
	}

	return res[0], nil
}

func (a *users) FinalizePasswordReset(ctx context.Context, token, passwordHash string) (*User, error) {
	return a.FinalizePasswordResetTx(ctx, a.db, token, passwordHash)
}

func (a *users) FinalizePasswordResetTx(ctx context.Context, tx bun.IDB, token, passwordHash string) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, FinalizePasswordResetSQL, passwordHash, token)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"field": "password_reset_token",
			})
	}

	return res[0], nil
}
