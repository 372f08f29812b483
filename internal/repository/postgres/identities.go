package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nisum/oppenheimer/internal/core/domain"
	"github.com/nisum/oppenheimer/internal/repository"
)

const (
	identitiesTable = "identities"
	phonesTable     = "phones"

	// EmailUniqueConstraint is the index that guarantees one identity per email.
	EmailUniqueConstraint = "identities_email_key"

	uniqueViolationCode = "23505"
)

// Schema creates the identity tables. Statements are idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS identities (
		id            UUID PRIMARY KEY,
		name          VARCHAR(55) NOT NULL,
		email         VARCHAR(55) NOT NULL,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		modified_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS identities_email_key ON identities (email)`,
	`CREATE TABLE IF NOT EXISTS phones (
		id           UUID PRIMARY KEY,
		identity_id  UUID NOT NULL REFERENCES identities (id) ON DELETE CASCADE,
		number       BIGINT NOT NULL,
		city_code    SMALLINT NOT NULL,
		country_code SMALLINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS phones_identity_id_idx ON phones (identity_id)`,
}

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// IdentityRepository implements port.IdentityRepository backed by PostgreSQL.
type IdentityRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewIdentityRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewIdentityRepository(exec pgExecutor) *IdentityRepository {
	return &IdentityRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the timestamp source used by Save.
func (r *IdentityRepository) WithClock(clock func() time.Time) *IdentityRepository {
	if clock != nil {
		r.now = clock
	}
	return r
}

// EnsureSchema applies Schema.
func (r *IdentityRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := r.exec.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply identity schema: %w", err)
		}
	}
	return nil
}

// ExistsByEmail reports whether an identity is bound to email.
func (r *IdentityRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	stmt, args, err := r.builder.
		Select("1").
		Prefix("SELECT EXISTS (").
		From(identitiesTable).
		Where(squirrel.Eq{"email": strings.ToLower(strings.TrimSpace(email))}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists identity sql: %w", err)
	}

	var exists bool
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("query identity by email: %w", err)
	}
	return exists, nil
}

// Save inserts the identity and its phones in one transaction and stamps
// CreatedAt and ModifiedAt.
func (r *IdentityRepository) Save(ctx context.Context, identity domain.Identity) (domain.Identity, error) {
	stamp := r.now()
	identity.CreatedAt = stamp
	identity.ModifiedAt = stamp

	identityStmt, identityArgs, err := r.builder.Insert(identitiesTable).
		Columns("id", "name", "email", "password_hash", "created_at", "modified_at").
		Values(identity.ID, identity.Name, identity.Email, identity.PasswordHash, identity.CreatedAt, identity.ModifiedAt).
		ToSql()
	if err != nil {
		return domain.Identity{}, fmt.Errorf("build insert identity sql: %w", err)
	}

	var (
		phoneStmt string
		phoneArgs []any
	)
	if len(identity.Phones) > 0 {
		insert := r.builder.Insert(phonesTable).
			Columns("id", "identity_id", "number", "city_code", "country_code")
		for _, phone := range identity.Phones {
			insert = insert.Values(phone.ID, identity.ID, phone.Number, phone.CityCode, phone.CountryCode)
		}
		phoneStmt, phoneArgs, err = insert.ToSql()
		if err != nil {
			return domain.Identity{}, fmt.Errorf("build insert phones sql: %w", err)
		}
	}

	tx, err := r.exec.Begin(ctx)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("begin identity tx: %w", err)
	}

	if _, err := tx.Exec(ctx, identityStmt, identityArgs...); err != nil {
		_ = tx.Rollback(ctx)
		if isUniqueViolation(err) {
			return domain.Identity{}, repository.ErrDuplicateEmail
		}
		return domain.Identity{}, fmt.Errorf("insert identity: %w", err)
	}

	if phoneStmt != "" {
		if _, err := tx.Exec(ctx, phoneStmt, phoneArgs...); err != nil {
			_ = tx.Rollback(ctx)
			return domain.Identity{}, fmt.Errorf("insert phones: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.Identity{}, repository.ErrDuplicateEmail
		}
		return domain.Identity{}, fmt.Errorf("commit identity tx: %w", err)
	}

	return identity, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolationCode &&
		(pgErr.ConstraintName == "" || pgErr.ConstraintName == EmailUniqueConstraint)
}
