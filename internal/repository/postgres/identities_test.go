package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/nisum/oppenheimer/internal/core/domain"
	"github.com/nisum/oppenheimer/internal/repository"
)

var savedAt = time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)

func newMockRepository(t *testing.T) (pgxmock.PgxPoolIface, *IdentityRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)

	repo := NewIdentityRepository(mock).WithClock(func() time.Time { return savedAt })
	return mock, repo
}

func sampleIdentity() domain.Identity {
	return domain.Identity{
		ID:           "8d0f4e7a-7a1c-4c1e-9a56-2b0d8f3c2a11",
		Name:         "Juan Rodriguez",
		Email:        "juan@rodriguez.org",
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA",
		Phones: []domain.Phone{
			{ID: "phone-1", Number: 1234567, CityCode: 1, CountryCode: 57},
			{ID: "phone-2", Number: 7654321, CityCode: 2, CountryCode: 57},
		},
		Token: "not-persisted",
	}
}

func TestIdentityRepository_ExistsByEmail(t *testing.T) {
	mock, repo := newMockRepository(t)

	mock.ExpectQuery(`SELECT EXISTS \( SELECT 1 FROM identities WHERE email = \$1 \)`).
		WithArgs("juan@rodriguez.org").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByEmail(context.Background(), " Juan@Rodriguez.org ")
	if err != nil {
		t.Fatalf("ExistsByEmail returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected email to exist")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentityRepository_ExistsByEmailError(t *testing.T) {
	mock, repo := newMockRepository(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("juan@rodriguez.org").
		WillReturnError(errors.New("connection reset"))

	if _, err := repo.ExistsByEmail(context.Background(), "juan@rodriguez.org"); err == nil {
		t.Fatal("expected error")
	}
}

func TestIdentityRepository_SaveStampsAndPersistsPhones(t *testing.T) {
	mock, repo := newMockRepository(t)
	identity := sampleIdentity()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO identities \(id,name,email,password_hash,created_at,modified_at\)`).
		WithArgs(identity.ID, identity.Name, identity.Email, identity.PasswordHash, savedAt, savedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO phones \(id,identity_id,number,city_code,country_code\)`).
		WithArgs(
			"phone-1", identity.ID, int64(1234567), int16(1), int16(57),
			"phone-2", identity.ID, int64(7654321), int16(2), int16(57),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	saved, err := repo.Save(context.Background(), identity)
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if !saved.CreatedAt.Equal(savedAt) || !saved.ModifiedAt.Equal(savedAt) {
		t.Fatalf("expected timestamps to be stamped, got %v/%v", saved.CreatedAt, saved.ModifiedAt)
	}
	if len(saved.Phones) != 2 {
		t.Fatalf("expected phones to be returned, got %d", len(saved.Phones))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentityRepository_SaveWithoutPhones(t *testing.T) {
	mock, repo := newMockRepository(t)
	identity := sampleIdentity()
	identity.Phones = nil

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO identities`).
		WithArgs(identity.ID, identity.Name, identity.Email, identity.PasswordHash, savedAt, savedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if _, err := repo.Save(context.Background(), identity); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentityRepository_SaveDuplicateEmail(t *testing.T) {
	mock, repo := newMockRepository(t)
	identity := sampleIdentity()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO identities`).
		WithArgs(identity.ID, identity.Name, identity.Email, identity.PasswordHash, savedAt, savedAt).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: EmailUniqueConstraint})
	mock.ExpectRollback()

	_, err := repo.Save(context.Background(), identity)
	if !errors.Is(err, repository.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentityRepository_SavePhoneFailureRollsBack(t *testing.T) {
	mock, repo := newMockRepository(t)
	identity := sampleIdentity()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO identities`).
		WithArgs(identity.ID, identity.Name, identity.Email, identity.PasswordHash, savedAt, savedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO phones`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := repo.Save(context.Background(), identity)
	if err == nil || errors.Is(err, repository.ErrDuplicateEmail) {
		t.Fatalf("expected generic insert error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentityRepository_EnsureSchema(t *testing.T) {
	mock, repo := newMockRepository(t)

	for range Schema {
		mock.ExpectExec(`CREATE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
