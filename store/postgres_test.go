package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newPostgresStoreTest(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresStore(db), mock, db
}

func TestPostgresCreateSuccess(t *testing.T) {
	s, mock, db := newPostgresStoreTest(t)
	defer db.Close()

	rec := testRecord(1, "u-1", "fam-1", time.Hour)
	q := `(?s)^\s*INSERT\s+INTO\s+refresh_tokens\b.*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6,\s*\$7\)\s*$`

	mock.ExpectExec(q).
		WithArgs(hex.EncodeToString(rec.TokenHash[:]), "u-1", "fam-1", false, false, rec.CreatedAt, rec.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Create(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresCreateConflict(t *testing.T) {
	s, mock, db := newPostgresStoreTest(t)
	defer db.Close()

	rec := testRecord(1, "u-1", "fam-1", time.Hour)

	mock.ExpectExec(`INSERT\s+INTO\s+refresh_tokens`).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

	if err := s.Create(context.Background(), rec); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestPostgresFindByHash(t *testing.T) {
	s, mock, db := newPostgresStoreTest(t)
	defer db.Close()

	hash := testHash(1)
	created := time.Now()
	expires := created.Add(time.Hour)
	q := `(?s)^\s*SELECT\s+subject_id,\s*family_id,\s*used,\s*revoked,\s*created_at,\s*expires_at\s+FROM\s+refresh_tokens\s+WHERE\s+token_hash\s*=\s*\$1\s*$`

	rows := sqlmock.NewRows([]string{"subject_id", "family_id", "used", "revoked", "created_at", "expires_at"}).
		AddRow("u-1", "fam-1", true, false, created, expires)
	mock.ExpectQuery(q).
		WithArgs(hex.EncodeToString(hash[:])).
		WillReturnRows(rows)

	got, err := s.FindByHash(context.Background(), hash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.SubjectID != "u-1" || got.FamilyID != "fam-1" || !got.Used || got.Revoked {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestPostgresFindByHashNotFound(t *testing.T) {
	s, mock, db := newPostgresStoreTest(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+subject_id`).
		WillReturnError(sql.ErrNoRows)

	if _, err := s.FindByHash(context.Background(), testHash(9)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresMarkUsedWinsTransition(t *testing.T) {
	s, mock, db := newPostgresStoreTest(t)
	defer db.Close()

	hash := testHash(1)
	q := `(?s)^\s*UPDATE\s+refresh_tokens\s+SET\s+used\s*=\s*TRUE\s+WHERE\s+token_hash\s*=\s*\$1\s+AND\s+used\s*=\s*FALSE\s*$`

	mock.ExpectExec(q).
		WithArgs(hex.EncodeToString(hash[:])).
		WillReturnResult(sqlmock.NewResult(0, 1))

	won, err := s.MarkUsed(context.Background(), hash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !won {
		t.Fatal("expected winning transition")
	}
}

func TestPostgresMarkUsedAlreadyUsed(t *testing.T) {
	s, mock, db := newPostgresStoreTest(t)
	defer db.Close()

	hash := testHash(1)

	mock.ExpectExec(`UPDATE\s+refresh_tokens\s+SET\s+used\s*=\s*TRUE`).
		WithArgs(hex.EncodeToString(hash[:])).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT\s+EXISTS`).
		WithArgs(hex.EncodeToString(hash[:])).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	won, err := s.MarkUsed(context.Background(), hash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if won {
		t.Fatal("expected already-used report")
	}
}

func TestPostgresMarkUsedNotFound(t *testing.T) {
	s, mock, db := newPostgresStoreTest(t)
	defer db.Close()

	hash := testHash(1)

	mock.ExpectExec(`UPDATE\s+refresh_tokens\s+SET\s+used\s*=\s*TRUE`).
		WithArgs(hex.EncodeToString(hash[:])).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT\s+EXISTS`).
		WithArgs(hex.EncodeToString(hash[:])).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	if _, err := s.MarkUsed(context.Background(), hash); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresRevokeFamilyAndSubject(t *testing.T) {
	s, mock, db := newPostgresStoreTest(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+refresh_tokens\s+SET\s+revoked\s*=\s*TRUE\s+WHERE\s+family_id\s*=\s*\$1`).
		WithArgs("fam-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`UPDATE\s+refresh_tokens\s+SET\s+revoked\s*=\s*TRUE\s+WHERE\s+subject_id\s*=\s*\$1`).
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 5))

	if err := s.RevokeFamily(context.Background(), "fam-1"); err != nil {
		t.Fatalf("revoke family: %v", err)
	}
	if err := s.RevokeSubject(context.Background(), "u-1"); err != nil {
		t.Fatalf("revoke subject: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresPurgeExpired(t *testing.T) {
	s, mock, db := newPostgresStoreTest(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(`DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+expires_at\s*<\s*\$1`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 4))

	deleted, err := s.PurgeExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 4 {
		t.Fatalf("expected 4 deleted rows, got %d", deleted)
	}
}

func TestPostgresStoreUnavailable(t *testing.T) {
	s, mock, db := newPostgresStoreTest(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+refresh_tokens`).
		WillReturnError(errors.New("connection refused"))

	err := s.Create(context.Background(), testRecord(1, "u-1", "fam-1", time.Hour))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
