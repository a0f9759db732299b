package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/lockstep-auth/lockstep/store/migrations"
)

const pgUniqueViolation = "23505"

// DBTX is the subset of database/sql the Postgres store uses. Both *sql.DB
// and *sql.Tx satisfy it, so callers can run the store inside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore is a Postgres-backed [Store]. MarkUsed relies on a single
// conditional UPDATE, so the used flag transition is decided by the database,
// not by an application-level read-then-write.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore constructs a store bound to the given DBTX.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres opens a pgx-backed database handle for dsn and applies the
// embedded goose migrations.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.UpContext(ctx, db, "."); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return db, nil
}

// Create inserts rec. Duplicate token hashes violate the primary key and
// surface as [ErrConflict].
func (s *PostgresStore) Create(ctx context.Context, rec Record) error {
	query := `
		INSERT INTO refresh_tokens (token_hash, subject_id, family_id, used, revoked, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		hex.EncodeToString(rec.TokenHash[:]), rec.SubjectID, rec.FamilyID,
		rec.Used, rec.Revoked, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// FindByHash returns the record stored under hash, or [ErrNotFound].
func (s *PostgresStore) FindByHash(ctx context.Context, hash [32]byte) (*Record, error) {
	query := `
		SELECT subject_id, family_id, used, revoked, created_at, expires_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`
	rec := &Record{TokenHash: hash}
	err := s.db.QueryRowContext(ctx, query, hex.EncodeToString(hash[:])).Scan(
		&rec.SubjectID, &rec.FamilyID, &rec.Used, &rec.Revoked, &rec.CreatedAt, &rec.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rec, nil
}

// MarkUsed performs the used=false→true transition as one conditional UPDATE
// and reports whether this call won it.
func (s *PostgresStore) MarkUsed(ctx context.Context, hash [32]byte) (bool, error) {
	hashHex := hex.EncodeToString(hash[:])

	res, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET used = TRUE WHERE token_hash = $1 AND used = FALSE`,
		hashHex,
	)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if affected == 1 {
		return true, nil
	}

	// Zero rows: either the record is missing or another caller already won
	// the transition. The CAS itself is settled; this read only classifies.
	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE token_hash = $1)`,
		hashHex,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

// RevokeFamily marks every record sharing familyID revoked.
func (s *PostgresStore) RevokeFamily(ctx context.Context, familyID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE family_id = $1`,
		familyID,
	); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RevokeSubject marks every record owned by subjectID revoked.
func (s *PostgresStore) RevokeSubject(ctx context.Context, subjectID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE subject_id = $1`,
		subjectID,
	); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// PurgeExpired deletes rows past their expiry, regardless of used/revoked
// state, and returns how many were removed.
func (s *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return affected, nil
}
