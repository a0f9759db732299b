package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record matches the given token hash.
var ErrNotFound = errors.New("refresh token record not found")

// ErrConflict is returned when a record with the same token hash already
// exists. Under correct digest usage this indicates a bug or an attack and
// must fail the request.
var ErrConflict = errors.New("refresh token record already exists")

// ErrUnavailable wraps backend transport failures (Redis or SQL).
var ErrUnavailable = errors.New("token store unavailable")

// Record is the persisted state of one issued refresh token. The raw token is
// never stored; TokenHash is its one-way digest and the only lookup key.
type Record struct {
	TokenHash [32]byte
	SubjectID string
	FamilyID  string
	Used      bool
	Revoked   bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store is the persistence contract for refresh-token records. Any backend
// satisfying these operations and the package-level concurrency contract
// qualifies; the engine takes it as an injected dependency.
type Store interface {
	// Create inserts a new record. Fails with ErrConflict when the token
	// hash is already present.
	Create(ctx context.Context, rec Record) error

	// FindByHash returns the record for hash, or ErrNotFound.
	FindByHash(ctx context.Context, hash [32]byte) (*Record, error)

	// MarkUsed atomically sets used=true on the record matching hash, only
	// if currently unused. It reports whether this call performed the
	// transition; false with a nil error means the record was already used —
	// the reuse-race signal. Missing records fail with ErrNotFound.
	MarkUsed(ctx context.Context, hash [32]byte) (bool, error)

	// RevokeFamily sets revoked=true on every record sharing familyID.
	RevokeFamily(ctx context.Context, familyID string) error

	// RevokeSubject sets revoked=true on every record owned by subjectID.
	RevokeSubject(ctx context.Context, subjectID string) error

	// PurgeExpired physically deletes records whose expiry has passed and
	// returns how many entries it removed. Runs timer-driven, never under
	// request load.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
