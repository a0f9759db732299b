package lockstep

import "errors"

var (
	// ErrTokenInvalid marks a malformed token or a bad signature. Permanent:
	// the caller must re-authenticate.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired marks a token past its expiry. Permanent for that token.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenReuse marks a refresh token presented after it was already
	// rotated. The whole session family is revoked before this error is
	// returned; the caller must fully re-authenticate.
	ErrTokenReuse = errors.New("refresh token reuse detected")
	// ErrUnauthorized marks an absent, unknown, or revoked token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict marks a duplicate token-hash insert. Should not happen
	// under correct digest usage; fatal to the request.
	ErrConflict = errors.New("token record conflict")
	// ErrSigning marks absent or malformed signing key material.
	ErrSigning = errors.New("token signing failed")
	// ErrStoreUnavailable marks a token store transport failure. The engine
	// never retries; retry policy belongs to the caller.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrEngineNotReady marks use of an engine that was not built.
	ErrEngineNotReady = errors.New("engine not initialized")
)
