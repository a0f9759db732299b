// Package token implements stateless signing and verification of the access
// and refresh JWTs issued by the rotation engine, plus the one-way digest used
// as the store lookup key.
//
// # Architecture boundaries
//
// This package owns cryptographic token handling only. Rotation policy, reuse
// detection, and persistence are handled by the Engine and the store package.
//
// # What this package must NOT do
//
//   - Perform any I/O or touch the token store.
//   - Import lockstep, store, or middleware.
//   - Decide what happens on verification failure beyond returning sentinels.
package token
