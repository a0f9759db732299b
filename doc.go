// Package lockstep implements a refresh-token rotation engine: issuance of
// access/refresh token pairs, rotation-on-refresh, detection of refresh-token
// reuse, and cascading revocation of compromised session families.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build]. All cross-request coordination is pushed into the token
// store's atomic mark-used transition; the engine itself holds no locks.
//
// # Architecture boundaries
//
// lockstep is the public surface. It exposes [Engine], [Builder], [Config],
// the error sentinels, and value types (TokenPair, MetricsSnapshot). Token
// cryptography lives in the token subpackage, persistence in store, HTTP
// adaptation in middleware.
//
// # What this package must NOT do
//
//   - Expose backend clients or wire encodings in its public API.
//   - Authenticate credentials — callers verify identity before IssuePair.
//   - Distinguish a legitimate client retry from an attacker replay at the
//     reuse branch; both revoke the family. This ambiguity is inherent to
//     the rotation protocol.
package lockstep
