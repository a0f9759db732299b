// Package store defines the refresh-token record model and the persistence
// contract the rotation engine coordinates through, plus the Redis and
// Postgres implementations of that contract.
//
// # Concurrency contract
//
// MarkUsed is the single cross-request synchronization point of the rotation
// protocol. Implementations must flip used=false→true as one conditional
// write and report whether this call performed the transition; two concurrent
// callers must never both observe "not yet used". Create must reject a
// duplicate token hash atomically. RevokeFamily and RevokeSubject are bulk
// updates and may be eventually consistent across a family's records.
//
// # What this package must NOT do
//
//   - Sign, verify, or hash tokens (the token package owns cryptography).
//   - Decide rotation policy — reuse handling lives in the Engine.
package store
