// Package middleware provides the HTTP boundary for lockstep: a guard that
// validates bearer access tokens on protected routes, and cookie helpers
// that carry the refresh token between browser and server.
//
// The package only moves tokens across the HTTP boundary. All verification,
// rotation, and revocation decisions stay in the engine.
package middleware
