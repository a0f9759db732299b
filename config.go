package lockstep

import (
	"time"

	"github.com/lockstep-auth/lockstep/token"
)

// Config defines the engine configuration. Instances are configured during
// initialization and treated as immutable afterwards.
type Config struct {
	JWT     JWTConfig
	Store   StoreConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

// JWTConfig controls token signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default, shared secret) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// StoreConfig controls the built-in Redis store and the expiry sweep.
type StoreConfig struct {
	RedisPrefix   string
	PurgeInterval time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the recommended defaults: 15-minute access tokens,
// 7-day refresh tokens, shared-secret signing, hourly purge.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: string(token.MethodHS256),
		},
		Store: StoreConfig{
			RedisPrefix:   "ls",
			PurgeInterval: time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// cloneConfig deep-copies the key material so callers cannot mutate a built
// engine's configuration through retained slices.
func cloneConfig(c Config) Config {
	out := c
	out.JWT.PrivateKey = cloneBytes(c.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(c.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c Config) signerConfig() token.Config {
	return token.Config{
		AccessTTL:  c.JWT.AccessTTL,
		RefreshTTL: c.JWT.RefreshTTL,
		Method:     token.Method(c.JWT.SigningMethod),
		PrivateKey: c.JWT.PrivateKey,
		PublicKey:  c.JWT.PublicKey,
		Issuer:     c.JWT.Issuer,
		Leeway:     c.JWT.Leeway,
	}
}
