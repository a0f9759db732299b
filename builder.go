package lockstep

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/lockstep-auth/lockstep/store"
	"github.com/lockstep-auth/lockstep/token"
)

// Builder assembles an Engine. Configure it during initialization, call
// Build once, and discard it; a Builder is not safe for concurrent use.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  store.Store

	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the builder's configuration wholesale. Key material is
// copied, so the caller's slices stay independent of the built engine.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the Redis client backing the default token store. The
// client's lifecycle stays with the caller.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore supplies a custom token store, e.g. [store.PostgresStore]. It
// takes precedence over WithRedis.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithAuditSink supplies the destination for audit events. Without a sink
// audit stays disabled regardless of [AuditConfig].
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles rotation latency buckets. Implies nothing
// unless metrics are also enabled.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine. A Builder
// builds at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	st := b.store
	if st == nil {
		if b.redis == nil {
			return nil, errors.New("token store required: provide WithRedis or WithStore")
		}
		st = store.NewRedisStore(b.redis, cfg.Store.RedisPrefix)
	}

	signer, err := token.NewSigner(cfg.signerConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}

	engine := &Engine{
		config:  cfg,
		signer:  signer,
		store:   st,
		metrics: NewMetrics(cfg.Metrics),
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink),
	}

	b.built = true

	return engine, nil
}
