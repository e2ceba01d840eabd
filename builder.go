package authlimit

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kvarle/authlimit/internal/accesslist"
	"github.com/kvarle/authlimit/internal/keystore"
	"github.com/kvarle/authlimit/internal/persist"
	"github.com/kvarle/authlimit/internal/policy"
	"github.com/kvarle/authlimit/internal/record"
)

// Builder assembles a [Limiter]. Exactly one persistent backend must be
// supplied: a Redis client, a Postgres pool, or a custom [PersistentStore].
type Builder struct {
	config Config

	redisClient redis.UniversalClient
	pgPool      *pgxpool.Pool
	store       PersistentStore

	ledgerSink LedgerSink
	clock      func() time.Time

	built bool
}

// PersistentStore is the pluggable durable backend contract, satisfied by
// the built-in Redis and Postgres stores and by test fakes.
type PersistentStore = persist.Store

// New creates a builder seeded with defaults.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration tree. Zero-valued fields are
// filled with defaults at build time.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithPolicies registers the protected operations. Appends to any policies
// already present in the config.
func (b *Builder) WithPolicies(policies ...Policy) *Builder {
	b.config.Policies = append(b.config.Policies, policies...)
	return b
}

// WithRedis selects the built-in Redis persistent store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redisClient = client
	return b
}

// WithPostgres selects the built-in Postgres persistent store. The pool is
// owned by the caller.
func (b *Builder) WithPostgres(pool *pgxpool.Pool) *Builder {
	b.pgPool = pool
	return b
}

// WithStore supplies a custom persistent backend, overriding WithRedis and
// WithPostgres.
func (b *Builder) WithStore(store PersistentStore) *Builder {
	b.store = store
	return b
}

// WithLedgerSink routes violation events to the given sink.
func (b *Builder) WithLedgerSink(sink LedgerSink) *Builder {
	b.ledgerSink = sink
	return b
}

// WithClock overrides the time source, for deterministic tests.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// Build validates the configuration and returns a running limiter with its
// checkpoint and eviction loops started.
func (b *Builder) Build() (*Limiter, error) {
	if b.built {
		return nil, ErrAlreadyBuilt
	}

	cfg := b.config
	cfg.normalize()

	registry, err := policy.NewRegistry(toInternalPolicies(cfg.Policies))
	if err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		switch {
		case b.redisClient != nil:
			store = persist.NewRedisStore(b.redisClient, cfg.Persistence.RedisPrefix, cfg.Persistence.RecordRetention)
		case b.pgPool != nil:
			store = persist.NewPostgresStore(b.pgPool)
		default:
			return nil, ErrStoreRequired
		}
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	l := &Limiter{
		cfg:      cfg,
		policies: registry,
		access: accesslist.New(accesslist.Seed{
			AllowIPs:   cfg.AccessList.AllowIPs,
			DenyIPs:    cfg.AccessList.DenyIPs,
			AllowUsers: cfg.AccessList.AllowUsers,
			DenyUsers:  cfg.AccessList.DenyUsers,
		}),
		cache:   keystore.New(cfg.KeyStore.Shards),
		store:   store,
		ledger:  newLedgerDispatcher(cfg.Ledger, b.ledgerSink),
		metrics: NewMetrics(cfg.Metrics),
		now:     clock,
		flushCh: make(chan *record.Record, flushQueueSize),
		done:    make(chan struct{}),
	}
	l.start()

	b.built = true
	return l, nil
}

func toInternalPolicies(policies []Policy) []policy.Policy {
	out := make([]policy.Policy, 0, len(policies))
	for _, p := range policies {
		out = append(out, policy.Policy{
			Operation:           p.Operation,
			MaxAttempts:         p.MaxAttempts,
			WindowDuration:      p.WindowDuration,
			BaseBlockDuration:   p.BaseBlockDuration,
			BackoffMultiplier:   p.BackoffMultiplier,
			MaxBlockDuration:    p.MaxBlockDuration,
			ViolationResetAfter: p.ViolationResetAfter,
		})
	}
	return out
}
