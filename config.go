package authlimit

import "time"

// Config is the full configuration tree consumed at build time. Zero values
// fall back to the defaults below; policies have no default and must be
// registered explicitly for every protected operation.
type Config struct {
	Policies    []Policy
	KeyStore    KeyStoreConfig
	Persistence PersistenceConfig
	AccessList  AccessListConfig
	Ledger      LedgerConfig
	Metrics     MetricsConfig
}

// Policy holds the static limiting parameters for one protected operation.
type Policy struct {
	Operation           string
	MaxAttempts         int
	WindowDuration      time.Duration
	BaseBlockDuration   time.Duration
	BackoffMultiplier   float64
	MaxBlockDuration    time.Duration
	ViolationResetAfter time.Duration
}

// KeyStoreConfig tunes the in-process record cache.
type KeyStoreConfig struct {
	Shards           int
	MaxIdle          time.Duration
	EvictionInterval time.Duration
}

// PersistenceConfig tunes durable store interaction. ReadTimeout bounds the
// cache-miss fallback read on the check path; a checkpoint interval tending
// to zero recovers write-through semantics at hot-path cost.
type PersistenceConfig struct {
	CheckpointInterval time.Duration
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	WriteRetries       int
	RetryBackoff       time.Duration
	RedisPrefix        string
	RecordRetention    time.Duration
}

// AccessListConfig seeds the static allow/deny override lists. IP entries
// may be exact addresses or CIDR prefixes.
type AccessListConfig struct {
	AllowIPs   []string
	DenyIPs    []string
	AllowUsers []string
	DenyUsers  []string
}

// LedgerConfig controls violation event dispatching.
type LedgerConfig struct {
	Enabled     bool
	BufferSize  int
	DropIfFull  bool
	EmitAllowed bool
}

// MetricsConfig controls the lock-free counter set.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		KeyStore: KeyStoreConfig{
			Shards:           32,
			MaxIdle:          30 * time.Minute,
			EvictionInterval: 5 * time.Minute,
		},
		Persistence: PersistenceConfig{
			CheckpointInterval: 5 * time.Minute,
			ReadTimeout:        150 * time.Millisecond,
			WriteTimeout:       2 * time.Second,
			WriteRetries:       3,
			RetryBackoff:       250 * time.Millisecond,
			RecordRetention:    30 * 24 * time.Hour,
		},
		Ledger: LedgerConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

// normalize fills zero values with defaults without touching explicit
// settings.
func (c *Config) normalize() {
	def := defaultConfig()

	if c.KeyStore.Shards <= 0 {
		c.KeyStore.Shards = def.KeyStore.Shards
	}
	if c.KeyStore.MaxIdle <= 0 {
		c.KeyStore.MaxIdle = def.KeyStore.MaxIdle
	}
	if c.KeyStore.EvictionInterval <= 0 {
		c.KeyStore.EvictionInterval = def.KeyStore.EvictionInterval
	}

	if c.Persistence.CheckpointInterval <= 0 {
		c.Persistence.CheckpointInterval = def.Persistence.CheckpointInterval
	}
	if c.Persistence.ReadTimeout <= 0 {
		c.Persistence.ReadTimeout = def.Persistence.ReadTimeout
	}
	if c.Persistence.WriteTimeout <= 0 {
		c.Persistence.WriteTimeout = def.Persistence.WriteTimeout
	}
	if c.Persistence.WriteRetries <= 0 {
		c.Persistence.WriteRetries = def.Persistence.WriteRetries
	}
	if c.Persistence.RetryBackoff <= 0 {
		c.Persistence.RetryBackoff = def.Persistence.RetryBackoff
	}
	if c.Persistence.RecordRetention <= 0 {
		c.Persistence.RecordRetention = def.Persistence.RecordRetention
	}

	if c.Ledger.BufferSize <= 0 {
		c.Ledger.BufferSize = def.Ledger.BufferSize
	}
}
