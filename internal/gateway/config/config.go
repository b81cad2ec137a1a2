package config

import "github.com/zeromicro/go-zero/rest"

// Config is the collaboration gateway configuration.
type Config struct {
	rest.RestConf

	Log LogConfig `json:",optional"`

	JWT JWTConfig `json:",optional"`

	RateLimit RateLimitConfig `json:",optional"`

	// Storage selects the version store backend.
	Storage StorageConfig `json:",optional"`

	// Registry selects where session metadata is recorded.
	Registry RegistryConfig `json:",optional"`

	// Session tunes the live session manager.
	Session SessionConfig `json:",optional"`

	Metrics MetricsConfig `json:",optional"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	ServiceName string `json:",default=collabedit-gateway"`
	Mode        string `json:",default=console,options=console|file"`
	Path        string `json:",default=logs/gateway"`
	Level       string `json:",default=info,options=debug|info|warn|error"`
}

// JWTConfig configures token signing. Auth is disabled when the
// secret is empty; the gateway then trusts client-supplied user ids,
// which is only acceptable in development.
type JWTConfig struct {
	Secret        string `json:",optional"`
	Expire        int64  `json:",default=3600"`
	RefreshExpire int64  `json:",default=86400"`
	Issuer        string `json:",default=collabedit"`
}

// RateLimitConfig configures the token-bucket request limiter.
type RateLimitConfig struct {
	Enable bool `json:",default=true"`
	Rate   int  `json:",default=100"`
	Burst  int  `json:",default=200"`
}

// StorageConfig selects the version store backend.
type StorageConfig struct {
	Type string `json:",default=memory,options=memory|postgres"`

	Postgres PostgresConfig `json:",optional"`
}

// PostgresConfig is the postgres version store connection.
type PostgresConfig struct {
	DSN             string `json:",optional"`
	MaxOpenConns    int    `json:",default=20"`
	MaxIdleConns    int    `json:",default=5"`
	ConnMaxLifetime int    `json:",default=300"` // seconds
}

// RegistryConfig selects the session registry backend.
type RegistryConfig struct {
	Type string `json:",default=memory,options=memory|redis"`

	Redis RedisConfig `json:",optional"`
}

// RedisConfig is the redis session registry connection.
type RedisConfig struct {
	Addr     string `json:",default=localhost:6379"`
	Password string `json:",optional"`
	DB       int    `json:",default=0"`
	TTL      int    `json:",default=3600"` // seconds
}

// SessionConfig tunes the session manager.
type SessionConfig struct {
	IdleGrace        int    `json:",default=120"` // seconds
	CleanupInterval  int    `json:",default=30"`  // seconds
	CheckpointEvery  int    `json:",default=50"`
	ConflictStrategy string `json:",default=timestamp,options=timestamp|user_priority"`

	// UserPriorities ranks users for the user_priority strategy;
	// higher wins.
	UserPriorities map[string]int `json:",optional"`
}

// MetricsConfig configures the Prometheus surface.
type MetricsConfig struct {
	Enable    bool   `json:",default=true"`
	Namespace string `json:",default=collabedit"`
	Subsystem string `json:",default=gateway"`
}
