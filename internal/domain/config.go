package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier ProductTier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Source     SourceConfig     `json:"source"`
	Sweep      SweepConfig      `json:"sweep"`

	// RulesPath is the scoring rules YAML document.
	RulesPath string `json:"rulesPath"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// SweepConfig holds batch re-assessment settings.
type SweepConfig struct {
	Enabled bool `json:"enabled"`

	// Interval between sweep runs.
	Interval time.Duration `json:"interval"`

	// Staleness is the age beyond which an assessment is re-run.
	Staleness time.Duration `json:"staleness"`

	// Concurrency bounds the worker pool; 1 means sequential.
	Concurrency int `json:"concurrency"`

	// MerchantDelay paces the upstream transaction source between
	// merchants. Protects the collaborator, not the engine.
	MerchantDelay time.Duration `json:"merchantDelay"`

	// Retention prunes assessments older than this; 0 disables pruning.
	Retention time.Duration `json:"retention"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// ProductTier represents the product tier.
type ProductTier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity ProductTier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS/Kafka + Redis
	TierPro ProductTier = "pro"
)

// DefaultConfig returns a default configuration for Community tier:
// SQLite storage, in-process cache and bus, synthetic transaction source.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Source: SourceConfig{
			Type:                   "synthetic",
			MaxAttempts:            3,
			InitialBackoff:         500 * time.Millisecond,
			BackoffFactor:          2.0,
			AllowSyntheticFallback: true,
		},
		Sweep: SweepConfig{
			Enabled:     false,
			Interval:    time.Hour,
			Staleness:   24 * time.Hour,
			Concurrency: 4,
		},
		RulesPath: "./configs/scoring_rules.yaml",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       5 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Source = SourceConfig{
		Type:                   "http",
		BaseURL:                "http://localhost:9090",
		Timeout:                10 * time.Second,
		MaxAttempts:            3,
		InitialBackoff:         500 * time.Millisecond,
		BackoffFactor:          2.0,
		AllowSyntheticFallback: false,
	}
	cfg.Sweep.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
