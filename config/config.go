package config

import "time"

// Config is the Gateway's complete runtime configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Mongo     MongoConfig     `yaml:"mongo" env:"MONGO"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Auth      AuthConfig      `yaml:"auth" env:"AUTH"`
	Queue     QueueConfig     `yaml:"queue" env:"QUEUE"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat" env:"HEARTBEAT"`
	Safety    SafetyConfig    `yaml:"safety" env:"SAFETY"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the HTTP ingress listener.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// MongoConfig configures the diary document store.
type MongoConfig struct {
	URI        string        `yaml:"uri" env:"URI"`
	Database   string        `yaml:"database" env:"DATABASE"`
	Collection string        `yaml:"collection" env:"COLLECTION"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RedisConfig configures the Redis connection behind the distributed
// idempotency set.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// AuthConfig configures the gorm-backed API key store and JWT verification.
type AuthConfig struct {
	Driver       string `yaml:"driver" env:"DRIVER"` // postgres, sqlite
	DSN          string `yaml:"dsn" env:"DSN"`
	JWTSecret    string `yaml:"jwt_secret" env:"JWT_SECRET"`
	MigrationDir string `yaml:"migration_dir" env:"MIGRATION_DIR"`
}

// QueueConfig configures the per-patient queue manager.
type QueueConfig struct {
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	EventTimeout time.Duration `yaml:"event_timeout" env:"EVENT_TIMEOUT"`
	SlowEventLog time.Duration `yaml:"slow_event_log" env:"SLOW_EVENT_LOG"`
}

// HeartbeatConfig configures the monitoring-phase milestone scheduler.
type HeartbeatConfig struct {
	CheckInterval time.Duration `yaml:"check_interval" env:"CHECK_INTERVAL"`
	MilestoneDays []int         `yaml:"milestone_days" env:"MILESTONE_DAYS"`
	GPReminderAge time.Duration `yaml:"gp_reminder_age" env:"GP_REMINDER_AGE"`
}

// SafetyConfig configures rate limiting, message truncation, and the
// chain-depth circuit breaker.
type SafetyConfig struct {
	RateLimitWindow     time.Duration `yaml:"rate_limit_window" env:"RATE_LIMIT_WINDOW"`
	RateLimitMaxMsgs    int           `yaml:"rate_limit_max_msgs" env:"RATE_LIMIT_MAX_MSGS"`
	MaxMessageLength    int           `yaml:"max_message_length" env:"MAX_MESSAGE_LENGTH"`
	MaxChainDepth       int           `yaml:"max_chain_depth" env:"MAX_CHAIN_DEPTH"`
	CrossPhaseTimeout   time.Duration `yaml:"cross_phase_timeout" env:"CROSS_PHASE_TIMEOUT"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures OpenTelemetry tracing export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DefaultConfig returns the Gateway's baseline configuration, matching the
// constants in spec.md §4/§5/§7 (rate limit window/max, max chain depth,
// idle/event timeouts, heartbeat milestone days).
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			MetricsPort:     9090,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "medforce",
			Collection: "patient_diaries",
			Timeout:    10 * time.Second,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
		},
		Auth: AuthConfig{
			Driver: "sqlite",
			DSN:    "gateway_auth.db",
		},
		Queue: QueueConfig{
			IdleTimeout:  30 * time.Minute,
			EventTimeout: 60 * time.Second,
			SlowEventLog: 30 * time.Second,
		},
		Heartbeat: HeartbeatConfig{
			CheckInterval: time.Hour,
			MilestoneDays: []int{14, 30, 60, 90},
			GPReminderAge: 48 * time.Hour,
		},
		Safety: SafetyConfig{
			RateLimitWindow:   60 * time.Second,
			RateLimitMaxMsgs:  15,
			MaxMessageLength:  10_000,
			MaxChainDepth:     10,
			CrossPhaseTimeout: 600 * time.Second,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stdout"},
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "medforce-gateway",
			SampleRate:  0.1,
		},
	}
}
