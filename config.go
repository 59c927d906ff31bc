package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all server configuration
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
//	required: Must be provided (no default)
type Config struct {
	// Server basics
	Addr        string `env:"HUB_ADDR" envDefault:":3002"`
	JWTSecret   string `env:"HUB_JWT_SECRET"`
	DevMode     bool   `env:"HUB_DEV_MODE" envDefault:"false"`
	DatabaseURL string `env:"HUB_DATABASE_URL" envDefault:"postgres://localhost:5432/canvas?sslmode=disable"`

	// Event fan-out
	NATSUrl string `env:"HUB_NATS_URL" envDefault:"nats://localhost:4222"`

	// AI generation intake
	KafkaBrokers     string `env:"HUB_KAFKA_BROKERS" envDefault:"localhost:19092"`
	KafkaConsumerGrp string `env:"HUB_KAFKA_CONSUMER_GROUP" envDefault:"canvas-hub-aiintake"`
	KafkaTopic       string `env:"HUB_KAFKA_TOPIC" envDefault:"ai.generation.completed"`

	// Resource limits (from container)
	CPULimit    float64 `env:"HUB_CPU_LIMIT" envDefault:"1.0"`
	MemoryLimit int64   `env:"HUB_MEMORY_LIMIT" envDefault:"2147483648"` // 2GiB

	// Capacity
	MaxConnections int `env:"HUB_MAX_CONNECTIONS" envDefault:"10000"`

	// Rate limiting
	MaxBroadcastRate int `env:"HUB_MAX_BROADCAST_RATE" envDefault:"20000"`
	MaxGoroutines    int `env:"HUB_MAX_GOROUTINES" envDefault:"50000"`

	// CPU Safety Thresholds (Container-Aware)
	//
	// These thresholds are relative to CONTAINER CPU ALLOCATION, not host CPU.
	// The system uses container-aware cgroup measurement when running in Docker/K8s.
	CPURejectThreshold float64 `env:"HUB_CPU_REJECT_THRESHOLD" envDefault:"90.0"` // Reject new connections above this %

	// Realtime protocol timings (spec §6)
	HeartbeatInterval       time.Duration `env:"HUB_HEARTBEAT_INTERVAL" envDefault:"30s"`
	PresenceTTL             time.Duration `env:"HUB_PRESENCE_TTL" envDefault:"30s"`
	CursorThrottle          time.Duration `env:"HUB_CURSOR_THROTTLE" envDefault:"25ms"`
	ShapeThrottle           time.Duration `env:"HUB_SHAPE_THROTTLE" envDefault:"33ms"`
	BatchInterval           time.Duration `env:"HUB_BATCH_INTERVAL" envDefault:"16ms"`
	PresenceCleanupInterval time.Duration `env:"HUB_PRESENCE_CLEANUP_INTERVAL" envDefault:"60s"`
	LockSweepInterval       time.Duration `env:"HUB_LOCK_SWEEP_INTERVAL" envDefault:"1s"`
	MaxBatchSize            int           `env:"HUB_MAX_BATCH_SIZE" envDefault:"100"`
	ShutdownDrainGrace      time.Duration `env:"HUB_SHUTDOWN_DRAIN_GRACE" envDefault:"10s"`

	// Monitoring
	MetricsInterval time.Duration `env:"METRICS_INTERVAL" envDefault:"15s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Environment
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// LoadConfig reads configuration from .env file and environment variables
// Priority: ENV vars > .env file > defaults
//
// Optional logger parameter for structured logging. If nil, logs to stdout.
func LoadConfig(logger *zerolog.Logger) (*Config, error) {
	// Load .env file (optional - OK if it doesn't exist)
	// In production (Docker), we use environment variables directly
	// In development, .env file provides convenience
	if err := godotenv.Load(); err != nil {
		// Only log, don't fail - we can run without .env file
		if logger != nil {
			logger.Info().Msg("No .env file found (using environment variables only)")
		} else {
			fmt.Println("Info: No .env file found (using environment variables only)")
		}
	} else {
		if logger != nil {
			logger.Info().Msg("Loaded configuration from .env file")
		}
	}

	cfg := &Config{}

	// Parse environment variables into struct
	// This validates types and applies defaults
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Validation
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if logger != nil {
		logger.Info().Msg("Configuration loaded and validated successfully")
	}

	return cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	// Required fields (no sensible defaults)
	if c.Addr == "" {
		return fmt.Errorf("HUB_ADDR is required")
	}
	if !c.DevMode && c.JWTSecret == "" {
		return fmt.Errorf("HUB_JWT_SECRET is required unless HUB_DEV_MODE is set")
	}

	// Range checks
	if c.MaxConnections < 1 {
		return fmt.Errorf("HUB_MAX_CONNECTIONS must be > 0, got %d", c.MaxConnections)
	}
	if c.CPURejectThreshold < 0 || c.CPURejectThreshold > 100 {
		return fmt.Errorf("HUB_CPU_REJECT_THRESHOLD must be 0-100, got %.1f", c.CPURejectThreshold)
	}

	// Enum checks
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "text": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, text, pretty (got: %s)", c.LogFormat)
	}

	return nil
}

// Print logs configuration for debugging (human-readable format)
// For production, use LogConfig() with structured logging
func (c *Config) Print() {
	fmt.Println("=== Server Configuration ===")
	fmt.Printf("Environment:     %s\n", c.Environment)
	fmt.Printf("Address:         %s\n", c.Addr)
	fmt.Printf("Dev Mode:        %t\n", c.DevMode)
	fmt.Printf("Database:        %s\n", c.DatabaseURL)
	fmt.Printf("NATS:            %s\n", c.NATSUrl)
	fmt.Printf("Kafka Brokers:   %s\n", c.KafkaBrokers)
	fmt.Println("\n=== Resource Limits ===")
	fmt.Printf("CPU Limit:       %.1f cores\n", c.CPULimit)
	fmt.Printf("Memory Limit:    %d MB\n", c.MemoryLimit/(1024*1024))
	fmt.Printf("Max Connections: %d\n", c.MaxConnections)
	fmt.Println("\n=== Rate Limits ===")
	fmt.Printf("Broadcasts:      %d/sec\n", c.MaxBroadcastRate)
	fmt.Printf("Max Goroutines:  %d\n", c.MaxGoroutines)
	fmt.Println("\n=== Safety Thresholds ===")
	fmt.Printf("CPU Reject:      %.1f%%\n", c.CPURejectThreshold)
	fmt.Println("\n=== Realtime Timings ===")
	fmt.Printf("Heartbeat:       %s\n", c.HeartbeatInterval)
	fmt.Printf("Presence TTL:    %s\n", c.PresenceTTL)
	fmt.Printf("Cursor throttle: %s\n", c.CursorThrottle)
	fmt.Printf("Shape throttle:  %s\n", c.ShapeThrottle)
	fmt.Printf("Batch interval:  %s\n", c.BatchInterval)
	fmt.Println("\n=== Logging ===")
	fmt.Printf("Level:           %s\n", c.LogLevel)
	fmt.Printf("Format:          %s\n", c.LogFormat)
	fmt.Println("============================")
}

// LogConfig logs configuration using structured logging (Loki-compatible)
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("addr", c.Addr).
		Bool("dev_mode", c.DevMode).
		Str("nats_url", c.NATSUrl).
		Str("kafka_brokers", c.KafkaBrokers).
		Str("kafka_consumer_group", c.KafkaConsumerGrp).
		Float64("cpu_limit", c.CPULimit).
		Int64("memory_limit_mb", c.MemoryLimit/(1024*1024)).
		Int("max_connections", c.MaxConnections).
		Int("max_broadcast_rate", c.MaxBroadcastRate).
		Int("max_goroutines", c.MaxGoroutines).
		Float64("cpu_reject_threshold", c.CPURejectThreshold).
		Dur("heartbeat_interval", c.HeartbeatInterval).
		Dur("presence_ttl", c.PresenceTTL).
		Dur("cursor_throttle", c.CursorThrottle).
		Dur("shape_throttle", c.ShapeThrottle).
		Dur("batch_interval", c.BatchInterval).
		Dur("metrics_interval", c.MetricsInterval).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("Server configuration loaded")
}
