package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration, read once in main.
type Config struct {
	Server   Server
	Auth     AuthConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	S3       S3Config
	Kafka    KafkaConfig
	Evidence EvidenceConfig
	LogLevel slog.Level
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// AuthConfig configures bearer-token validation.
type AuthConfig struct {
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
}

// PostgresConfig enables the Postgres backends when URL is set.
type PostgresConfig struct {
	URL           string
	RunMigrations bool
}

// RedisConfig enables the Redis idempotency store when URL is set.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// S3Config enables the S3 payload store when Bucket is set.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// KafkaConfig enables the audit outbox relay when Brokers is non-empty.
type KafkaConfig struct {
	Brokers       []string
	Topic         string
	RelayInterval time.Duration
	RelayBatch    int
}

// EvidenceConfig tunes the ledger service.
type EvidenceConfig struct {
	SealTimeout      time.Duration
	TxTimeout        time.Duration
	IdempotencyTTL   time.Duration
	IdempotencyLease time.Duration
	MaxPayloadBytes  int64
}

// FromEnv builds a Config from environment variables so main stays lean.
// Every value has a development default; backends stay disabled until their
// connection setting is present.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            envString("LEDGER_ADDR", ":8080"),
			ReadTimeout:     envDuration("HTTP_READ_TIMEOUT", 60*time.Second),
			WriteTimeout:    envDuration("HTTP_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			// Use a default for development - should be overridden in production
			JWTSigningKey: envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:     envString("JWT_ISSUER", "evidence-ledger"),
			JWTAudience:   envString("JWT_AUDIENCE", "evidence-ledger-api"),
		},
		Postgres: PostgresConfig{
			URL:           os.Getenv("DATABASE_URL"),
			RunMigrations: envBool("DATABASE_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          envString("S3_REGION", "eu-central-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			UsePathStyle:    envBool("S3_USE_PATH_STYLE", false),
		},
		Kafka: KafkaConfig{
			Brokers:       envList("KAFKA_BROKERS"),
			Topic:         envString("KAFKA_AUDIT_TOPIC", "evidence.audit.v1"),
			RelayInterval: envDuration("OUTBOX_RELAY_INTERVAL", 2*time.Second),
			RelayBatch:    envInt("OUTBOX_RELAY_BATCH", 100),
		},
		Evidence: EvidenceConfig{
			SealTimeout:      envDuration("SEAL_TIMEOUT", 15*time.Second),
			TxTimeout:        envDuration("TX_TIMEOUT", 5*time.Second),
			IdempotencyTTL:   envDuration("IDEMPOTENCY_TTL", 24*time.Hour),
			IdempotencyLease: envDuration("IDEMPOTENCY_LEASE", 60*time.Second),
			MaxPayloadBytes:  int64(envInt("MAX_PAYLOAD_BYTES", 10<<20)),
		},
		LogLevel: envLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func envList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envLevel(key string, def slog.Level) slog.Level {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		return def
	}
	return lvl
}
