package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults for everything that has a sane one. Secrets and bucket names
// never default.
const (
	DefaultListenAddr = ":8080"
	DefaultMaxSkew    = 5 * time.Minute
	DefaultStubWindow = 5 * time.Minute
	DefaultLLMModel   = "gpt-5-mini"
	DefaultLLMTimeout = 60 * time.Second
	DefaultPresignTTL = time.Hour
	DefaultPartSize   = 10 << 20
	DefaultSQLitePath = "depogateway.sqlite"
)

// Config carries everything the gateway binary reads from the environment.
type Config struct {
	ListenAddr string

	WebhookSecret string
	MaxSkew       time.Duration
	StubWindow    time.Duration

	OpenAIAPIKey string
	LLMModel     string
	LLMTimeout   time.Duration

	S3Region   string
	S3Bucket   string
	PresignTTL time.Duration
	PartSize   int64

	SQLitePath string
	DevToken   string
}

// FromEnv reads DEPO_* settings, applying defaults where one exists.
func FromEnv() (Config, error) {
	cfg := Config{
		ListenAddr:    envOrDefault("DEPO_LISTEN_ADDR", DefaultListenAddr),
		WebhookSecret: os.Getenv("DEPO_WEBHOOK_SECRET"),
		OpenAIAPIKey:  envOrDefault("DEPO_OPENAI_API_KEY", os.Getenv("OPENAI_API_KEY")),
		LLMModel:      envOrDefault("DEPO_OPENAI_MODEL", DefaultLLMModel),
		S3Region:      os.Getenv("DEPO_S3_REGION"),
		S3Bucket:      os.Getenv("DEPO_S3_BUCKET"),
		SQLitePath:    envOrDefault("DEPO_SQLITE_PATH", DefaultSQLitePath),
		DevToken:      os.Getenv("DEPO_DEV_TOKEN"),
	}

	var err error
	if cfg.MaxSkew, err = envSeconds("DEPO_MAX_SKEW_SECS", DefaultMaxSkew); err != nil {
		return Config{}, err
	}
	if cfg.StubWindow, err = envSeconds("DEPO_STUB_WINDOW_SECS", DefaultStubWindow); err != nil {
		return Config{}, err
	}
	if cfg.LLMTimeout, err = envSeconds("DEPO_OPENAI_TIMEOUT_SECS", DefaultLLMTimeout); err != nil {
		return Config{}, err
	}
	if cfg.PresignTTL, err = envSeconds("DEPO_PRESIGN_TTL_SECS", DefaultPresignTTL); err != nil {
		return Config{}, err
	}
	if cfg.PartSize, err = envInt64("DEPO_PART_SIZE_BYTES", DefaultPartSize); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.WebhookSecret == "" {
		return fmt.Errorf("DEPO_WEBHOOK_SECRET is required")
	}
	if c.MaxSkew <= 0 {
		return fmt.Errorf("DEPO_MAX_SKEW_SECS must be positive")
	}
	if c.StubWindow <= 0 {
		return fmt.Errorf("DEPO_STUB_WINDOW_SECS must be positive")
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("DEPO_OPENAI_TIMEOUT_SECS must be positive")
	}
	if c.PresignTTL <= 0 {
		return fmt.Errorf("DEPO_PRESIGN_TTL_SECS must be positive")
	}
	if c.PartSize < 5<<20 {
		return fmt.Errorf("DEPO_PART_SIZE_BYTES must be at least 5 MiB, the object store's multipart minimum")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envSeconds(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return time.Duration(secs) * time.Second, nil
}

func envInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
