package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Redis
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	// Marketplace API
	APIBaseURL   string        // ex: "https://backpack.tf/api"
	APITimeout   time.Duration // per call timeout
	APIUserAgent string

	// Reservoir, one per account
	ReservoirSize           int
	ReservoirRefillAmount   int
	ReservoirRefillInterval time.Duration
	RateLimitBackoff        time.Duration // used when a 429 carries no usable hint

	// Batches
	CreateBatchSize         int
	DeleteBatchSize         int
	DeleteArchivedBatchSize int

	// Locks
	LockTTL        time.Duration // lease of reconciler and listener sections
	ExecutorTTL    time.Duration // lease of a running batch
	LockWait       time.Duration // how long a busy lock is retried
	LockRetryDelay time.Duration

	// Jobs
	Workers           int
	JobPollInterval   time.Duration
	JobBackoffInitial time.Duration
	JobBackoffMax     time.Duration
	JobMaxAge         time.Duration
	JobVisibility     time.Duration // active jobs older than this are requeued
	SweepInterval     time.Duration

	// Events (optional, empty URL => events are logged only)
	AMQPURL      string
	AMQPExchange string

	// Sources (optional)
	DesiredFile    string        // path to the desired listings file, empty = disabled
	ReloadInterval time.Duration // interval to reload the desired file
	TokenFile      string        // path to a yaml token file seeded into redis on start

	AllowedCIDRS []string // optional, restrict access to specific IP (e.g. "1.2.3.4, 10.0.0.0/8")
	TrustProxy   bool     // true => trust X-Forwarded-For headers
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("LISTINGD_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("LISTINGD_SHUTDOWN_TIMEOUT", 15*time.Second),

		// Logging
		LogLevel:  getenv("LISTINGD_LOG_LEVEL", "info"),
		PrettyLog: mustBool("LISTINGD_PRETTY_LOG", false),

		// Redis settings
		RedisAddr:             requireEnv("LISTINGD_REDIS_ADDR"),
		RedisUser:             getenv("LISTINGD_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("LISTINGD_REDIS_PASSWORD_REQUIRED", true),
		RedisPassword:         getenv("LISTINGD_REDIS_PASSWORD", ""),
		RedisDB:               requireEnvInt("LISTINGD_REDIS_DB"),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 20),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Marketplace
		APIBaseURL:   getenv("LISTINGD_API_BASE_URL", "https://backpack.tf/api"),
		APITimeout:   mustDuration("LISTINGD_API_TIMEOUT", 30*time.Second),
		APIUserAgent: getenv("LISTINGD_API_USER_AGENT", "listingd"),

		// Reservoir
		ReservoirSize:           getenvInt("LISTINGD_RESERVOIR_SIZE", 10),
		ReservoirRefillAmount:   getenvInt("LISTINGD_RESERVOIR_REFILL_AMOUNT", 1),
		ReservoirRefillInterval: mustDuration("LISTINGD_RESERVOIR_REFILL_INTERVAL", 6*time.Second),
		RateLimitBackoff:        mustDuration("LISTINGD_RATE_LIMIT_BACKOFF", time.Minute),

		// Batches
		CreateBatchSize:         getenvInt("LISTINGD_CREATE_BATCH_SIZE", 100),
		DeleteBatchSize:         getenvInt("LISTINGD_DELETE_BATCH_SIZE", 100),
		DeleteArchivedBatchSize: getenvInt("LISTINGD_DELETE_ARCHIVED_BATCH_SIZE", 100),

		// Locks
		LockTTL:        mustDuration("LISTINGD_LOCK_TTL", 30*time.Second),
		ExecutorTTL:    mustDuration("LISTINGD_EXECUTOR_LOCK_TTL", 2*time.Minute),
		LockWait:       mustDuration("LISTINGD_LOCK_WAIT", 10*time.Second),
		LockRetryDelay: mustDuration("LISTINGD_LOCK_RETRY_DELAY", 100*time.Millisecond),

		// Jobs
		Workers:           getenvInt("LISTINGD_WORKERS", 4),
		JobPollInterval:   mustDuration("LISTINGD_JOB_POLL_INTERVAL", 500*time.Millisecond),
		JobBackoffInitial: mustDuration("LISTINGD_JOB_BACKOFF_INITIAL", time.Second),
		JobBackoffMax:     mustDuration("LISTINGD_JOB_BACKOFF_MAX", 5*time.Minute),
		JobMaxAge:         mustDuration("LISTINGD_JOB_MAX_AGE", time.Hour),
		JobVisibility:     mustDuration("LISTINGD_JOB_VISIBILITY", 5*time.Minute),
		SweepInterval:     mustDuration("LISTINGD_SWEEP_INTERVAL", time.Minute),

		// Events
		AMQPURL:      getenv("LISTINGD_AMQP_URL", ""),
		AMQPExchange: getenv("LISTINGD_AMQP_EXCHANGE", "listingd.events"),

		// Sources
		DesiredFile:    getenv("LISTINGD_DESIRED_FILE", ""),
		ReloadInterval: mustDuration("LISTINGD_RELOAD_INTERVAL", 5*time.Minute),
		TokenFile:      getenv("LISTINGD_TOKEN_FILE", ""),

		// Access restrictions
		AllowedCIDRS: parseAllowedIPs(getenv("LISTINGD_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("LISTINGD_TRUST_PROXY", false),
	}

	// Validate Redis password configuration
	if cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: LISTINGD_REDIS_PASSWORD is required when LISTINGD_REDIS_PASSWORD_REQUIRED=true")
	}

	if cfg.ExecutorTTL < cfg.APITimeout {
		panic(fmt.Sprintf("❌ FATAL: LISTINGD_EXECUTOR_LOCK_TTL (%s) must cover LISTINGD_API_TIMEOUT (%s)",
			cfg.ExecutorTTL, cfg.APITimeout))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", cfg.Redacted())
	}

	return cfg
}

// Redacted returns a copy safe to print
func (c *Config) Redacted() Config {
	cfgCopy := *c
	cfgCopy.RedisPassword = "***REDACTED***"
	if c.RedisUser != "" {
		cfgCopy.RedisUser = "***REDACTED***"
	}
	if c.AMQPURL != "" {
		cfgCopy.AMQPURL = "***REDACTED***"
	}
	return cfgCopy
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func requireEnvInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: Invalid integer value for %s: %s", key, v))
	}
	return i
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
