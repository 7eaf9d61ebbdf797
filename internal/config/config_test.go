package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRequireEnv(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		value     string
		wantPanic bool
	}{
		{name: "variable set", key: "LISTINGD_TEST_VAR", value: "test_value"},
		{name: "variable not set", key: "LISTINGD_TEST_VAR_MISSING", wantPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv(tt.key, tt.value)
			}

			if tt.wantPanic {
				defer func() {
					if r := recover(); r == nil {
						t.Errorf("requireEnv() should have panicked")
					}
				}()
			}

			result := requireEnv(tt.key)
			if !tt.wantPanic && result != tt.value {
				t.Errorf("requireEnv() = %v, want %v", result, tt.value)
			}
		})
	}
}

func TestRequireEnvInt(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		value     string
		expected  int
		wantPanic bool
	}{
		{name: "valid integer", key: "LISTINGD_TEST_INT", value: "42", expected: 42},
		{name: "invalid integer", key: "LISTINGD_TEST_INT_INVALID", value: "not_a_number", wantPanic: true},
		{name: "missing variable", key: "LISTINGD_TEST_INT_MISSING", wantPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv(tt.key, tt.value)
			}

			if tt.wantPanic {
				defer func() {
					if r := recover(); r == nil {
						t.Errorf("requireEnvInt() should have panicked")
					}
				}()
			}

			result := requireEnvInt(tt.key)
			if !tt.wantPanic && result != tt.expected {
				t.Errorf("requireEnvInt() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMustDuration(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      time.Duration
		expected time.Duration
	}{
		{name: "valid duration", value: "6s", def: time.Second, expected: 6 * time.Second},
		{name: "invalid duration uses default", value: "invalid", def: 10 * time.Second, expected: 10 * time.Second},
		{name: "missing variable uses default", def: 15 * time.Second, expected: 15 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LISTINGD_TEST_DURATION", tt.value)

			result := mustDuration("LISTINGD_TEST_DURATION", tt.def)
			if result != tt.expected {
				t.Errorf("mustDuration() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMustBool(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      bool
		expected bool
	}{
		{name: "true value", value: "true", expected: true},
		{name: "false value", value: "false", def: true, expected: false},
		{name: "invalid value uses default", value: "invalid", def: true, expected: true},
		{name: "missing variable uses default", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LISTINGD_TEST_BOOL", tt.value)

			result := mustBool("LISTINGD_TEST_BOOL", tt.def)
			if result != tt.expected {
				t.Errorf("mustBool() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestParseAllowedIPs(t *testing.T) {
	got := parseAllowedIPs(` 10.0.0.0/8, "192.168.1.4" ,,`)
	want := []string{"10.0.0.0/8", "192.168.1.4"}
	if len(got) != len(want) {
		t.Fatalf("parseAllowedIPs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("parseAllowedIPs()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if parseAllowedIPs("") != nil {
		t.Error("parseAllowedIPs(\"\") should be nil")
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("LISTINGD_REDIS_ADDR", "localhost:6379")
	t.Setenv("LISTINGD_REDIS_DB", "2")
	t.Setenv("LISTINGD_REDIS_PASSWORD", "secret")
}

func TestLoad(t *testing.T) {
	setRequired(t)
	t.Setenv("LISTINGD_RESERVOIR_REFILL_INTERVAL", "3s")
	t.Setenv("LISTINGD_CREATE_BATCH_SIZE", "50")
	t.Setenv("LISTINGD_ALLOWED_CIDRS", "127.0.0.1/32")

	cfg := Load()

	if cfg.RedisAddr != "localhost:6379" || cfg.RedisDB != 2 {
		t.Errorf("redis = %s/%d", cfg.RedisAddr, cfg.RedisDB)
	}
	if cfg.ReservoirRefillInterval != 3*time.Second {
		t.Errorf("ReservoirRefillInterval = %v, want 3s", cfg.ReservoirRefillInterval)
	}
	if cfg.CreateBatchSize != 50 || cfg.DeleteBatchSize != 100 {
		t.Errorf("batch sizes = %d/%d", cfg.CreateBatchSize, cfg.DeleteBatchSize)
	}
	if len(cfg.AllowedCIDRS) != 1 {
		t.Errorf("AllowedCIDRS = %v", cfg.AllowedCIDRS)
	}
	if cfg.AMQPURL != "" || cfg.DesiredFile != "" {
		t.Errorf("optional sources should default to disabled: %+v", cfg)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	content := "LISTINGD_REDIS_ADDR=redis:6379\nLISTINGD_REDIS_DB=0\nLISTINGD_REDIS_PASSWORD_REQUIRED=false\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Chdir(dir)

	// godotenv never overrides variables that are already set
	t.Setenv("LISTINGD_REDIS_ADDR", "")
	if err := os.Unsetenv("LISTINGD_REDIS_ADDR"); err != nil {
		t.Fatalf("failed to unset env var: %v", err)
	}
	t.Setenv("LISTINGD_REDIS_DB", "")
	if err := os.Unsetenv("LISTINGD_REDIS_DB"); err != nil {
		t.Fatalf("failed to unset env var: %v", err)
	}
	t.Setenv("LISTINGD_REDIS_PASSWORD_REQUIRED", "")
	if err := os.Unsetenv("LISTINGD_REDIS_PASSWORD_REQUIRED"); err != nil {
		t.Fatalf("failed to unset env var: %v", err)
	}

	cfg := Load()
	if cfg.RedisAddr != "redis:6379" {
		t.Errorf("RedisAddr = %q, want value from .env", cfg.RedisAddr)
	}
}

func TestLoadPanicsWithoutRedisPassword(t *testing.T) {
	setRequired(t)
	t.Setenv("LISTINGD_REDIS_PASSWORD", "")

	defer func() {
		if r := recover(); r == nil {
			t.Error("Load() should panic when a password is required but missing")
		}
	}()
	Load()
}

func TestRedacted(t *testing.T) {
	cfg := &Config{RedisPassword: "secret", RedisUser: "default", AMQPURL: "amqp://u:p@host"}
	r := cfg.Redacted()
	if r.RedisPassword == "secret" || r.RedisUser == "default" || r.AMQPURL == cfg.AMQPURL {
		t.Errorf("Redacted() leaked secrets: %+v", r)
	}
	if cfg.RedisPassword != "secret" {
		t.Error("Redacted() modified the original")
	}
}
