package config

import (
	"os"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	// Set required env vars for all subtests
	cleanup := setEnvs(t, map[string]string{
		"DATABASE_URL": "postgres://localhost/test",
	})
	defer cleanup()

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":8080" {
			t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
		if cfg.PollIntervalSeconds != 60 {
			t.Errorf("PollIntervalSeconds = %d, want 60", cfg.PollIntervalSeconds)
		}
		if cfg.StatusURL != "https://status.vatsim.net/status.json" {
			t.Errorf("StatusURL = %q, want status.vatsim.net default", cfg.StatusURL)
		}
		if cfg.UserAgent != "vatsim-engine" {
			t.Errorf("UserAgent = %q, want vatsim-engine", cfg.UserAgent)
		}
		if cfg.FrequencyToleranceMHz != 0.005 {
			t.Errorf("FrequencyToleranceMHz = %g, want 0.005", cfg.FrequencyToleranceMHz)
		}
		if cfg.TimeWindowSeconds != 180 {
			t.Errorf("TimeWindowSeconds = %d, want 180", cfg.TimeWindowSeconds)
		}
		if cfg.ProximityNM != 300 {
			t.Errorf("ProximityNM = %g, want 300", cfg.ProximityNM)
		}
		if cfg.FlightRetentionHours != 168 {
			t.Errorf("FlightRetentionHours = %d, want 168", cfg.FlightRetentionHours)
		}
		if cfg.TransceiverRetentionHours != 336 {
			t.Errorf("TransceiverRetentionHours = %d, want 336", cfg.TransceiverRetentionHours)
		}
		if len(cfg.ExcludedFrequenciesMHz) != 2 || cfg.ExcludedFrequenciesMHz[0] != 122.8 || cfg.ExcludedFrequenciesMHz[1] != 121.5 {
			t.Errorf("ExcludedFrequenciesMHz = %v, want [122.8 121.5]", cfg.ExcludedFrequenciesMHz)
		}
		if cfg.IncludeObservers {
			t.Error("IncludeObservers = true, want false")
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		cfg, err := Load(Overrides{
			EnvFile:     "nonexistent.env",
			HTTPAddr:    ":9090",
			LogLevel:    "debug",
			DatabaseURL: "postgres://override/db",
			DataURL:     "https://override.example/v3/vatsim-data.json",
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":9090" {
			t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
		if cfg.DatabaseURL != "postgres://override/db" {
			t.Errorf("DatabaseURL = %q, want override", cfg.DatabaseURL)
		}
		if cfg.DataURL != "https://override.example/v3/vatsim-data.json" {
			t.Errorf("DataURL = %q, want override", cfg.DataURL)
		}
	})

	t.Run("env_vars_read", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.DatabaseURL != "postgres://localhost/test" {
			t.Errorf("DatabaseURL = %q, want postgres://localhost/test", cfg.DatabaseURL)
		}
	})

	t.Run("empty_overrides_use_env", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		// Empty override fields should not overwrite env values
		if cfg.DatabaseURL != "postgres://localhost/test" {
			t.Errorf("DatabaseURL = %q, want env value", cfg.DatabaseURL)
		}
	})
}

func TestLoadMissingRequired(t *testing.T) {
	// Clear any existing values
	cleanup := setEnvs(t, map[string]string{
		"DATABASE_URL": "",
	})
	defer cleanup()
	os.Unsetenv("DATABASE_URL")

	_, err := Load(Overrides{EnvFile: "nonexistent.env"})
	if err == nil {
		t.Error("expected error when required env vars are missing")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DatabaseURL:                 "postgres://localhost/test",
			DBPoolSize:                  10,
			DBMaxOverflow:               5,
			DBPoolRecycleSeconds:        1800,
			DBPoolTimeoutSeconds:        30,
			DBConnectTimeoutSeconds:     10,
			UpstreamTimeoutSeconds:      15,
			RetryAttempts:               3,
			PollIntervalSeconds:         60,
			ExcludedFrequenciesMHz:      []float64{122.8, 121.5},
			FlightCompletionMinutes:     14,
			ControllerCompletionMinutes: 30,
			FlightRetentionHours:        168,
			ControllerRetentionHours:    168,
			SummaryPassIntervalMinutes:  1,
			TransceiverRetentionHours:   336,
			FrequencyToleranceMHz:       0.005,
			TimeWindowSeconds:           180,
			ProximityNM:                 300,
			BatchSize:                   1000,
		}
	}

	t.Run("valid_config_passes", func(t *testing.T) {
		cfg := valid()
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate: %v", err)
		}
	})

	t.Run("valid_callsign_patterns_pass", func(t *testing.T) {
		cfg := valid()
		cfg.CallsignPatterns = []string{"^QF", "VOZ[0-9]+"}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate: %v", err)
		}
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantKey string
	}{
		{"zero_pool_size", func(c *Config) { c.DBPoolSize = 0 }, "DB_POOL_SIZE"},
		{"negative_overflow", func(c *Config) { c.DBMaxOverflow = -1 }, "DB_MAX_OVERFLOW"},
		{"zero_poll_interval", func(c *Config) { c.PollIntervalSeconds = 0 }, "POLL_INTERVAL_SECONDS"},
		{"negative_retries", func(c *Config) { c.RetryAttempts = -1 }, "RETRY_ATTEMPTS"},
		{"frequency_below_airband", func(c *Config) { c.ExcludedFrequenciesMHz = []float64{117.5} }, "EXCLUDED_FREQUENCIES_MHZ"},
		{"frequency_above_airband", func(c *Config) { c.ExcludedFrequenciesMHz = []float64{137.5} }, "EXCLUDED_FREQUENCIES_MHZ"},
		{"invalid_callsign_pattern", func(c *Config) { c.CallsignPatterns = []string{"["} }, "CALLSIGN_PATTERNS"},
		{"zero_completion_minutes", func(c *Config) { c.FlightCompletionMinutes = 0 }, "FLIGHT_COMPLETION_MINUTES"},
		{"zero_retention_hours", func(c *Config) { c.ControllerRetentionHours = 0 }, "CONTROLLER_RETENTION_HOURS"},
		{"negative_tolerance", func(c *Config) { c.FrequencyToleranceMHz = -0.001 }, "FREQUENCY_TOLERANCE_MHZ"},
		{"zero_proximity", func(c *Config) { c.ProximityNM = 0 }, "PROXIMITY_NM"},
		{"zero_batch_size", func(c *Config) { c.BatchSize = 0 }, "BATCH_SIZE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate: expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantKey) {
				t.Errorf("error %q does not name %s", err, tt.wantKey)
			}
		})
	}
}

func TestWorkers(t *testing.T) {
	cfg := Config{DBPoolSize: 10}
	if got := cfg.Workers(); got != 10 {
		t.Errorf("Workers() = %d, want pool size 10", got)
	}
	cfg.WorkerCount = 4
	if got := cfg.Workers(); got != 4 {
		t.Errorf("Workers() = %d, want 4", got)
	}
}

// setEnvs sets environment variables and returns a cleanup function.
func setEnvs(t *testing.T, envs map[string]string) func() {
	t.Helper()
	originals := make(map[string]string)
	unset := make([]string, 0)

	for k, v := range envs {
		if orig, ok := os.LookupEnv(k); ok {
			originals[k] = orig
		} else {
			unset = append(unset, k)
		}
		os.Setenv(k, v)
	}

	return func() {
		for k, v := range originals {
			os.Setenv(k, v)
		}
		for _, k := range unset {
			os.Unsetenv(k)
		}
	}
}
