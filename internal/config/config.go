package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL             string `env:"DATABASE_URL,required"`
	DBPoolSize              int    `env:"DB_POOL_SIZE" envDefault:"10"`
	DBMaxOverflow           int    `env:"DB_MAX_OVERFLOW" envDefault:"5"`
	DBPoolRecycleSeconds    int    `env:"DB_POOL_RECYCLE_SECONDS" envDefault:"1800"`
	DBPoolTimeoutSeconds    int    `env:"DB_POOL_TIMEOUT_SECONDS" envDefault:"30"`
	DBConnectTimeoutSeconds int    `env:"DB_CONNECT_TIMEOUT_SECONDS" envDefault:"10"`

	DataURL                string `env:"VATSIM_DATA_URL"`
	TransceiversURL        string `env:"VATSIM_TRANSCEIVERS_URL"`
	StatusURL              string `env:"VATSIM_STATUS_URL" envDefault:"https://status.vatsim.net/status.json"`
	UpstreamTimeoutSeconds int    `env:"UPSTREAM_TIMEOUT_SECONDS" envDefault:"15"`
	RetryAttempts          int    `env:"RETRY_ATTEMPTS" envDefault:"3"`
	UserAgent              string `env:"USER_AGENT" envDefault:"vatsim-engine"`
	PollIntervalSeconds    int    `env:"POLL_INTERVAL_SECONDS" envDefault:"60"`

	ExcludedFrequenciesMHz []float64 `env:"EXCLUDED_FREQUENCIES_MHZ" envDefault:"122.800,121.500"`
	BoundaryPolygonFile    string    `env:"BOUNDARY_POLYGON_FILE"`
	CallsignPatterns       []string  `env:"CALLSIGN_PATTERNS"`
	IncludeObservers       bool      `env:"INCLUDE_OBSERVERS" envDefault:"false"`

	FlightCompletionMinutes     int `env:"FLIGHT_COMPLETION_MINUTES" envDefault:"14"`
	ControllerCompletionMinutes int `env:"CONTROLLER_COMPLETION_MINUTES" envDefault:"30"`
	FlightRetentionHours        int `env:"FLIGHT_RETENTION_HOURS" envDefault:"168"`
	ControllerRetentionHours    int `env:"CONTROLLER_RETENTION_HOURS" envDefault:"168"`
	SummaryPassIntervalMinutes  int `env:"SUMMARY_PASS_INTERVAL_MINUTES" envDefault:"1"`
	TransceiverRetentionHours   int `env:"TRANSCEIVER_RETENTION_HOURS" envDefault:"336"`

	FrequencyToleranceMHz float64 `env:"FREQUENCY_TOLERANCE_MHZ" envDefault:"0.005"`
	TimeWindowSeconds     int     `env:"TIME_WINDOW_SECONDS" envDefault:"180"`
	ProximityNM           float64 `env:"PROXIMITY_NM" envDefault:"300"`

	BatchSize   int `env:"BATCH_SIZE" envDefault:"1000"`
	WorkerCount int `env:"WORKER_COUNT" envDefault:"0"` // 0 means DB_POOL_SIZE

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`

	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"vatsim-engine"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"vatsim"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`

	S3Bucket    string `env:"S3_BUCKET"`
	S3Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
	S3Prefix    string `env:"S3_PREFIX" envDefault:"transceivers"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string
	DataURL     string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	// Parse environment variables into config struct
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.DataURL != "" {
		cfg.DataURL = overrides.DataURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects out-of-range values. Every message names the env
// key so a startup failure points at the exact knob to fix.
func (c *Config) Validate() error {
	if c.DBPoolSize < 1 {
		return fmt.Errorf("DB_POOL_SIZE must be >= 1, got %d", c.DBPoolSize)
	}
	if c.DBMaxOverflow < 0 {
		return fmt.Errorf("DB_MAX_OVERFLOW must be >= 0, got %d", c.DBMaxOverflow)
	}
	if c.DBPoolRecycleSeconds < 1 {
		return fmt.Errorf("DB_POOL_RECYCLE_SECONDS must be >= 1, got %d", c.DBPoolRecycleSeconds)
	}
	if c.DBPoolTimeoutSeconds < 1 {
		return fmt.Errorf("DB_POOL_TIMEOUT_SECONDS must be >= 1, got %d", c.DBPoolTimeoutSeconds)
	}
	if c.DBConnectTimeoutSeconds < 1 {
		return fmt.Errorf("DB_CONNECT_TIMEOUT_SECONDS must be >= 1, got %d", c.DBConnectTimeoutSeconds)
	}
	if c.UpstreamTimeoutSeconds < 1 {
		return fmt.Errorf("UPSTREAM_TIMEOUT_SECONDS must be >= 1, got %d", c.UpstreamTimeoutSeconds)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("RETRY_ATTEMPTS must be >= 0, got %d", c.RetryAttempts)
	}
	if c.PollIntervalSeconds < 1 {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must be >= 1, got %d", c.PollIntervalSeconds)
	}
	for _, f := range c.ExcludedFrequenciesMHz {
		if f < 118.0 || f > 137.0 {
			return fmt.Errorf("EXCLUDED_FREQUENCIES_MHZ: %.3f is outside the airband 118.0..137.0", f)
		}
	}
	for _, p := range c.CallsignPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("CALLSIGN_PATTERNS: invalid pattern %q: %v", p, err)
		}
	}
	if c.FlightCompletionMinutes < 1 {
		return fmt.Errorf("FLIGHT_COMPLETION_MINUTES must be >= 1, got %d", c.FlightCompletionMinutes)
	}
	if c.ControllerCompletionMinutes < 1 {
		return fmt.Errorf("CONTROLLER_COMPLETION_MINUTES must be >= 1, got %d", c.ControllerCompletionMinutes)
	}
	if c.FlightRetentionHours < 1 {
		return fmt.Errorf("FLIGHT_RETENTION_HOURS must be >= 1, got %d", c.FlightRetentionHours)
	}
	if c.ControllerRetentionHours < 1 {
		return fmt.Errorf("CONTROLLER_RETENTION_HOURS must be >= 1, got %d", c.ControllerRetentionHours)
	}
	if c.SummaryPassIntervalMinutes < 1 {
		return fmt.Errorf("SUMMARY_PASS_INTERVAL_MINUTES must be >= 1, got %d", c.SummaryPassIntervalMinutes)
	}
	if c.TransceiverRetentionHours < 1 {
		return fmt.Errorf("TRANSCEIVER_RETENTION_HOURS must be >= 1, got %d", c.TransceiverRetentionHours)
	}
	if c.FrequencyToleranceMHz < 0 {
		return fmt.Errorf("FREQUENCY_TOLERANCE_MHZ must be >= 0, got %g", c.FrequencyToleranceMHz)
	}
	if c.TimeWindowSeconds < 0 {
		return fmt.Errorf("TIME_WINDOW_SECONDS must be >= 0, got %d", c.TimeWindowSeconds)
	}
	if c.ProximityNM <= 0 {
		return fmt.Errorf("PROXIMITY_NM must be > 0, got %g", c.ProximityNM)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be >= 1, got %d", c.BatchSize)
	}
	if c.WorkerCount < 0 {
		return fmt.Errorf("WORKER_COUNT must be >= 0, got %d", c.WorkerCount)
	}
	return nil
}

// Workers is the per-pass concurrency bound: WORKER_COUNT, or the pool
// size when unset.
func (c *Config) Workers() int {
	if c.WorkerCount > 0 {
		return c.WorkerCount
	}
	return c.DBPoolSize
}
