package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPersistTimeout  = 5 * time.Second
	DefaultHistoryLimit    = 100
	DefaultRateLimitRPS    = 10
	DefaultRateLimitBurst  = 20
	DefaultLoginRPS        = 1
	DefaultLoginBurst      = 5
	DefaultRetentionCron   = "0 2 * * *"
	DefaultRetentionPeriod = 30 * 24 * time.Hour

	envPrefix = "GOMESSENGER_"
)

type RateLimitConfig struct {
	RPS        float64 `yaml:"rps"`
	Burst      int     `yaml:"burst"`
	LoginRPS   float64 `yaml:"login_rps"`
	LoginBurst int     `yaml:"login_burst"`
}

type RetentionConfig struct {
	Enabled bool          `yaml:"enabled"`
	Cron    string        `yaml:"cron"`
	Period  time.Duration `yaml:"period"`
}

type Config struct {
	DatabaseDSN    string
	ServerAddr     string
	SigningKey     []byte
	AllowedOrigins []string
	PersistTimeout time.Duration
	HistoryLimit   int
	RateLimit      RateLimitConfig
	Retention      RetentionConfig
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, fmt.Errorf("empty secret")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

// NewConfig validates the mandatory settings and fills every tunable with
// its default.
func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		DatabaseDSN:    databaseDSN,
		ServerAddr:     serverAddr,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		PersistTimeout: DefaultPersistTimeout,
		HistoryLimit:   DefaultHistoryLimit,
		RateLimit: RateLimitConfig{
			RPS:        DefaultRateLimitRPS,
			Burst:      DefaultRateLimitBurst,
			LoginRPS:   DefaultLoginRPS,
			LoginBurst: DefaultLoginBurst,
		},
		Retention: RetentionConfig{
			Cron:   DefaultRetentionCron,
			Period: DefaultRetentionPeriod,
		},
	}, nil
}

// Options holds raw settings gathered from a config file, the environment
// and command-line flags, in that order of increasing precedence.
type Options struct {
	ServerAddr     string          `yaml:"addr"`
	DatabaseDSN    string          `yaml:"dsn"`
	SigningKey     string          `yaml:"signing_key"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	PersistTimeout time.Duration   `yaml:"persist_timeout"`
	HistoryLimit   int             `yaml:"history_limit"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	Retention      RetentionConfig `yaml:"retention"`
}

// LoadFile overlays the YAML document at path onto o.
func (o *Options) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, o); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	return nil
}

// LoadDotEnv loads .env style files into the process environment without
// overriding variables that are already set.
func LoadDotEnv(files ...string) error {
	return godotenv.Load(files...)
}

// LoadEnv overlays GOMESSENGER_* environment variables onto o.
func (o *Options) LoadEnv() error {
	var err error

	o.ServerAddr = getEnv("ADDR", o.ServerAddr)
	o.DatabaseDSN = getEnv("DSN", o.DatabaseDSN)
	o.SigningKey = getEnv("SIGNING_KEY", o.SigningKey)
	if origins := getEnv("ALLOWED_ORIGINS", ""); origins != "" {
		o.AllowedOrigins = strings.Split(origins, ",")
	}

	if o.PersistTimeout, err = getEnvAsDuration("PERSIST_TIMEOUT", o.PersistTimeout); err != nil {
		return err
	}
	if o.HistoryLimit, err = getEnvAsInt("HISTORY_LIMIT", o.HistoryLimit); err != nil {
		return err
	}
	if o.RateLimit.RPS, err = getEnvAsFloat("RATE_LIMIT_RPS", o.RateLimit.RPS); err != nil {
		return err
	}
	if o.RateLimit.Burst, err = getEnvAsInt("RATE_LIMIT_BURST", o.RateLimit.Burst); err != nil {
		return err
	}
	if o.Retention.Enabled, err = getEnvAsBool("RETENTION_ENABLED", o.Retention.Enabled); err != nil {
		return err
	}
	o.Retention.Cron = getEnv("RETENTION_CRON", o.Retention.Cron)
	if o.Retention.Period, err = getEnvAsDuration("RETENTION_PERIOD", o.Retention.Period); err != nil {
		return err
	}

	return nil
}

// Build validates o and returns the resulting Config. Zero tunables keep
// their defaults.
func (o Options) Build() (*Config, error) {
	cfg, err := NewConfig(o.ServerAddr, o.DatabaseDSN, o.SigningKey, o.AllowedOrigins)
	if err != nil {
		return nil, err
	}

	if o.PersistTimeout < 0 || o.HistoryLimit < 0 || o.RateLimit.RPS < 0 || o.RateLimit.Burst < 0 {
		return nil, fmt.Errorf("tunables cannot be negative")
	}

	if o.PersistTimeout > 0 {
		cfg.PersistTimeout = o.PersistTimeout
	}
	if o.HistoryLimit > 0 {
		cfg.HistoryLimit = o.HistoryLimit
	}
	if o.RateLimit.RPS > 0 {
		cfg.RateLimit.RPS = o.RateLimit.RPS
	}
	if o.RateLimit.Burst > 0 {
		cfg.RateLimit.Burst = o.RateLimit.Burst
	}
	if o.RateLimit.LoginRPS > 0 {
		cfg.RateLimit.LoginRPS = o.RateLimit.LoginRPS
	}
	if o.RateLimit.LoginBurst > 0 {
		cfg.RateLimit.LoginBurst = o.RateLimit.LoginBurst
	}

	cfg.Retention.Enabled = o.Retention.Enabled
	if o.Retention.Cron != "" {
		cfg.Retention.Cron = o.Retention.Cron
	}
	if o.Retention.Period > 0 {
		cfg.Retention.Period = o.Retention.Period
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(envPrefix + key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return n, nil
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue, nil
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return f, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue, nil
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return b, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return d, nil
}
