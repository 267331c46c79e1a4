package config

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// Config holds all configuration for the easy-trigger application.
// Values are loaded from environment variables; see printUsage() for the full list.
type Config struct {
	DatabaseURL string `json:"database_url"`
	RedisAddr   string `json:"redis_addr,omitempty"`
	HTTPAddr    string `json:"http_addr"`
	JWTSecret   string `json:"jwt_secret"`

	SweepInterval    time.Duration `json:"-"`
	SweepIntervalStr string        `json:"sweep_interval"`

	ArchiveAfter    time.Duration `json:"-"`
	ArchiveAfterStr string        `json:"archive_after"`

	DeleteAfter    time.Duration `json:"-"`
	DeleteAfterStr string        `json:"delete_after"`

	CacheTTL    time.Duration `json:"-"`
	CacheTTLStr string        `json:"cache_ttl"`

	DBOpTimeout    time.Duration `json:"-"`
	DBOpTimeoutStr string        `json:"db_op_timeout"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`
	DBConnMaxIdleTime    time.Duration `json:"-"`
	DBConnMaxIdleTimeStr string        `json:"db_conn_max_idle_time"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`
	MetricsAddr    string `json:"metrics_addr"`

	// TestRatePerMinute: test firings allowed per user per minute. 0 disables
	// the limit.
	TestRatePerMinute int `json:"test_rate_per_minute"`
	TestRateBurst     int `json:"test_rate_burst"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		HTTPAddr:               os.Getenv("HTTP_ADDR"),
		JWTSecret:              os.Getenv("JWT_SECRET"),
		SweepIntervalStr:       os.Getenv("SWEEP_INTERVAL"),
		ArchiveAfterStr:        os.Getenv("ARCHIVE_AFTER"),
		DeleteAfterStr:         os.Getenv("DELETE_AFTER"),
		CacheTTLStr:            os.Getenv("CACHE_TTL"),
		DBOpTimeoutStr:         os.Getenv("DB_OP_TIMEOUT"),
		DBConnMaxLifetimeStr:   os.Getenv("DB_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTimeStr:   os.Getenv("DB_CONN_MAX_IDLE_TIME"),
		HTTPShutdownTimeoutStr: os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		MetricsEnabled:         os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:            os.Getenv("METRICS_PATH"),
		MetricsAddr:            os.Getenv("METRICS_ADDR"),
	}

	if rateStr := os.Getenv("TEST_RATE_PER_MINUTE"); rateStr != "" {
		if n, err := parseInt(rateStr); err == nil {
			cfg.TestRatePerMinute = n
		} else {
			log.Printf("config: invalid TEST_RATE_PER_MINUTE %q (must be a non-negative integer), using default 6", rateStr)
		}
	}
	if cfg.TestRatePerMinute == 0 && os.Getenv("TEST_RATE_PER_MINUTE") == "" {
		cfg.TestRatePerMinute = 6
	}

	if burstStr := os.Getenv("TEST_RATE_BURST"); burstStr != "" {
		if n, err := parseInt(burstStr); err == nil && n > 0 {
			cfg.TestRateBurst = n
		} else {
			log.Printf("config: invalid TEST_RATE_BURST %q (must be a positive integer), using default 3", burstStr)
		}
	}
	if cfg.TestRateBurst == 0 {
		cfg.TestRateBurst = 3
	}

	if maxOpenStr := os.Getenv("DB_MAX_OPEN_CONNS"); maxOpenStr != "" {
		if n, err := parseInt(maxOpenStr); err == nil && n > 0 {
			cfg.DBMaxOpenConns = n
		}
	}
	if cfg.DBMaxOpenConns == 0 {
		cfg.DBMaxOpenConns = 25
	}

	if maxIdleStr := os.Getenv("DB_MAX_IDLE_CONNS"); maxIdleStr != "" {
		if n, err := parseInt(maxIdleStr); err == nil && n > 0 {
			cfg.DBMaxIdleConns = n
		}
	}
	if cfg.DBMaxIdleConns == 0 {
		cfg.DBMaxIdleConns = 5
	}

	// Support Railway's PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.SweepIntervalStr == "" {
		cfg.SweepIntervalStr = "30m"
	}
	if cfg.ArchiveAfterStr == "" {
		cfg.ArchiveAfterStr = "2h"
	}
	if cfg.DeleteAfterStr == "" {
		cfg.DeleteAfterStr = "48h"
	}
	if cfg.CacheTTLStr == "" {
		cfg.CacheTTLStr = "60s"
	}
	if cfg.DBOpTimeoutStr == "" {
		cfg.DBOpTimeoutStr = "5s"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.DBConnMaxIdleTimeStr == "" {
		cfg.DBConnMaxIdleTimeStr = "5m"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9090"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.SweepIntervalStr); err == nil {
		cfg.SweepInterval = d
	}
	if d, err := time.ParseDuration(cfg.ArchiveAfterStr); err == nil {
		cfg.ArchiveAfter = d
	}
	if d, err := time.ParseDuration(cfg.DeleteAfterStr); err == nil {
		cfg.DeleteAfter = d
	}
	if d, err := time.ParseDuration(cfg.CacheTTLStr); err == nil {
		cfg.CacheTTL = d
	}
	if d, err := time.ParseDuration(cfg.DBOpTimeoutStr); err == nil {
		cfg.DBOpTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxIdleTimeStr); err == nil {
		cfg.DBConnMaxIdleTime = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}

	return cfg
}

// parseInt parses a string as an integer.
func parseInt(s string) (int, error) {
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		DatabaseURL         string `json:"database_url"`
		RedisAddr           string `json:"redis_addr,omitempty"`
		HTTPAddr            string `json:"http_addr"`
		JWTSecret           string `json:"jwt_secret"`
		SweepInterval       string `json:"sweep_interval"`
		ArchiveAfter        string `json:"archive_after"`
		DeleteAfter         string `json:"delete_after"`
		CacheTTL            string `json:"cache_ttl"`
		DBOpTimeout         string `json:"db_op_timeout"`
		DBMaxOpenConns      int    `json:"db_max_open_conns"`
		DBMaxIdleConns      int    `json:"db_max_idle_conns"`
		DBConnMaxLifetime   string `json:"db_conn_max_lifetime"`
		DBConnMaxIdleTime   string `json:"db_conn_max_idle_time"`
		HTTPShutdownTimeout string `json:"http_shutdown_timeout"`
		MetricsEnabled      bool   `json:"metrics_enabled"`
		MetricsPath         string `json:"metrics_path"`
		MetricsAddr         string `json:"metrics_addr"`
		TestRatePerMinute   int    `json:"test_rate_per_minute"`
		TestRateBurst       int    `json:"test_rate_burst"`
	}{
		DatabaseURL:         maskSecret(c.DatabaseURL),
		RedisAddr:           c.RedisAddr,
		HTTPAddr:            c.HTTPAddr,
		JWTSecret:           maskSecret(c.JWTSecret),
		SweepInterval:       c.SweepIntervalStr,
		ArchiveAfter:        c.ArchiveAfterStr,
		DeleteAfter:         c.DeleteAfterStr,
		CacheTTL:            c.CacheTTLStr,
		DBOpTimeout:         c.DBOpTimeoutStr,
		DBMaxOpenConns:      c.DBMaxOpenConns,
		DBMaxIdleConns:      c.DBMaxIdleConns,
		DBConnMaxLifetime:   c.DBConnMaxLifetimeStr,
		DBConnMaxIdleTime:   c.DBConnMaxIdleTimeStr,
		HTTPShutdownTimeout: c.HTTPShutdownTimeoutStr,
		MetricsEnabled:      c.MetricsEnabled,
		MetricsPath:         c.MetricsPath,
		MetricsAddr:         c.MetricsAddr,
		TestRatePerMinute:   c.TestRatePerMinute,
		TestRateBurst:       c.TestRateBurst,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	return "***"
}
