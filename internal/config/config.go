package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	JWTSecret string `mapstructure:"JWT_SECRET"`
	JWTIssuer string `mapstructure:"JWT_ISSUER"`

	// TimezoneOffsetMinutes is the lab's local offset from UTC, used for
	// date-window presets. Defaults to +05:30.
	TimezoneOffsetMinutes int `mapstructure:"TIMEZONE_OFFSET_MINUTES"`

	SLACriticalHours int `mapstructure:"SLA_CRITICAL_HOURS"`
	SLARoutineHours  int `mapstructure:"SLA_ROUTINE_HOURS"`

	BlobTimeoutSeconds    int `mapstructure:"BLOB_TIMEOUT_SECONDS"`
	RequestTimeoutSeconds int `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("JWT_ISSUER", "radpipe")
	v.SetDefault("TIMEZONE_OFFSET_MINUTES", 330)
	v.SetDefault("SLA_CRITICAL_HOURS", 24)
	v.SetDefault("SLA_ROUTINE_HOURS", 72)
	v.SetDefault("BLOB_TIMEOUT_SECONDS", 30)
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 30)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"CORS_ORIGINS", "JWT_SECRET", "JWT_ISSUER",
		"TIMEZONE_OFFSET_MINUTES", "SLA_CRITICAL_HOURS", "SLA_ROUTINE_HOURS",
		"BLOB_TIMEOUT_SECONDS", "REQUEST_TIMEOUT_SECONDS",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if !cfg.IsDev() && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required outside development")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Timezone returns the fixed lab zone derived from the configured offset.
func (c *Config) Timezone() *time.Location {
	offset := c.TimezoneOffsetMinutes * 60
	sign := "+"
	mins := c.TimezoneOffsetMinutes
	if mins < 0 {
		sign = "-"
		mins = -mins
	}
	name := fmt.Sprintf("UTC%s%02d:%02d", sign, mins/60, mins%60)
	return time.FixedZone(name, offset)
}

func (c *Config) BlobTimeout() time.Duration {
	return time.Duration(c.BlobTimeoutSeconds) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
