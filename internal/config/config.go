package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	APIBaseURL      string        `mapstructure:"API_BASE_URL"`
	AuthBaseURL     string        `mapstructure:"AUTH_BASE_URL"`
	AuthRealm       string        `mapstructure:"AUTH_REALM"`
	AuthClientID    string        `mapstructure:"AUTH_CLIENT_ID"`
	AuthIssuer      string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL     string        `mapstructure:"AUTH_JWKS_URL"`
	RefreshInterval time.Duration `mapstructure:"DASHBOARD_REFRESH_INTERVAL"`
	VitalsInterval  time.Duration `mapstructure:"VITALS_INTERVAL"`
	DoctorID        string        `mapstructure:"DOCTOR_ID"`
	VisibilityFile  string        `mapstructure:"VISIBILITY_FILE"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	LogFormat       string        `mapstructure:"LOG_FORMAT"`
	RabbitMQURL     string        `mapstructure:"RABBITMQ_URL"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	StatusAddr      string        `mapstructure:"STATUS_ADDR"`
	AllowedOrigins  string        `mapstructure:"ALLOWED_ORIGINS"`
	Environment     string        `mapstructure:"ENVIRONMENT"`

	OTLPEndpoint    string        `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTELEnabled     bool          `mapstructure:"OTEL_ENABLED"`
	TracesSampler   string        `mapstructure:"OTEL_TRACES_SAMPLER"`
	MetricsInterval time.Duration `mapstructure:"OTEL_METRICS_EXPORT_INTERVAL"`
}

var keys = []string{
	"API_BASE_URL",
	"AUTH_BASE_URL",
	"AUTH_REALM",
	"AUTH_CLIENT_ID",
	"AUTH_ISSUER",
	"AUTH_JWKS_URL",
	"DASHBOARD_REFRESH_INTERVAL",
	"VITALS_INTERVAL",
	"DOCTOR_ID",
	"VISIBILITY_FILE",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"RABBITMQ_URL",
	"DATABASE_URL",
	"STATUS_ADDR",
	"ALLOWED_ORIGINS",
	"ENVIRONMENT",
	"OTEL_EXPORTER_OTLP_ENDPOINT",
	"OTEL_ENABLED",
	"OTEL_TRACES_SAMPLER",
	"OTEL_METRICS_EXPORT_INTERVAL",
}

// Load reads configuration from the environment and an optional config file.
// An empty path falls back to ".env" in the working directory; a missing
// file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path == "" {
		path = ".env"
	}
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("API_BASE_URL", "http://127.0.0.1:8080")
	v.SetDefault("AUTH_REALM", "telemedicine")
	v.SetDefault("AUTH_CLIENT_ID", "telemed-dashboard")
	v.SetDefault("DASHBOARD_REFRESH_INTERVAL", "30s")
	v.SetDefault("VITALS_INTERVAL", "5s")
	v.SetDefault("DOCTOR_ID", "1")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ENVIRONMENT", "production")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_TRACES_SAMPLER", "always_on")
	v.SetDefault("OTEL_METRICS_EXPORT_INTERVAL", "30s")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.APIBaseURL = strings.TrimSuffix(cfg.APIBaseURL, "/")
	cfg.AuthBaseURL = strings.TrimSuffix(cfg.AuthBaseURL, "/")
	if cfg.AuthBaseURL != "" && cfg.AuthIssuer == "" {
		cfg.AuthIssuer = cfg.AuthBaseURL + "/realms/" + cfg.AuthRealm
	}
	if cfg.AuthIssuer != "" && cfg.AuthJWKSURL == "" {
		cfg.AuthJWKSURL = cfg.AuthIssuer + "/protocol/openid-connect/certs"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Origins splits ALLOWED_ORIGINS into its trimmed, non-empty entries.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Validate checks the settings the dashboard cannot run without.
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.APIBaseURL); err != nil {
		return fmt.Errorf("API_BASE_URL is not a valid URL: %w", err)
	}
	if c.AuthBaseURL == "" {
		return fmt.Errorf("AUTH_BASE_URL is required")
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("DASHBOARD_REFRESH_INTERVAL must be positive, got %s", c.RefreshInterval)
	}
	if c.VitalsInterval <= 0 {
		return fmt.Errorf("VITALS_INTERVAL must be positive, got %s", c.VitalsInterval)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("LOG_FORMAT must be \"json\" or \"console\", got %q", c.LogFormat)
	}
	return nil
}

// DatabaseURL reads only DATABASE_URL, for tools that need nothing else.
func DatabaseURL(path string) (string, error) {
	v := viper.New()
	if path == "" {
		path = ".env"
	}
	v.SetConfigFile(path)
	v.SetConfigType("env")
	_ = v.BindEnv("DATABASE_URL")
	_ = v.ReadInConfig()

	dsn := v.GetString("DATABASE_URL")
	if dsn == "" {
		return "", fmt.Errorf("DATABASE_URL is required")
	}
	return dsn, nil
}
