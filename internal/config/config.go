package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Log        LogConfig        `mapstructure:"log"`
	Security   SecurityConfig   `mapstructure:"security"`
	Risk       RiskConfig       `mapstructure:"risk"`
	OTP        OTPConfig        `mapstructure:"otp"`
	AttemptLog AttemptLogConfig `mapstructure:"attempt_log"`
	Collector  CollectorConfig  `mapstructure:"collector"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Email      EmailConfig      `mapstructure:"email"`
	Realtime   RealtimeConfig   `mapstructure:"realtime"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	TLS  struct {
		Enabled  bool   `mapstructure:"enabled"`
		CertFile string `mapstructure:"cert_file"`
		KeyFile  string `mapstructure:"key_file"`
	} `mapstructure:"tls"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// URL returns the connection string in URL form, as expected by golang-migrate.
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	// TrustedProxies lists the CIDRs whose X-Forwarded-For header is believed
	// when keying rate limits. Other callers are keyed by socket address.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	DefaultLimit  int           `mapstructure:"default_limit"`
	DefaultWindow time.Duration `mapstructure:"default_window"`
	// OTPLimit caps validate/resend calls per client IP within OTPWindow.
	OTPLimit  int           `mapstructure:"otp_limit"`
	OTPWindow time.Duration `mapstructure:"otp_window"`
}

// RiskConfig holds risk scoring configuration
type RiskConfig struct {
	// OTPThreshold is the score above which a challenge is opened (strictly greater).
	OTPThreshold int `mapstructure:"otp_threshold"`
}

// OTPConfig holds the one-time-code gate configuration
type OTPConfig struct {
	// Issuer selects how codes are produced: "static" or "totp".
	Issuer string `mapstructure:"issuer"`
	// Store selects where challenges live: "redis" or "memory" (single instance only).
	Store string `mapstructure:"store"`
	// StaticCode is the code accepted by the static issuer.
	StaticCode  string        `mapstructure:"static_code"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	TTL         time.Duration `mapstructure:"ttl"`
	// LockRetention is how long a locked challenge blocks the session.
	LockRetention time.Duration `mapstructure:"lock_retention"`
	// SuccessDismiss and LockDismiss are returned to clients as auto-dismiss hints.
	SuccessDismiss time.Duration `mapstructure:"success_dismiss"`
	LockDismiss    time.Duration `mapstructure:"lock_dismiss"`
	TOTPPeriod     uint          `mapstructure:"totp_period"`
	TOTPSkew       uint          `mapstructure:"totp_skew"`
	TOTPIssuerName string        `mapstructure:"totp_issuer_name"`
}

// AttemptLogConfig holds attempt log write settings
type AttemptLogConfig struct {
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ListLimit bounds admin listings.
	ListLimit int `mapstructure:"list_limit"`
}

// CollectorConfig holds defaults for behavior collectors built by this binary
type CollectorConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	IdleThreshold time.Duration `mapstructure:"idle_threshold"`
}

// AuthConfig holds bearer token verification settings.
// An empty JWTSecret disables identity extraction; requests are treated as anonymous.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
	// AdminRole is the role claim required by the admin views and the live feed.
	AdminRole string `mapstructure:"admin_role"`
}

// EmailConfig holds email sending configuration
type EmailConfig struct {
	// Provider is the email provider to use: "gmail" or "log".
	Provider string `mapstructure:"provider"`
	// AppName is the application name shown in emails
	AppName string           `mapstructure:"app_name"`
	Gmail   GmailEmailConfig `mapstructure:"gmail"`
}

// GmailEmailConfig holds Gmail API configuration
type GmailEmailConfig struct {
	// CredentialsJSON is the service account credentials JSON content
	CredentialsJSON string `mapstructure:"credentials_json"`
	ClientID        string `mapstructure:"client_id"`
	ClientSecret    string `mapstructure:"client_secret"`
	RefreshToken    string `mapstructure:"refresh_token"`
	SenderAddress   string `mapstructure:"sender_address"`
	SenderName      string `mapstructure:"sender_name"`
}

// RealtimeConfig holds admin live-feed configuration
type RealtimeConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Channel string `mapstructure:"channel"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/riskgate")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("RISKGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.OTP.Issuer {
	case "static", "totp":
	default:
		return fmt.Errorf("invalid otp.issuer %q: must be static or totp", c.OTP.Issuer)
	}
	switch c.OTP.Store {
	case "redis", "memory":
	default:
		return fmt.Errorf("invalid otp.store %q: must be redis or memory", c.OTP.Store)
	}
	if c.OTP.MaxAttempts < 1 {
		return fmt.Errorf("invalid otp.max_attempts %d: must be at least 1", c.OTP.MaxAttempts)
	}
	if c.Risk.OTPThreshold < 0 || c.Risk.OTPThreshold > 100 {
		return fmt.Errorf("invalid risk.otp_threshold %d: must be within 0-100", c.Risk.OTPThreshold)
	}
	if _, err := c.Security.TrustedProxyPrefixes(); err != nil {
		return err
	}
	return nil
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address is a single-host prefix.
func (c SecurityConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if addr, err := netip.ParseAddr(raw); err == nil {
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid security.trusted_proxies entry %q: %w", raw, err)
		}
		prefixes = append(prefixes, p.Masked())
	}
	return prefixes, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.tls.enabled", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "riskgate")
	v.SetDefault("database.user", "riskgate")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 25)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.default_limit", 100)
	v.SetDefault("security.rate_limiting.default_window", "1m")
	v.SetDefault("security.rate_limiting.otp_limit", 20)
	v.SetDefault("security.rate_limiting.otp_window", "5m")
	v.SetDefault("security.trusted_proxies", []string{})

	// Risk defaults
	v.SetDefault("risk.otp_threshold", 70)

	// OTP defaults
	v.SetDefault("otp.issuer", "static")
	v.SetDefault("otp.store", "redis")
	v.SetDefault("otp.static_code", "123456")
	v.SetDefault("otp.max_attempts", 3)
	v.SetDefault("otp.ttl", "10m")
	v.SetDefault("otp.lock_retention", "15m")
	v.SetDefault("otp.success_dismiss", "2s")
	v.SetDefault("otp.lock_dismiss", "3s")
	v.SetDefault("otp.totp_period", 30)
	v.SetDefault("otp.totp_skew", 1)
	v.SetDefault("otp.totp_issuer_name", "Breeze")

	// Attempt log defaults
	v.SetDefault("attempt_log.write_timeout", "2s")
	v.SetDefault("attempt_log.list_limit", 100)

	// Collector defaults
	v.SetDefault("collector.interval", "10s")
	v.SetDefault("collector.idle_threshold", "1s")

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.admin_role", "admin")

	// Email defaults
	v.SetDefault("email.provider", "log")
	v.SetDefault("email.app_name", "Breeze")
	v.SetDefault("email.gmail.sender_address", "")
	v.SetDefault("email.gmail.sender_name", "Breeze")

	// Realtime defaults
	v.SetDefault("realtime.enabled", true)
	v.SetDefault("realtime.channel", "riskgate:admin")
}
