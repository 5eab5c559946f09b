package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 70, cfg.Risk.OTPThreshold)
	assert.Equal(t, "static", cfg.OTP.Issuer)
	assert.Equal(t, "redis", cfg.OTP.Store)
	assert.Equal(t, "123456", cfg.OTP.StaticCode)
	assert.Equal(t, 3, cfg.OTP.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, 15*time.Minute, cfg.OTP.LockRetention)
	assert.Equal(t, 2*time.Second, cfg.OTP.SuccessDismiss)
	assert.Equal(t, 3*time.Second, cfg.OTP.LockDismiss)
	assert.Equal(t, 2*time.Second, cfg.AttemptLog.WriteTimeout)
	assert.Equal(t, 10*time.Second, cfg.Collector.Interval)
	assert.Equal(t, time.Minute, cfg.Security.RateLimiting.DefaultWindow)
	assert.Equal(t, "riskgate:admin", cfg.Realtime.Channel)
	assert.Equal(t, "admin", cfg.Auth.AdminRole)
	assert.Empty(t, cfg.Security.TrustedProxies)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RISKGATE_OTP_ISSUER", "totp")
	t.Setenv("RISKGATE_RISK_OTP_THRESHOLD", "55")
	t.Setenv("RISKGATE_OTP_TTL", "90s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "totp", cfg.OTP.Issuer)
	assert.Equal(t, 55, cfg.Risk.OTPThreshold)
	assert.Equal(t, 90*time.Second, cfg.OTP.TTL)
}

func TestLoad_TrustedProxiesFromEnv(t *testing.T) {
	t.Setenv("RISKGATE_SECURITY_TRUSTED_PROXIES", "10.0.0.0/8,192.168.1.7")

	cfg, err := Load()
	require.NoError(t, err)
	prefixes, err := cfg.Security.TrustedProxyPrefixes()
	require.NoError(t, err)
	require.Len(t, prefixes, 2)
	assert.Equal(t, "10.0.0.0/8", prefixes[0].String())
	assert.Equal(t, "192.168.1.7/32", prefixes[1].String())
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Setenv("RISKGATE_OTP_ISSUER", "sms")
	_, err := Load()
	assert.ErrorContains(t, err, "otp.issuer")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Risk: RiskConfig{OTPThreshold: 70},
			OTP:  OTPConfig{Issuer: "static", Store: "memory", MaxAttempts: 3},
		}
	}
	require.NoError(t, valid().Validate())

	c := valid()
	c.OTP.Store = "disk"
	assert.ErrorContains(t, c.Validate(), "otp.store")

	c = valid()
	c.OTP.MaxAttempts = 0
	assert.ErrorContains(t, c.Validate(), "otp.max_attempts")

	c = valid()
	c.Risk.OTPThreshold = 101
	assert.ErrorContains(t, c.Validate(), "risk.otp_threshold")

	c = valid()
	c.Security.TrustedProxies = []string{"10.0.0.0/33"}
	assert.ErrorContains(t, c.Validate(), "security.trusted_proxies")
}

func TestConnectionStrings(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, Name: "riskgate", User: "u", Password: "p", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=riskgate sslmode=disable", db.DSN())
	assert.Equal(t, "postgres://u:p@db:5432/riskgate?sslmode=disable", db.URL())
	assert.Equal(t, "cache:6380", RedisConfig{Host: "cache", Port: 6380}.Addr())
}
