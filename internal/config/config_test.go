// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	for _, key := range []string{"OTP_TTL", "OTP_LENGTH", "OTP_RESEND_COOLDOWN", "ADDON_DUPLICATE_POLICY", "PAYMENT_CURRENCY", "CORS_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, 6, cfg.OTP.Length)
	assert.Equal(t, time.Minute, cfg.OTP.ResendCooldown)
	assert.Equal(t, AddonDuplicatesAllow, cfg.Addon.DuplicatePolicy)
	assert.Equal(t, "vnd", cfg.Payment.Currency)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("OTP_TTL", "90s")
	t.Setenv("OTP_LENGTH", "8")
	t.Setenv("ADDON_DUPLICATE_POLICY", "REJECT")
	t.Setenv("PAYMENT_CURRENCY", "USD")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.OTP.TTL)
	assert.Equal(t, 8, cfg.OTP.Length)
	assert.Equal(t, AddonDuplicatesReject, cfg.Addon.DuplicatePolicy)
	assert.Equal(t, "usd", cfg.Payment.Currency)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Environment: "production",
			JWT:         JWTConfig{SecretKey: "rotated"},
			Database:    DatabaseConfig{Password: "secret"},
			Payment:     PaymentConfig{StripeSecretKey: "sk_live", StripeWebhookSecret: "whsec"},
			OTP:         OTPConfig{TTL: time.Minute, Length: 6},
			Addon:       AddonConfig{DuplicatePolicy: AddonDuplicatesAllow},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"default jwt secret", func(c *Config) { c.JWT.SecretKey = defaultJWTSecret }, "JWT secret"},
		{"no db password", func(c *Config) { c.Database.Password = "" }, "database password"},
		{"no webhook secret", func(c *Config) { c.Payment.StripeWebhookSecret = "" }, "stripe"},
		{"zero ttl", func(c *Config) { c.OTP.TTL = 0 }, "OTP_TTL"},
		{"short code", func(c *Config) { c.OTP.Length = 3 }, "OTP_LENGTH"},
		{"unknown policy", func(c *Config) { c.Addon.DuplicatePolicy = "merge" }, "ADDON_DUPLICATE_POLICY"},
		{"development skips secrets", func(c *Config) {
			c.Environment = "development"
			c.JWT.SecretKey = defaultJWTSecret
			c.Payment = PaymentConfig{}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}
