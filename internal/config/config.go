// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	AWS         AWSConfig
	Payment     PaymentConfig
	Email       EmailConfig
	OTP         OTPConfig
	Addon       AddonConfig
	I18n        I18nConfig
	Frontend    FrontendConfig
	Log         LogConfig
}

type FrontendConfig struct {
	BaseURL string
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
	CORSOrigins  []string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey      string
	AccessTokenTTL int // in hours
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ArchiveBucket   string
}

type PaymentConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string
	GatewayTimeout      time.Duration
	SuccessPath         string
	CancelPath          string
}

type EmailConfig struct {
	SMTPHost        string
	SMTPPort        string
	SMTPUsername    string
	SMTPPassword    string
	FromEmail       string
	FromName        string
	DeliveryTimeout time.Duration
}

type OTPConfig struct {
	TTL            time.Duration
	Length         int
	ResendCooldown time.Duration
	HashCost       int
}

// Duplicate attachment policies.
const (
	AddonDuplicatesAllow  = "allow"
	AddonDuplicatesReject = "reject"
)

type AddonConfig struct {
	DuplicatePolicy string
}

type I18nConfig struct {
	DefaultLocale string
	LocalesPath   string
}

type LogConfig struct {
	Level string
	JSON  bool
}

const defaultJWTSecret = "your-secret-key-change-in-production"

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
			CORSOrigins:  getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "marketplace"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "warn"),
		},
		JWT: JWTConfig{
			SecretKey:      getEnv("JWT_SECRET", defaultJWTSecret),
			AccessTokenTTL: getEnvAsInt("JWT_ACCESS_TTL", 24), // 24 hours
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "ap-southeast-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ArchiveBucket:   getEnv("AWS_ARCHIVE_BUCKET", "marketplace-contracts"),
		},
		Payment: PaymentConfig{
			StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Currency:            strings.ToLower(getEnv("PAYMENT_CURRENCY", "vnd")),
			GatewayTimeout:      getEnvAsDuration("GATEWAY_TIMEOUT", 10*time.Second),
			SuccessPath:         getEnv("PAYMENT_SUCCESS_PATH", "/contracts/%s/payment/success"),
			CancelPath:          getEnv("PAYMENT_CANCEL_PATH", "/contracts/%s/payment/cancel"),
		},
		Email: EmailConfig{
			SMTPHost:        getEnv("SMTP_HOST", ""),
			SMTPPort:        getEnv("SMTP_PORT", "587"),
			SMTPUsername:    getEnv("SMTP_USERNAME", ""),
			SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
			FromEmail:       getEnv("FROM_EMAIL", "noreply@marketplace.local"),
			FromName:        getEnv("FROM_NAME", "Marketplace"),
			DeliveryTimeout: getEnvAsDuration("DELIVERY_TIMEOUT", 10*time.Second),
		},
		OTP: OTPConfig{
			TTL:            getEnvAsDuration("OTP_TTL", 5*time.Minute),
			Length:         getEnvAsInt("OTP_LENGTH", 6),
			ResendCooldown: getEnvAsDuration("OTP_RESEND_COOLDOWN", time.Minute),
			HashCost:       getEnvAsInt("OTP_HASH_COST", 10),
		},
		Addon: AddonConfig{
			DuplicatePolicy: strings.ToLower(getEnv("ADDON_DUPLICATE_POLICY", AddonDuplicatesAllow)),
		},
		I18n: I18nConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
			LocalesPath:   getEnv("LOCALES_PATH", "./internal/i18n/locales"),
		},
		Frontend: FrontendConfig{
			BaseURL: getEnv("FRONTEND_BASE_URL", "http://localhost:3000"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			JSON:  getEnvAsBool("LOG_JSON", false),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.Environment == "production" {
		if c.JWT.SecretKey == defaultJWTSecret {
			return fmt.Errorf("JWT secret key must be changed in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database password is required in production")
		}
		if c.Payment.StripeSecretKey == "" || c.Payment.StripeWebhookSecret == "" {
			return fmt.Errorf("stripe secret key and webhook secret are required in production")
		}
	}

	if c.OTP.TTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive")
	}
	if c.OTP.Length < 4 || c.OTP.Length > 10 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 10")
	}

	switch c.Addon.DuplicatePolicy {
	case AddonDuplicatesAllow, AddonDuplicatesReject:
	default:
		return fmt.Errorf("unknown ADDON_DUPLICATE_POLICY %q", c.Addon.DuplicatePolicy)
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
