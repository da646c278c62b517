// internal/config/database.go
package config

import (
	"fmt"
)

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// StripeEnabled reports whether a real gateway is configured.
func (p *PaymentConfig) StripeEnabled() bool {
	return p.StripeSecretKey != ""
}

// ArchiveEnabled reports whether contract snapshots go to S3.
func (a *AWSConfig) ArchiveEnabled() bool {
	return a.AccessKeyID != "" && a.ArchiveBucket != ""
}
