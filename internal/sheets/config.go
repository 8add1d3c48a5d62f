// Package sheets exports aggregation results to Google Sheets.
package sheets

import (
	"fmt"
	"time"

	"github.com/Veraticus/cobertura/internal/common"
)

// Config holds the configuration for the Google Sheets writer.
type Config struct {
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	ServiceAccountPath string
	SpreadsheetID      string
	SpreadsheetName    string
	TimeZone           string
	BatchSize          int
	RetryAttempts      int
	RetryDelay         time.Duration
	EnableFormatting   bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		EnableFormatting: true,
		SpreadsheetName:  "Land Cover Transitions",
		TimeZone:         "America/Bogota",
		BatchSize:        1000,
		RetryAttempts:    3,
		RetryDelay:       time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	// Check authentication
	hasOAuth := c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
	hasServiceAccount := c.ServiceAccountPath != ""

	if !hasOAuth && !hasServiceAccount {
		return fmt.Errorf("%w: no authentication method configured", common.ErrMissingConfig)
	}

	if hasOAuth && hasServiceAccount {
		return common.InvalidConfig("sheets", "has multiple authentication methods configured; use either OAuth2 or service account")
	}

	if c.BatchSize <= 0 {
		return common.InvalidConfig("sheets batch size", "must be positive")
	}

	if c.RetryAttempts < 0 {
		return common.InvalidConfig("sheets retry attempts", "cannot be negative")
	}

	if c.RetryDelay < 0 {
		return common.InvalidConfig("sheets retry delay", "cannot be negative")
	}

	return nil
}

func (c *Config) retryOptions() common.RetryOptions {
	return common.RetryOptions{
		Retryable:    common.IsRetryable,
		MaxAttempts:  c.RetryAttempts,
		InitialDelay: c.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}
