package store

import "time"

// Config holds configuration for the Store.
type Config struct {
	// JoinSeparator is the token that marks a table as a relationship table.
	// Join tables are named "<parentTable><JoinSeparator><childTable>".
	// It must never appear in an entity table name.
	// Default: "~"
	JoinSeparator string

	// IDAttribute is the hash key attribute of entity tables.
	// Default: "id"
	IDAttribute string

	// MaxRetries bounds how often unprocessed BatchWriteItem deletes are resubmitted.
	// Default: 5
	MaxRetries int

	// RetryBaseDelay is the first backoff delay between resubmissions.
	// Each attempt doubles it, with jitter.
	// Default: 50ms
	RetryBaseDelay time.Duration

	// MaxRetryDelay caps the backoff delay between resubmissions.
	// Default: 5s
	MaxRetryDelay time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		JoinSeparator:  "~",
		IDAttribute:    "id",
		MaxRetries:     5,
		RetryBaseDelay: 50 * time.Millisecond,
		MaxRetryDelay:  5 * time.Second,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.JoinSeparator == "" {
		c.JoinSeparator = "~"
	}
	if c.IDAttribute == "" {
		c.IDAttribute = "id"
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxRetries > 20 {
		c.MaxRetries = 20
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 50 * time.Millisecond
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = 5 * time.Second
	}
	if c.RetryBaseDelay > c.MaxRetryDelay {
		c.RetryBaseDelay = c.MaxRetryDelay
	}
}
