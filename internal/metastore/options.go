package metastore

import (
	"log/slog"
	"time"
)

// Option configures a Store.
type Option func(*storeConfig)

type storeConfig struct {
	region       string
	endpoint     string
	accessKeyID  string
	secretKey    string
	logger       *slog.Logger
	pollInterval time.Duration
	pollAttempts int
}

// WithRegion sets the AWS region. When unset, the default credential chain's
// region applies.
func WithRegion(region string) Option {
	return func(c *storeConfig) {
		c.region = region
	}
}

// WithEndpoint sets a custom DynamoDB endpoint URL, for LocalStack or
// DynamoDB Local.
func WithEndpoint(endpoint string) Option {
	return func(c *storeConfig) {
		c.endpoint = endpoint
	}
}

// WithStaticCredentials sets explicit credentials instead of the default
// chain. Intended for LocalStack and CI.
func WithStaticCredentials(accessKeyID, secretKey string) Option {
	return func(c *storeConfig) {
		c.accessKeyID = accessKeyID
		c.secretKey = secretKey
	}
}

// WithLogger sets the structured logger. A nil logger keeps the store
// silent.
func WithLogger(logger *slog.Logger) Option {
	return func(c *storeConfig) {
		c.logger = logger
	}
}

// WithReadyPoll tunes the bounded wait for a freshly created table to reach
// ACTIVE. The default is 30 polls one second apart. Tests shorten it.
func WithReadyPoll(interval time.Duration, attempts int) Option {
	return func(c *storeConfig) {
		if interval > 0 {
			c.pollInterval = interval
		}
		if attempts > 0 {
			c.pollAttempts = attempts
		}
	}
}
