package s3store

import (
	"log/slog"

	"github.com/Kshitiz1403/dicom-transfer/internal/fsutil"
)

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	region         string
	endpoint       string
	forcePathStyle bool
	accessKeyID    string
	secretKey      string
	fs             *fsutil.FS
	logger         *slog.Logger
}

// WithRegion sets the AWS region. When unset, the default credential chain's
// region applies.
func WithRegion(region string) Option {
	return func(c *clientConfig) {
		c.region = region
	}
}

// WithEndpoint sets a custom S3 endpoint URL, for S3-compatible services or
// LocalStack.
func WithEndpoint(endpoint string) Option {
	return func(c *clientConfig) {
		c.endpoint = endpoint
	}
}

// WithForcePathStyle forces path-style URLs. Required for S3-compatible
// services that do not support virtual hosting.
func WithForcePathStyle(force bool) Option {
	return func(c *clientConfig) {
		c.forcePathStyle = force
	}
}

// WithStaticCredentials sets explicit credentials instead of the default
// chain. Intended for LocalStack and CI.
func WithStaticCredentials(accessKeyID, secretKey string) Option {
	return func(c *clientConfig) {
		c.accessKeyID = accessKeyID
		c.secretKey = secretKey
	}
}

// WithFilesystem sets the filesystem used for local reads and writes.
// Default is the host filesystem rooted at /.
func WithFilesystem(fsys *fsutil.FS) Option {
	return func(c *clientConfig) {
		c.fs = fsys
	}
}

// WithLogger sets the structured logger. A nil logger keeps the client
// silent.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}
