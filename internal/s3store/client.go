// Package s3store implements the transfer tool's object store on Amazon S3.
//
// Uploads and downloads move whole files between a local filesystem
// abstraction and S3 object keys, reporting bytes moved through an optional
// completion callback. Network failures surface as wrapped errors, never
// panics.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/gabriel-vasile/mimetype"

	"github.com/Kshitiz1403/dicom-transfer/internal/fsutil"
)

// Client is an object store backed by S3. All methods are safe for
// concurrent use.
type Client struct {
	api    S3API
	fs     *fsutil.FS
	logger *slog.Logger
}

// New creates a Client, resolving AWS configuration through the default
// credential chain unless options override it.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := applyOptions(opts)

	loadOpts := []func(*config.LoadOptions) error{}
	if cfg.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.region))
	}
	if cfg.accessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.accessKeyID, cfg.secretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, newError("init", "", "", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.endpoint)
		}
		if cfg.forcePathStyle {
			o.UsePathStyle = true
		}
	})

	return &Client{api: api, fs: cfg.fs, logger: cfg.logger}, nil
}

// NewWithClient creates a Client over an existing S3 API implementation.
// Used by tests to substitute a mock.
func NewWithClient(api S3API, opts ...Option) *Client {
	cfg := applyOptions(opts)
	return &Client{api: api, fs: cfg.fs, logger: cfg.logger}
}

func applyOptions(opts []Option) *clientConfig {
	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.fs == nil {
		cfg.fs = fsutil.NewOSFS("/")
	}
	return cfg
}

// Upload stores the file at localPath under bucket/key with AES256
// server-side encryption and a sniffed Content-Type. On success the optional
// onBytes callback fires once with the file size.
func (c *Client) Upload(ctx context.Context, bucket, key, localPath string, onBytes func(int64)) error {
	if bucket == "" || key == "" || localPath == "" {
		return newError("upload", bucket, key, ErrInvalidInput)
	}

	data, err := c.fs.ReadFile(localPath)
	if err != nil {
		return newError("upload", bucket, key, err)
	}

	contentType := mimetype.Detect(data).String()

	_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(data),
		ContentType:          aws.String(contentType),
		ContentLength:        aws.Int64(int64(len(data))),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return newError("upload", bucket, key, err)
	}

	if c.logger != nil {
		c.logger.DebugContext(ctx, "uploaded object",
			"bucket", bucket, "key", key, "bytes", len(data), "content_type", contentType)
	}
	if onBytes != nil {
		onBytes(int64(len(data)))
	}
	return nil
}

// Download fetches bucket/key into the file at localPath, creating parent
// directories as needed. A missing object maps to ErrObjectNotFound. On
// success the optional onBytes callback fires once with the bytes written.
func (c *Client) Download(ctx context.Context, bucket, key, localPath string, onBytes func(int64)) error {
	if bucket == "" || key == "" || localPath == "" {
		return newError("download", bucket, key, ErrInvalidInput)
	}

	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return newError("download", bucket, key, ErrObjectNotFound)
		}
		return newError("download", bucket, key, err)
	}
	defer out.Body.Close()

	if dir := filepath.Dir(localPath); dir != "." && dir != "/" {
		if err := c.fs.EnsureDir(dir); err != nil {
			return newError("download", bucket, key, err)
		}
	}

	dst, err := c.fs.Create(localPath)
	if err != nil {
		return newError("download", bucket, key, err)
	}

	n, err := io.Copy(dst, out.Body)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return newError("download", bucket, key, err)
	}

	if c.logger != nil {
		c.logger.DebugContext(ctx, "downloaded object",
			"bucket", bucket, "key", key, "bytes", n, "path", localPath)
	}
	if onBytes != nil {
		onBytes(n)
	}
	return nil
}

// Exists reports whether bucket/key exists. A missing object is (false, nil),
// not an error.
func (c *Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	if bucket == "" || key == "" {
		return false, newError("exists", bucket, key, ErrInvalidInput)
	}

	_, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, newError("exists", bucket, key, err)
	}
	return true, nil
}

// Delete removes bucket/key. Deleting a nonexistent object succeeds, matching
// S3 semantics.
func (c *Client) Delete(ctx context.Context, bucket, key string) error {
	if bucket == "" || key == "" {
		return newError("delete", bucket, key, ErrInvalidInput)
	}

	if _, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return newError("delete", bucket, key, err)
	}
	return nil
}

// List returns every key under prefix in bucket, following continuation
// tokens until the listing is complete. Keys come back in listing order.
func (c *Client) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	if bucket == "" {
		return nil, newError("list", bucket, "", ErrInvalidInput)
	}

	var keys []string
	var token *string
	for {
		out, err := c.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, newError("list", bucket, prefix, err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			return keys, nil
		}
		token = out.NextContinuationToken
	}
}

// isNotFound classifies SDK errors that mean the object does not exist.
func isNotFound(err error) bool {
	var noKey *s3types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	return false
}
