package s3store

import (
	"errors"
	"fmt"
)

var (
	// ErrObjectNotFound is returned when a requested object does not exist
	// in the bucket.
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidInput is returned when a required argument (bucket, key,
	// local path) is empty.
	ErrInvalidInput = errors.New("invalid input")
)

// Error is an S3 operation failure with the context needed to debug it.
// It wraps the underlying SDK error for errors.Is / errors.As chains.
type Error struct {
	// Op is the operation that failed ("upload", "download", ...).
	Op string

	// Bucket is the bucket involved, when applicable.
	Bucket string

	// Key is the object key involved, when applicable.
	Key string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Bucket != "" && e.Key != "":
		return fmt.Sprintf("s3store.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	case e.Bucket != "":
		return fmt.Sprintf("s3store.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	default:
		return fmt.Sprintf("s3store.%s: %v", e.Op, e.Err)
	}
}

// Unwrap returns the underlying error for error chaining.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, bucket, key string, err error) *Error {
	return &Error{Op: op, Bucket: bucket, Key: key, Err: err}
}
