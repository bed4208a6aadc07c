// Package transfer orchestrates grouped DICOM transfers between local
// storage and the remote stores.
//
// Uploads discover files under a source root, partition the DICOM ones into
// study groups, and fan each group out as one task on a bounded worker pool;
// inside a group, member uploads fan out again under a concurrency limiter.
// Downloads fan out one task per stored object key. Per-item failures are
// logged as they happen and folded into aggregate results; one failure never
// cancels sibling work.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Kshitiz1403/dicom-transfer/internal/metrics"
)

// Default transfer settings, matching the original tool.
const (
	DefaultBucket    = "dicom-transfer-bucket"
	DefaultTable     = "dicom-studies"
	DefaultKeyPrefix = "studies"

	// DefaultGroupTransferCap bounds concurrent transfers within one study,
	// keeping total connection count at width + width*cap worst case.
	DefaultGroupTransferCap = 4

	// OtherFilesGroup is the synthetic group for files that are not DICOM.
	OtherFilesGroup = "other-files"
)

// Ledger operation names.
const (
	opUpload   = "S3 Upload"
	opDownload = "S3 Download"
	opMetadata = "DynamoDB Metadata"
)

// ErrNoFiles is returned by RunDownload when a study has no stored files.
var ErrNoFiles = errors.New("transfer: no files found for study")

// Inspector classifies files and extracts DICOM identity fields.
type Inspector interface {
	IsDICOM(path string) bool
	Metadata(path string) (map[string]string, error)
	StudyUID(path string) (string, error)
}

// ObjectStore moves file bytes to and from the remote object store. The
// onBytes callback, when non-nil, fires once on success with the bytes moved.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, key, localPath string, onBytes func(int64)) error
	Download(ctx context.Context, bucket, key, localPath string, onBytes func(int64)) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
	Delete(ctx context.Context, bucket, key string) error
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

// MetadataStore persists per-study metadata and the set of uploaded object
// keys.
type MetadataStore interface {
	PutStudy(ctx context.Context, table, studyUID string, fields map[string]string) error
	GetStudy(ctx context.Context, table, studyUID string) (map[string]string, error)
	AppendLocation(ctx context.Context, table, studyUID, location string) error
	Locations(ctx context.Context, table, studyUID string) ([]string, error)
}

// FileSystem is the local-filesystem surface the orchestrator touches.
type FileSystem interface {
	ListFiles(root string) ([]string, error)
	EnsureDir(path string) error
	IsDir(path string) bool
	FileSize(path string) (int64, error)
	Join(elem ...string) string
}

// Orchestrator runs grouped uploads and downloads over injected
// collaborators.
type Orchestrator struct {
	inspector Inspector
	objects   ObjectStore
	metadata  MetadataStore
	fs        FileSystem

	bucket    string
	table     string
	keyPrefix string
	groupCap  int

	logger *slog.Logger
	ledger *metrics.Ledger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger. A nil logger keeps the orchestrator
// silent.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithLedger sets the metrics ledger transfers are recorded on. When unset,
// a private ledger is created so recording is always safe.
func WithLedger(ledger *metrics.Ledger) Option {
	return func(o *Orchestrator) { o.ledger = ledger }
}

// WithBucket sets the object store bucket.
func WithBucket(bucket string) Option {
	return func(o *Orchestrator) { o.bucket = bucket }
}

// WithTable sets the metadata store table.
func WithTable(table string) Option {
	return func(o *Orchestrator) { o.table = table }
}

// WithKeyPrefix sets the object key prefix for uploads.
func WithKeyPrefix(prefix string) Option {
	return func(o *Orchestrator) { o.keyPrefix = prefix }
}

// WithGroupTransferCap sets the per-study bound on concurrent transfers.
func WithGroupTransferCap(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.groupCap = n
		}
	}
}

// New creates an Orchestrator. All four collaborators are required.
func New(inspector Inspector, objects ObjectStore, metadata MetadataStore, fsys FileSystem, opts ...Option) (*Orchestrator, error) {
	if inspector == nil || objects == nil || metadata == nil || fsys == nil {
		return nil, fmt.Errorf("transfer: all collaborators are required")
	}

	o := &Orchestrator{
		inspector: inspector,
		objects:   objects,
		metadata:  metadata,
		fs:        fsys,
		bucket:    DefaultBucket,
		table:     DefaultTable,
		keyPrefix: DefaultKeyPrefix,
		groupCap:  DefaultGroupTransferCap,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.ledger == nil {
		o.ledger = metrics.NewLedger()
	}
	return o, nil
}

// Ledger returns the ledger transfers are recorded on.
func (o *Orchestrator) Ledger() *metrics.Ledger {
	return o.ledger
}

// innerWidth bounds per-study fan-out by the run width and the group cap.
func (o *Orchestrator) innerWidth(width int) int {
	if width < o.groupCap {
		return width
	}
	return o.groupCap
}

func (o *Orchestrator) log() *slog.Logger {
	if o.logger != nil {
		return o.logger
	}
	return slog.New(discardHandler{})
}

// discardHandler drops every record. It stands in when no logger was
// injected, keeping call sites free of nil checks.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
