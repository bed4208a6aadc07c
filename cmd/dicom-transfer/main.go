// Command dicom-transfer uploads DICOM study folders to S3/DynamoDB and
// downloads stored studies back by StudyInstanceUID.
//
// Usage:
//
//	dicom-transfer --upload <source-folder> [options]
//	dicom-transfer --download <study-uid> --output <folder> [options]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/Kshitiz1403/dicom-transfer/internal/dicom"
	"github.com/Kshitiz1403/dicom-transfer/internal/fsutil"
	"github.com/Kshitiz1403/dicom-transfer/internal/metastore"
	"github.com/Kshitiz1403/dicom-transfer/internal/metrics"
	"github.com/Kshitiz1403/dicom-transfer/internal/s3store"
	"github.com/Kshitiz1403/dicom-transfer/internal/transfer"
)

const (
	defaultRegion  = "ap-south-1"
	defaultLogFile = "dicom-transfer.log"

	opTotal = "Total Execution"
)

type options struct {
	upload   string
	download string
	output   string
	threads  int
	verbose  bool
	logFile  string
	bucket   string
	table    string
	region   string
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("dicom-transfer", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts options
	fs.StringVar(&opts.upload, "upload", "", "upload every file under this folder")
	fs.StringVar(&opts.download, "download", "", "download the study with this StudyInstanceUID")
	fs.StringVar(&opts.output, "output", "", "destination folder for --download")
	fs.IntVar(&opts.threads, "threads", runtime.NumCPU(), "worker threads per pool")
	fs.BoolVar(&opts.verbose, "verbose", false, "enable debug logging")
	fs.BoolVar(&opts.verbose, "v", false, "enable debug logging (shorthand)")
	fs.StringVar(&opts.logFile, "log-file", defaultLogFile, "log file path, empty to disable")
	fs.StringVar(&opts.bucket, "bucket", transfer.DefaultBucket, "S3 bucket")
	fs.StringVar(&opts.table, "table", transfer.DefaultTable, "DynamoDB table")
	fs.StringVar(&opts.region, "region", defaultRegion, "AWS region")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s --upload <source-folder> [options]\n  %[1]s --download <study-uid> --output <folder> [options]\n\nOptions:\n", fs.Name())
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}

	switch {
	case opts.upload != "" && opts.download != "":
		fmt.Fprintln(os.Stderr, "error: --upload and --download are mutually exclusive")
		fs.Usage()
		return 2
	case opts.upload == "" && opts.download == "":
		fs.Usage()
		return 2
	case opts.download != "" && opts.output == "":
		fmt.Fprintln(os.Stderr, "error: --download requires --output")
		fs.Usage()
		return 2
	case opts.threads < 1:
		fmt.Fprintln(os.Stderr, "error: --threads must be >= 1")
		return 2
	}

	if err := normalizePaths(&opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	logger, closeLog := newLogger(opts)
	defer closeLog()

	ctx := context.Background()
	ledger := metrics.NewLedger()

	orch, err := buildOrchestrator(ctx, opts, logger, ledger)
	if err != nil {
		logger.Error("initialization failed", "error", err)
		return 1
	}

	ledger.Start(opTotal)
	ok, err := execute(ctx, orch, opts)
	ledger.End(opTotal)

	fmt.Print(ledger.Report())

	if err != nil {
		logger.Error("run failed", "error", err)
		return 1
	}
	if !ok {
		logger.Error("run finished with failures")
		return 1
	}
	return 0
}

// normalizePaths makes the folder arguments absolute. The filesystem
// abstraction is rooted at /, so a cwd-relative path handed to it would
// resolve against the root instead of the working directory.
func normalizePaths(opts *options) error {
	for _, p := range []*string{&opts.upload, &opts.output} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("resolve path %q: %w", *p, err)
		}
		*p = abs
	}
	return nil
}

func execute(ctx context.Context, orch *transfer.Orchestrator, opts options) (bool, error) {
	if opts.upload != "" {
		result, err := orch.RunUpload(ctx, opts.upload, opts.threads)
		if err != nil {
			return false, err
		}
		return result.OK(), nil
	}

	result, err := orch.RunDownload(ctx, opts.download, opts.output, opts.threads)
	if err != nil {
		return false, err
	}
	return result.OK(), nil
}

func buildOrchestrator(
	ctx context.Context,
	opts options,
	logger *slog.Logger,
	ledger *metrics.Ledger,
) (*transfer.Orchestrator, error) {
	fsys := fsutil.NewOSFS("/")

	objects, err := s3store.New(ctx,
		s3store.WithRegion(opts.region),
		s3store.WithFilesystem(fsys),
		s3store.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}

	metadata, err := metastore.New(ctx,
		metastore.WithRegion(opts.region),
		metastore.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("metadata store: %w", err)
	}

	return transfer.New(
		dicom.NewInspector(fsys),
		objects,
		metadata,
		fsys,
		transfer.WithLogger(logger),
		transfer.WithLedger(ledger),
		transfer.WithBucket(opts.bucket),
		transfer.WithTable(opts.table),
	)
}

// newLogger builds the run logger: text records to stderr, teed into the log
// file when one is configured and openable.
func newLogger(opts options) (*slog.Logger, func()) {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	closeLog := func() {}

	if opts.logFile != "" {
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: cannot open log file %q: %v\n", opts.logFile, err)
		} else {
			w = io.MultiWriter(os.Stderr, f)
			closeLog = func() { _ = f.Close() }
		}
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closeLog
}
