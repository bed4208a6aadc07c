package transfer

import (
	"context"
	"fmt"
	"path"
	"sync/atomic"

	"github.com/Kshitiz1403/dicom-transfer/internal/workerpool"
)

// DownloadResult aggregates one download run.
type DownloadResult struct {
	// Files is the number of stored objects for the study.
	Files int

	// FailedFiles is the number of downloads that failed.
	FailedFiles int

	// Bytes is the total bytes downloaded.
	Bytes int64
}

// OK reports whether every download succeeded.
func (r *DownloadResult) OK() bool {
	return r.FailedFiles == 0
}

// RunDownload fetches every stored file of the study into destRoot, one pool
// task per object. An unknown study or a study without files is fatal and
// writes nothing under destRoot.
func (o *Orchestrator) RunDownload(ctx context.Context, studyUID, destRoot string, width int) (*DownloadResult, error) {
	if width < 1 {
		return nil, fmt.Errorf("transfer: width must be >= 1, got %d", width)
	}
	if studyUID == "" {
		return nil, fmt.Errorf("transfer: study UID is required")
	}

	if err := o.fs.EnsureDir(destRoot); err != nil {
		return nil, fmt.Errorf("transfer: prepare destination: %w", err)
	}

	if _, err := o.metadata.GetStudy(ctx, o.table, studyUID); err != nil {
		return nil, fmt.Errorf("transfer: look up study %s: %w", studyUID, err)
	}

	locations, err := o.metadata.Locations(ctx, o.table, studyUID)
	if err != nil {
		return nil, fmt.Errorf("transfer: list locations for study %s: %w", studyUID, err)
	}
	if len(locations) == 0 {
		return nil, fmt.Errorf("%w %s", ErrNoFiles, studyUID)
	}

	o.log().Info("starting download",
		"study_uid", studyUID, "destination", destRoot,
		"files", len(locations), "width", width)

	pool, err := workerpool.New(width)
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	defer pool.Shutdown()

	var bytes atomic.Int64
	result := &DownloadResult{Files: len(locations)}

	handles := make(map[string]*workerpool.Handle, len(locations))
	for _, loc := range locations {
		loc := loc
		dest := o.fs.Join(destRoot, path.Base(loc))
		h, err := pool.Submit(func() error {
			o.ledger.Start(opDownload)
			defer o.ledger.End(opDownload)
			return o.objects.Download(ctx, o.bucket, loc, dest, func(n int64) {
				o.ledger.AddBytes(opDownload, n)
				bytes.Add(n)
			})
		})
		if err != nil {
			return nil, fmt.Errorf("transfer: submit download %q: %w", loc, err)
		}
		handles[loc] = h
	}

	for loc, h := range handles {
		if err := h.Wait(); err != nil {
			result.FailedFiles++
			o.log().Error("file download failed", "key", loc, "error", err)
		}
	}
	result.Bytes = bytes.Load()

	o.log().Info("download finished",
		"ok", result.OK(), "failed_files", result.FailedFiles, "bytes", result.Bytes)
	return result, nil
}
