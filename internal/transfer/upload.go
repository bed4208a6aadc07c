package transfer

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sync/atomic"

	"github.com/Kshitiz1403/dicom-transfer/internal/workerpool"
)

// UploadResult aggregates one upload run. Counters cover what was attempted;
// OK reports whether everything succeeded.
type UploadResult struct {
	// Studies is the number of study groups discovered.
	Studies int

	// FailedStudies is the number of groups whose task resolved with
	// failure, whether at the metadata phase or from member transfers.
	FailedStudies int

	// Files is the number of grouped DICOM files.
	Files int

	// FailedFiles is the number of grouped files whose transfer was
	// attempted and failed.
	FailedFiles int

	// OtherFiles is the number of non-DICOM files found under the root.
	OtherFiles int

	// FailedOtherFiles is the number of non-DICOM files that failed to
	// upload.
	FailedOtherFiles int

	// Bytes is the total bytes uploaded across every file.
	Bytes int64
}

// OK reports whether every group and every file succeeded.
func (r *UploadResult) OK() bool {
	return r.FailedStudies == 0 && r.FailedFiles == 0 && r.FailedOtherFiles == 0
}

// RunUpload discovers files under sourceRoot, uploads DICOM files grouped by
// study and everything else under the synthetic group, and returns the
// aggregate. Partial failure lands in the result, not in the error; the
// error is reserved for conditions that prevent the run from starting.
func (o *Orchestrator) RunUpload(ctx context.Context, sourceRoot string, width int) (*UploadResult, error) {
	if width < 1 {
		return nil, fmt.Errorf("transfer: width must be >= 1, got %d", width)
	}
	if !o.fs.IsDir(sourceRoot) {
		return nil, fmt.Errorf("transfer: source %q is not a directory", sourceRoot)
	}

	files, err := o.fs.ListFiles(sourceRoot)
	if err != nil {
		return nil, fmt.Errorf("transfer: list source files: %w", err)
	}

	var dicomFiles, otherFiles []string
	for _, f := range files {
		if o.inspector.IsDICOM(f) {
			dicomFiles = append(dicomFiles, f)
		} else {
			otherFiles = append(otherFiles, f)
		}
	}

	groups := o.groupByStudy(dicomFiles)

	result := &UploadResult{
		Studies:    len(groups),
		OtherFiles: len(otherFiles),
	}
	for _, members := range groups {
		result.Files += len(members)
	}

	o.log().Info("starting upload",
		"source", sourceRoot, "studies", len(groups),
		"dicom_files", result.Files, "other_files", len(otherFiles), "width", width)

	pool, err := workerpool.New(width)
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	defer pool.Shutdown()

	var failedFiles, failedOther, bytes atomic.Int64

	groupHandles := make(map[string]*workerpool.Handle, len(groups))
	for uid, members := range groups {
		uid, members := uid, members
		h, err := pool.Submit(func() error {
			return o.uploadStudy(ctx, uid, members, width, &failedFiles, &bytes)
		})
		if err != nil {
			return nil, fmt.Errorf("transfer: submit study %s: %w", uid, err)
		}
		groupHandles[uid] = h
	}

	var otherHandle *workerpool.Handle
	if len(otherFiles) > 0 {
		otherHandle, err = pool.Submit(func() error {
			return o.uploadOther(ctx, otherFiles, width, &failedOther, &bytes)
		})
		if err != nil {
			return nil, fmt.Errorf("transfer: submit ungrouped files: %w", err)
		}
	}

	for uid, h := range groupHandles {
		if err := h.Wait(); err != nil {
			result.FailedStudies++
			o.log().Error("study upload failed", "study_uid", uid, "error", err)
		}
	}
	if otherHandle != nil {
		if err := otherHandle.Wait(); err != nil {
			o.log().Error("ungrouped upload finished with failures", "error", err)
		}
	}

	result.FailedFiles = int(failedFiles.Load())
	result.FailedOtherFiles = int(failedOther.Load())
	result.Bytes = bytes.Load()

	o.log().Info("upload finished",
		"ok", result.OK(), "failed_studies", result.FailedStudies,
		"failed_files", result.FailedFiles, "failed_other", result.FailedOtherFiles,
		"bytes", result.Bytes)
	return result, nil
}

// groupByStudy partitions DICOM files by StudyInstanceUID. Files whose UID
// cannot be extracted are logged and left out of every group.
func (o *Orchestrator) groupByStudy(files []string) map[string][]string {
	groups := make(map[string][]string)
	for _, f := range files {
		uid, err := o.inspector.StudyUID(f)
		if err != nil || uid == "" {
			o.log().Warn("skipping file without study UID", "path", f, "error", err)
			continue
		}
		groups[uid] = append(groups[uid], f)
	}
	return groups
}

// uploadStudy runs one group: metadata first, then member transfers fanned
// out under the inner limiter. Metadata failure fails the group before any
// transfer starts. Member failures never stop siblings; the group fails if
// any member did.
func (o *Orchestrator) uploadStudy(
	ctx context.Context,
	uid string,
	members []string,
	width int,
	failedFiles, bytes *atomic.Int64,
) error {
	log := o.log().With("study_uid", uid)

	o.ledger.Start(opMetadata)
	fields, err := o.inspector.Metadata(members[0])
	if err != nil {
		o.ledger.End(opMetadata)
		return fmt.Errorf("extract metadata from %q: %w", members[0], err)
	}
	if err := o.metadata.PutStudy(ctx, o.table, uid, fields); err != nil {
		o.ledger.End(opMetadata)
		return fmt.Errorf("store metadata: %w", err)
	}
	o.ledger.End(opMetadata)

	limiter := workerpool.NewLimiter(o.innerWidth(width))
	var failed atomic.Int64
	for _, member := range members {
		member := member
		limiter.Go(func() {
			if err := o.uploadMember(ctx, uid, member, true, bytes); err != nil {
				failed.Add(1)
				failedFiles.Add(1)
				log.Error("file upload failed", "path", member, "error", err)
			}
		})
	}
	limiter.Wait()

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d files failed", n, len(members))
	}
	log.Info("study uploaded", "files", len(members))
	return nil
}

// uploadOther uploads the non-DICOM files under the synthetic group, with no
// metadata written and no location registered.
func (o *Orchestrator) uploadOther(
	ctx context.Context,
	files []string,
	width int,
	failedOther, bytes *atomic.Int64,
) error {
	limiter := workerpool.NewLimiter(o.innerWidth(width))
	var failed atomic.Int64
	for _, f := range files {
		f := f
		limiter.Go(func() {
			if err := o.uploadMember(ctx, OtherFilesGroup, f, false, bytes); err != nil {
				failed.Add(1)
				failedOther.Add(1)
				o.log().Error("ungrouped file upload failed", "path", f, "error", err)
			}
		})
	}
	limiter.Wait()

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d ungrouped files failed", n, len(files))
	}
	return nil
}

// uploadMember transfers one file and, for grouped files, registers the
// object key in the study's location set.
func (o *Orchestrator) uploadMember(
	ctx context.Context,
	uid, localPath string,
	register bool,
	bytes *atomic.Int64,
) error {
	key := o.objectKey(uid, localPath)

	o.ledger.Start(opUpload)
	err := o.objects.Upload(ctx, o.bucket, key, localPath, func(n int64) {
		o.ledger.AddBytes(opUpload, n)
		bytes.Add(n)
	})
	o.ledger.End(opUpload)
	if err != nil {
		return err
	}

	if !register {
		return nil
	}
	if err := o.metadata.AppendLocation(ctx, o.table, uid, key); err != nil {
		return fmt.Errorf("register location %q: %w", key, err)
	}
	return nil
}

// objectKey derives the deterministic object key for a group member.
func (o *Orchestrator) objectKey(uid, localPath string) string {
	return path.Join(o.keyPrefix, uid, filepath.Base(localPath))
}
