// Package dicom recognizes DICOM Part-10 files and extracts the study and
// series identity tags the transfer tool groups on. Recognition uses content
// sniffing; tag extraction is a bounded scan over the leading data-set groups,
// not a full parse.
package dicom

import (
	"errors"
	"fmt"

	"github.com/gabriel-vasile/mimetype"

	"github.com/Kshitiz1403/dicom-transfer/internal/fsutil"
)

const dicomMIME = "application/dicom"

var (
	// ErrNotDICOM is returned when a file does not carry the Part-10 marker.
	ErrNotDICOM = errors.New("dicom: not a DICOM file")

	// ErrTagNotFound is returned when a requested tag is absent from the
	// scanned portion of a file.
	ErrTagNotFound = errors.New("dicom: tag not found")
)

// Inspector reads DICOM files through a filesystem abstraction, so tests can
// run against in-memory file trees.
type Inspector struct {
	fs *fsutil.FS
}

// NewInspector creates an Inspector reading through fsys.
func NewInspector(fsys *fsutil.FS) *Inspector {
	return &Inspector{fs: fsys}
}

// IsDICOM reports whether the file at path is a DICOM Part-10 file. Unreadable
// or unrecognized files report false; recognition never fails a run.
func (i *Inspector) IsDICOM(path string) bool {
	f, err := i.fs.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	mime, err := mimetype.DetectReader(f)
	if err != nil {
		return false
	}
	return mime.Is(dicomMIME)
}

// Metadata extracts the common study and series tags from the file at path.
// Tags absent from the file are omitted from the result; a file that is not
// DICOM at all is an error.
func (i *Inspector) Metadata(path string) (map[string]string, error) {
	want := make(map[Tag]bool, len(commonTags))
	for _, ct := range commonTags {
		want[ct.Tag] = true
	}

	found, err := i.scan(path, want)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(found))
	for _, ct := range commonTags {
		if v, ok := found[ct.Tag]; ok && v != "" {
			fields[ct.Name] = v
		}
	}
	return fields, nil
}

// StudyUID returns the StudyInstanceUID of the file at path. A file without
// the tag yields ErrTagNotFound.
func (i *Inspector) StudyUID(path string) (string, error) {
	found, err := i.scan(path, map[Tag]bool{TagStudyInstanceUID: true})
	if err != nil {
		return "", err
	}
	uid, ok := found[TagStudyInstanceUID]
	if !ok || uid == "" {
		return "", fmt.Errorf("dicom: %s in %q: %w", TagStudyInstanceUID, path, ErrTagNotFound)
	}
	return uid, nil
}

func (i *Inspector) scan(path string, want map[Tag]bool) (map[Tag]string, error) {
	f, err := i.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dicom: open %q: %w", path, err)
	}
	defer f.Close()

	found, err := scanTags(f, want)
	if err != nil {
		return nil, fmt.Errorf("dicom: scan %q: %w", path, err)
	}
	return found, nil
}
