package dicom

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Transfer syntaxes that change how the data set is encoded. Everything else
// (including the compressed pixel-data syntaxes) keeps an explicit
// little-endian data set, which is what the scanner reads.
const (
	transferSyntaxImplicitLE = "1.2.840.10008.1.2"
	transferSyntaxExplicitBE = "1.2.840.10008.1.2.2"
	transferSyntaxDeflated   = "1.2.840.10008.1.2.1.99"
)

const (
	preambleSize = 128
	magic        = "DICM"

	// undefinedLength marks sequences and encapsulated pixel data. The scan
	// stops there; every tag of interest precedes such elements.
	undefinedLength = 0xFFFFFFFF

	// maxValueRead caps how much of a single value the scanner will load.
	maxValueRead = 1 << 20
)

var errStopScan = errors.New("dicom: stop scan")

// scanTags reads a Part-10 stream and returns the values of the wanted tags.
// The scan covers the file meta group and the data set up to and including
// group lastCommonGroup; it tolerates truncated files by returning whatever
// was collected before the stream ended.
func scanTags(r io.Reader, want map[Tag]bool) (map[Tag]string, error) {
	br := bufio.NewReader(r)

	if err := skipPreamble(br); err != nil {
		return nil, err
	}

	found := make(map[Tag]string, len(want))

	syntax, err := scanMeta(br, want, found)
	if err != nil {
		return nil, err
	}

	explicit := true
	switch syntax {
	case transferSyntaxImplicitLE:
		explicit = false
	case transferSyntaxExplicitBE:
		return nil, fmt.Errorf("unsupported transfer syntax %s", syntax)
	case transferSyntaxDeflated:
		return nil, fmt.Errorf("unsupported transfer syntax %s", syntax)
	}

	if err := scanDataSet(br, explicit, want, found); err != nil {
		return nil, err
	}
	return found, nil
}

func skipPreamble(br *bufio.Reader) error {
	header := make([]byte, preambleSize+len(magic))
	if _, err := io.ReadFull(br, header); err != nil {
		return fmt.Errorf("%w: short header: %w", ErrNotDICOM, err)
	}
	if string(header[preambleSize:]) != magic {
		return fmt.Errorf("%w: missing %s marker", ErrNotDICOM, magic)
	}
	return nil
}

// tagTransferSyntax declares how the data set after the meta group is
// encoded.
var tagTransferSyntax = Tag{0x0002, 0x0010}

// scanMeta consumes the group 0002 file meta elements, which are always
// explicit little endian, and returns the declared transfer syntax UID.
func scanMeta(br *bufio.Reader, want map[Tag]bool, found map[Tag]string) (string, error) {
	// The transfer syntax value is read regardless of what the caller asked
	// for; without it the data set cannot be decoded.
	wantMeta := make(map[Tag]bool, len(want)+1)
	for tag := range want {
		wantMeta[tag] = true
	}
	wantMeta[tagTransferSyntax] = true

	syntax := ""
	for {
		head, err := br.Peek(4)
		if err != nil {
			// A stream that ends inside the meta group still identified
			// itself as DICOM; report what the caller asked for.
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return syntax, nil
			}
			return "", fmt.Errorf("read meta: %w", err)
		}
		if binary.LittleEndian.Uint16(head[0:2]) != 0x0002 {
			return syntax, nil
		}

		tag, value, err := readElement(br, true, wantMeta)
		if err != nil {
			if errors.Is(err, errStopScan) {
				return syntax, nil
			}
			return "", err
		}
		if tag == tagTransferSyntax {
			syntax = value
		}
		if want[tag] {
			found[tag] = value
		}
	}
}

func scanDataSet(br *bufio.Reader, explicit bool, want map[Tag]bool, found map[Tag]string) error {
	for len(found) < len(want) {
		head, err := br.Peek(4)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("read element: %w", err)
		}
		if binary.LittleEndian.Uint16(head[0:2]) > lastCommonGroup {
			return nil
		}

		tag, value, err := readElement(br, explicit, want)
		if err != nil {
			if errors.Is(err, errStopScan) {
				return nil
			}
			return err
		}
		if want[tag] {
			found[tag] = value
		}
	}
	return nil
}

// readElement consumes one data element. It returns the element's tag and,
// when the tag is wanted, its value trimmed of padding. Unwanted values are
// skipped without buffering. errStopScan signals an element the scanner
// cannot step over: undefined lengths and streams that end mid-element.
func readElement(br *bufio.Reader, explicit bool, want map[Tag]bool) (Tag, string, error) {
	var header [8]byte
	if _, err := io.ReadFull(br, header[:4]); err != nil {
		return Tag{}, "", scanReadErr("element tag", err)
	}
	tag := Tag{
		Group:   binary.LittleEndian.Uint16(header[0:2]),
		Element: binary.LittleEndian.Uint16(header[2:4]),
	}

	var length uint32
	switch {
	case !explicit:
		if _, err := io.ReadFull(br, header[4:8]); err != nil {
			return Tag{}, "", scanReadErr("element length", err)
		}
		length = binary.LittleEndian.Uint32(header[4:8])
	default:
		if _, err := io.ReadFull(br, header[4:8]); err != nil {
			return Tag{}, "", scanReadErr("element header", err)
		}
		vr := string(header[4:6])
		if longFormVR(vr) {
			var ext [4]byte
			if _, err := io.ReadFull(br, ext[:]); err != nil {
				return Tag{}, "", scanReadErr("element length", err)
			}
			length = binary.LittleEndian.Uint32(ext[:])
		} else {
			length = uint32(binary.LittleEndian.Uint16(header[6:8]))
		}
	}

	if length == undefinedLength {
		return tag, "", errStopScan
	}

	if !want[tag] || length > maxValueRead {
		if _, err := io.CopyN(io.Discard, br, int64(length)); err != nil {
			return Tag{}, "", scanReadErr("skip value", err)
		}
		return tag, "", nil
	}

	raw := make([]byte, length)
	if _, err := io.ReadFull(br, raw); err != nil {
		return Tag{}, "", scanReadErr("value", err)
	}
	return tag, strings.TrimRight(string(raw), " \x00"), nil
}

// scanReadErr folds end-of-stream conditions into errStopScan so a truncated
// file yields the tags collected so far instead of failing outright.
func scanReadErr(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errStopScan
	}
	return fmt.Errorf("read %s: %w", what, err)
}

// longFormVR reports whether the value representation uses the 12-byte
// header form with a 32-bit length.
func longFormVR(vr string) bool {
	switch vr {
	case "OB", "OD", "OF", "OL", "OW", "SQ", "UC", "UN", "UR", "UT":
		return true
	}
	return false
}
