package media

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformedRange marks a Range header that does not follow the single
	// "bytes=<start>-[<end>]" form. Callers serve the full content instead.
	ErrMalformedRange = errors.New("malformed range")
	// ErrRangeNotSatisfiable marks a well-formed range outside the content.
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
)

// UnsatisfiableRangeError carries the content size so the response can
// advertise it in "Content-Range: bytes */<size>".
type UnsatisfiableRangeError struct {
	Size int64
}

func (e *UnsatisfiableRangeError) Error() string {
	return fmt.Sprintf("range not satisfiable for size %d", e.Size)
}

func (e *UnsatisfiableRangeError) Is(target error) bool {
	return target == ErrRangeNotSatisfiable
}

// ByteRange is an inclusive byte interval [Start, End].
type ByteRange struct {
	Start int64
	End   int64
}

// Length is the number of bytes covered by r.
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange renders the Content-Range header value for a content of total bytes.
func (r ByteRange) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

const rangeUnit = "bytes="

// ParseRange parses a Range header against a content of size bytes.
// It returns (nil, nil) for an empty header, ErrMalformedRange for anything
// but a single "bytes=<start>-[<end>]" spec, and an *UnsatisfiableRangeError
// when start or end fall outside the content or start > end.
func ParseRange(header string, size int64) (*ByteRange, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}
	spec, ok := strings.CutPrefix(header, rangeUnit)
	if !ok || strings.Contains(spec, ",") {
		return nil, ErrMalformedRange
	}

	startStr, endStr, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return nil, ErrMalformedRange
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	start, err := parseOffset(startStr)
	if err != nil {
		return nil, err
	}
	end := size - 1
	if endStr != "" {
		if end, err = parseOffset(endStr); err != nil {
			return nil, err
		}
	}

	if start >= size || end >= size || start > end {
		return nil, &UnsatisfiableRangeError{Size: size}
	}
	return &ByteRange{Start: start, End: end}, nil
}

func parseOffset(s string) (int64, error) {
	if s == "" {
		return 0, ErrMalformedRange
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, ErrMalformedRange
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrMalformedRange
	}
	return n, nil
}
