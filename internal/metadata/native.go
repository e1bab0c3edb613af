// Package metadata extracts capture timestamps from image files. Two
// backends exist: an in-process EXIF parser and an external exiftool
// invocation. Both are wrapped by a per-run memoizing cache.
package metadata

import (
	"context"
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"rawmatch/internal/raw"
)

// NativeReader parses EXIF data in-process. It handles JPEG and the
// TIFF-derived RAW formats (CR2, NEF, ARW, DNG, ...) without any external
// tool.
type NativeReader struct {
	logger raw.Logger
}

// NewNativeReader creates a NativeReader.
func NewNativeReader(logger raw.Logger) *NativeReader {
	return &NativeReader{logger: logger}
}

// ReadCaptureTime returns the capture timestamp of the file, or (nil, nil)
// when the file carries no parseable EXIF date. Only a failure to open or
// stat the file is reported as an error.
func (r *NativeReader) ReadCaptureTime(ctx context.Context, path string) (*time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &raw.MetadataReadError{Path: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &raw.MetadataReadError{Path: path, Err: err}
	}
	if info.Size() == 0 {
		return nil, nil
	}

	x, err := exif.Decode(f)
	if err != nil {
		// No EXIF block, or a layout this parser does not understand.
		// Either way the file simply has no usable timestamp.
		r.logger.Debug("exif decode failed", "path", path, "error", err)
		return nil, nil
	}

	// DateTime prefers DateTimeOriginal and falls back to DateTime.
	ts, err := x.DateTime()
	if err != nil {
		r.logger.Debug("no exif datetime tag", "path", path, "error", err)
		return nil, nil
	}

	ts = ts.Truncate(time.Second)
	return &ts, nil
}

var _ raw.MetadataReader = (*NativeReader)(nil)
