package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"rawmatch/internal/raw"
)

// DefaultTimeout bounds one exiftool invocation. A file that takes longer
// is treated as having no timestamp, not as a build failure.
const DefaultTimeout = 30 * time.Second

// datetimeTags is the capture-time tag priority. DateTimeOriginal is the
// actual shutter time; the rest are progressively weaker fallbacks.
var datetimeTags = []string{
	"DateTimeOriginal",
	"CreateDate",
	"ModifyDate",
	"DateTime",
}

// ExiftoolReader shells out to exiftool for formats the in-process parser
// cannot handle. Tool availability is verified once at construction.
type ExiftoolReader struct {
	path    string
	timeout time.Duration
	logger  raw.Logger
}

// NewExiftoolReader locates exiftool (using toolPath when non-empty, the
// system PATH otherwise) and verifies it runs. Tool unavailability is a
// startup error, not a per-file one.
func NewExiftoolReader(toolPath string, timeout time.Duration, logger raw.Logger) (*ExiftoolReader, error) {
	if toolPath == "" {
		found, err := exec.LookPath("exiftool")
		if err != nil {
			return nil, fmt.Errorf("exiftool not found in PATH (install it or set metadata.exiftool_path): %w", err)
		}
		toolPath = found
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, toolPath, "-ver").Output()
	if err != nil {
		return nil, fmt.Errorf("exiftool at %s is not runnable: %w", toolPath, err)
	}
	logger.Info("exiftool available", "path", toolPath, "version", strings.TrimSpace(string(out)))

	return &ExiftoolReader{path: toolPath, timeout: timeout, logger: logger}, nil
}

// ReadCaptureTime runs exiftool on the file and returns the first parseable
// timestamp in tag priority order, or (nil, nil) when none exists.
// Invocation failures and timeouts are *raw.MetadataReadError.
func (r *ExiftoolReader) ReadCaptureTime(ctx context.Context, path string) (*time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &raw.MetadataReadError{Path: path, Err: err}
	}
	if info.Size() == 0 {
		return nil, nil
	}

	tags, err := r.run(ctx, path)
	if err != nil {
		return nil, &raw.MetadataReadError{Path: path, Err: err}
	}

	for _, tag := range datetimeTags {
		value, ok := tags[tag]
		if !ok {
			continue
		}
		if ts, ok := ParseExifDatetime(value); ok {
			return &ts, nil
		}
		r.logger.Debug("unparseable datetime tag", "path", path, "tag", tag, "value", value)
	}
	return nil, nil
}

// run invokes exiftool with JSON output restricted to the datetime tags.
func (r *ExiftoolReader) run(ctx context.Context, path string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := []string{"-j"}
	for _, tag := range datetimeTags {
		args = append(args, "-"+tag)
	}
	args = append(args, path)

	out, err := exec.CommandContext(ctx, r.path, args...).Output()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("exiftool timed out after %s", r.timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("running exiftool: %w", err)
	}

	return parseExiftoolOutput(out)
}

// parseExiftoolOutput extracts the first file's tags from exiftool's -j
// JSON output (an array of per-file objects).
func parseExiftoolOutput(out []byte) (map[string]string, error) {
	var files []map[string]any
	if err := json.Unmarshal(out, &files); err != nil {
		return nil, fmt.Errorf("parsing exiftool output: %w", err)
	}
	if len(files) == 0 {
		return map[string]string{}, nil
	}

	tags := make(map[string]string, len(files[0]))
	for k, v := range files[0] {
		if s, ok := v.(string); ok {
			tags[k] = s
		}
	}
	return tags, nil
}

// exifDatetimeLayouts are the forms exiftool emits, standard Exif
// colon-separated dates first.
var exifDatetimeLayouts = []string{
	"2006:01:02 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05-07:00",
	"2006:01:02 15:04:05-07:00",
	"2006/01/02 15:04:05",
	"2006.01.02 15:04:05",
}

// ParseExifDatetime parses a datetime string in any of the forms exiftool
// produces. Zone offsets are dropped: capture times are camera-local wall
// clock and compared as such.
func ParseExifDatetime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range exifDatetimeLayouts {
		ts, err := time.ParseInLocation(layout, value, time.Local)
		if err == nil {
			// Re-anchor zoned forms to local wall clock.
			return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), 0, time.Local), true
		}
	}
	return time.Time{}, false
}

var _ raw.MetadataReader = (*ExiftoolReader)(nil)
