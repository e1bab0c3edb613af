package raw

import (
	"context"
	"path/filepath"
	"strings"
	"time"
)

// Record describes one indexed RAW file. Records are immutable once created;
// when a file's size changes on disk the old record is removed and a fresh
// one takes its place.
type Record struct {
	Path        string     // Absolute path on disk
	Basename    string     // Filename, extension stripped, lowercased
	CaptureTime *time.Time // Shooting date/time from image metadata; nil when unknown
	Size        int64      // File size in bytes
}

// JpegRecord describes one JPEG file during matching. It is never persisted.
type JpegRecord struct {
	Path        string
	Basename    string
	CaptureTime *time.Time
}

// MatchMethod identifies how a JPEG was paired with a RAW record.
type MatchMethod string

const (
	// MatchBasenameAndTimestamp means basename and capture time both agreed.
	MatchBasenameAndTimestamp MatchMethod = "basename_and_timestamp"
	// MatchBasenameOnly means the JPEG carried no capture time and the
	// basename alone decided the pairing.
	MatchBasenameOnly MatchMethod = "basename_only"
)

// MatchResult pairs a JPEG with the RAW file selected for it.
type MatchResult struct {
	JpegPath string
	RawPath  string
	Method   MatchMethod
}

// MatchStats aggregates a batch of match results.
type MatchStats struct {
	Total                int
	BasenameAndTimestamp int
	BasenameOnly         int
}

// CopyOutcome aggregates the result of copying a batch of matched RAW files.
type CopyOutcome struct {
	Copied  int
	Skipped int
	Failed  int
	Errors  []CopyError
}

// CopyError records why one file in a copy batch failed.
type CopyError struct {
	Path   string
	Reason string
}

// IndexSummary is one manifest entry: a source directory known to the store.
type IndexSummary struct {
	SourceDirectory string
	LastUpdated     time.Time
	RecordCount     int
	CachePath       string
}

// FileClass selects which extension set a catalog scan looks for.
type FileClass int

const (
	ClassRAW FileClass = iota
	ClassJPEG
)

func (c FileClass) String() string {
	switch c {
	case ClassRAW:
		return "raw"
	case ClassJPEG:
		return "jpeg"
	default:
		return "unknown"
	}
}

// Catalog discovers files of a given class under a directory.
// Implementations return absolute paths sorted lexicographically.
type Catalog interface {
	Scan(dir string, class FileClass, recursive bool) ([]string, error)
}

// MetadataReader extracts the capture timestamp from an image file.
// A (nil, nil) return means the file carries no usable timestamp; an error
// means the read itself failed (tool unavailable, timeout, unreadable file)
// and is always a *MetadataReadError.
type MetadataReader interface {
	ReadCaptureTime(ctx context.Context, path string) (*time.Time, error)
}

// Store persists one Index per source directory plus a manifest of all
// indexed directories.
type Store interface {
	// CachePathFor returns the content-addressed cache file path for a
	// source directory. The same directory always maps to the same path
	// regardless of symlinks, trailing slashes, or relative references.
	CachePathFor(sourceDir string) (string, error)
	// Load returns the stored index for sourceDir, or nil if no cache file
	// exists or it fails to parse (parse failures are logged, not fatal).
	Load(sourceDir string) (*Index, error)
	// Save writes the index to its cache path, stamps LastUpdated, and
	// updates the manifest entry. Failures are *PersistenceError.
	Save(sourceDir string, index *Index) error
	// ListIndexedDirectories reads the manifest, sorted by LastUpdated
	// descending.
	ListIndexedDirectories() ([]IndexSummary, error)
	// Remove deletes the cache file and manifest entry for sourceDir,
	// reporting whether either existed.
	Remove(sourceDir string) (bool, error)
	// ClearAll deletes every cache file and resets the manifest.
	ClearAll() error
}

// Copier copies matched RAW files into a target directory, one at a time.
type Copier interface {
	CopyAll(matches []MatchResult, targetDir string) CopyOutcome
}

// BasenameOf returns the join key for a file path: the filename with its
// extension removed, lowercased. JPEG and RAW sides both key on this.
func BasenameOf(path string) string {
	name := filepath.Base(path)
	return strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
}

// TimeLayout is the on-disk timestamp form: sortable, second resolution,
// no zone designator (capture times are camera-local wall clock).
const TimeLayout = "2006-01-02T15:04:05"

// ParseStoredTime parses a timestamp in TimeLayout as local wall clock.
func ParseStoredTime(s string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, s, time.Local)
}
