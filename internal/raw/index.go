package raw

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Index holds the records for one source directory plus two derived lookup
// maps. The primary record slice and the per-key candidate lists preserve
// insertion order; the matcher's first-candidate tie-break depends on it.
//
// An Index is owned by exactly one component at a time (builder during a
// build, matcher during matching) and is not safe for concurrent use.
type Index struct {
	records    []*Record
	byBasename map[string][]*Record
	byTime     map[int64][]*Record // keyed by Unix seconds; timestamped records only

	sourceDir   string
	lastUpdated time.Time
}

// NewIndex creates an empty index for the given source directory.
func NewIndex(sourceDir string) *Index {
	return &Index{
		byBasename: make(map[string][]*Record),
		byTime:     make(map[int64][]*Record),
		sourceDir:  sourceDir,
	}
}

// SourceDir returns the directory this index was built from.
func (x *Index) SourceDir() string { return x.sourceDir }

// LastUpdated returns when the index was last persisted.
func (x *Index) LastUpdated() time.Time { return x.lastUpdated }

// SetLastUpdated stamps the persistence time. Called by the store on save.
func (x *Index) SetLastUpdated(t time.Time) { x.lastUpdated = t }

// Len returns the number of records in the index.
func (x *Index) Len() int { return len(x.records) }

// Add inserts a record into the primary collection and both lookup maps.
func (x *Index) Add(r *Record) {
	x.records = append(x.records, r)
	x.byBasename[r.Basename] = append(x.byBasename[r.Basename], r)
	if r.CaptureTime != nil {
		k := timeKey(*r.CaptureTime)
		x.byTime[k] = append(x.byTime[k], r)
	}
}

// Remove deletes every record whose path equals path from all structures
// and reports whether anything was removed. Records are logically unique
// per path, but duplicates are cleaned up in full if they ever occur.
func (x *Index) Remove(path string) bool {
	n := len(x.records)
	x.records = filterOut(x.records, path)
	if len(x.records) == n {
		return false
	}

	for name, recs := range x.byBasename {
		kept := filterOut(recs, path)
		if len(kept) == 0 {
			delete(x.byBasename, name)
		} else {
			x.byBasename[name] = kept
		}
	}
	for k, recs := range x.byTime {
		kept := filterOut(recs, path)
		if len(kept) == 0 {
			delete(x.byTime, k)
		} else {
			x.byTime[k] = kept
		}
	}
	return true
}

// FindByBasename returns the records sharing the given basename, in
// insertion order. The input is lowercased before lookup.
func (x *Index) FindByBasename(name string) []*Record {
	return x.byBasename[strings.ToLower(name)]
}

// FindByTimestamp returns the records whose capture time equals ts exactly.
func (x *Index) FindByTimestamp(ts time.Time) []*Record {
	return x.byTime[timeKey(ts)]
}

// FindByBasenameAndTimestamp returns the records matching both keys: the
// basename candidates filtered by exact capture-time equality.
func (x *Index) FindByBasenameAndTimestamp(name string, ts time.Time) []*Record {
	var out []*Record
	for _, r := range x.FindByBasename(name) {
		if r.CaptureTime != nil && timeKey(*r.CaptureTime) == timeKey(ts) {
			out = append(out, r)
		}
	}
	return out
}

// AllRecords returns every record, in insertion order.
func (x *Index) AllRecords() []*Record {
	out := make([]*Record, len(x.records))
	copy(out, x.records)
	return out
}

// ExtensionCounts tallies records by lowercased file extension.
func (x *Index) ExtensionCounts() map[string]int {
	counts := make(map[string]int)
	for _, r := range x.records {
		counts[strings.ToLower(filepath.Ext(r.Path))]++
	}
	return counts
}

func filterOut(recs []*Record, path string) []*Record {
	kept := recs[:0:len(recs)]
	for _, r := range recs {
		if r.Path != path {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(recs) {
		return recs
	}
	return kept
}

// timeKey reduces a timestamp to second resolution for exact-equality
// lookups. Capture times carry no sub-second precision.
func timeKey(t time.Time) int64 { return t.Unix() }

// Snapshot is the serialized form of an Index: every record field plus the
// source directory and last-updated stamp. RecordCount is written for
// display; on load the record list is authoritative.
type Snapshot struct {
	SourceDirectory string      `json:"source_directory"`
	LastUpdated     string      `json:"last_updated"`
	RecordCount     int         `json:"record_count"`
	Files           []FileEntry `json:"files"`
}

// FileEntry is one record in a Snapshot.
type FileEntry struct {
	Path        string  `json:"path"`
	Basename    string  `json:"basename"`
	CaptureTime *string `json:"capture_timestamp"`
	Size        int64   `json:"file_size_bytes"`
}

// Snapshot converts the index to its serialized form.
func (x *Index) Snapshot() *Snapshot {
	s := &Snapshot{
		SourceDirectory: x.sourceDir,
		RecordCount:     len(x.records),
		Files:           make([]FileEntry, 0, len(x.records)),
	}
	if !x.lastUpdated.IsZero() {
		s.LastUpdated = x.lastUpdated.Format(TimeLayout)
	}
	for _, r := range x.records {
		e := FileEntry{
			Path:     r.Path,
			Basename: r.Basename,
			Size:     r.Size,
		}
		if r.CaptureTime != nil {
			ts := r.CaptureTime.Format(TimeLayout)
			e.CaptureTime = &ts
		}
		s.Files = append(s.Files, e)
	}
	return s
}

// IndexFromSnapshot rebuilds an Index from its serialized form. The record
// count comes from the file list, not the stored RecordCount field, so a
// hand-edited cache file with a stale count still loads correctly.
func IndexFromSnapshot(s *Snapshot) (*Index, error) {
	x := NewIndex(s.SourceDirectory)
	if s.LastUpdated != "" {
		t, err := ParseStoredTime(s.LastUpdated)
		if err != nil {
			return nil, fmt.Errorf("parsing last_updated %q: %w", s.LastUpdated, err)
		}
		x.lastUpdated = t
	}
	for _, e := range s.Files {
		r := &Record{
			Path:     e.Path,
			Basename: e.Basename,
			Size:     e.Size,
		}
		if e.CaptureTime != nil {
			t, err := ParseStoredTime(*e.CaptureTime)
			if err != nil {
				return nil, fmt.Errorf("parsing capture_timestamp %q for %s: %w", *e.CaptureTime, e.Path, err)
			}
			r.CaptureTime = &t
		}
		x.Add(r)
	}
	return x, nil
}
