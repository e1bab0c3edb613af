// Package store persists one index cache file per source directory plus a
// manifest listing all indexed directories, under an injectable root.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"

	"rawmatch/internal/raw"
)

const manifestName = "manifest.json"

// FileStore is the filesystem implementation of raw.Store.
//
// Layout:
//
//	<root>/
//	  manifest.json           (canonical dir -> {last_updated, record_count, cache_file})
//	  index_<hash>.json       (one per indexed source directory)
//
// The manifest is the sole source of truth for "which directories are
// indexed"; a cache file without a manifest entry is an orphan.
type FileStore struct {
	root   string
	logger raw.Logger
	clock  raw.Clock
}

// manifestEntry is the stored summary for one source directory.
type manifestEntry struct {
	LastUpdated string `json:"last_updated"`
	RecordCount int    `json:"record_count"`
	CacheFile   string `json:"cache_file"`
}

// NewFileStore creates a FileStore rooted at the given directory, creating
// it if necessary.
func NewFileStore(root string, logger raw.Logger, clock raw.Clock) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &FileStore{root: root, logger: logger, clock: clock}, nil
}

// Root returns the cache root directory.
func (s *FileStore) Root() string { return s.root }

// canonicalize resolves sourceDir to a stable absolute form so that
// symlinked, relative, and trailing-slash references to the same directory
// all produce the same cache key.
func canonicalize(sourceDir string) (string, error) {
	abs, err := filepath.Abs(sourceDir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", sourceDir, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// The directory may no longer exist (clear-cache on a deleted
		// dir). Fall back to the cleaned absolute path.
		return filepath.Clean(abs), nil
	}
	return resolved, nil
}

// CachePathFor returns the content-addressed cache file path for a source
// directory: a stable hash of the canonicalized path.
func (s *FileStore) CachePathFor(sourceDir string) (string, error) {
	canonical, err := canonicalize(sourceDir)
	if err != nil {
		return "", err
	}
	h := xxhash.Sum64String(canonical)
	return filepath.Join(s.root, fmt.Sprintf("index_%016x.json", h)), nil
}

// Load returns the stored index for sourceDir. A missing cache file yields
// (nil, nil); so does a corrupt one, which is logged and treated as "no
// existing index".
func (s *FileStore) Load(sourceDir string) (*raw.Index, error) {
	cachePath, err := s.CachePathFor(sourceDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(cachePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug("no cache file", "path", cachePath)
			return nil, nil
		}
		s.logger.Error("cache read failed", "path", cachePath, "error", err)
		return nil, nil
	}

	var snap raw.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Error("cache parse failed", "path", cachePath, "error", err)
		return nil, nil
	}
	index, err := raw.IndexFromSnapshot(&snap)
	if err != nil {
		s.logger.Error("cache contents invalid", "path", cachePath, "error", err)
		return nil, nil
	}

	s.logger.Debug("index loaded", "source", sourceDir, "records", index.Len())
	return index, nil
}

// Save writes the index's serialized form to its cache path atomically,
// stamps LastUpdated, then updates the manifest entry. Failures are
// *raw.PersistenceError.
func (s *FileStore) Save(sourceDir string, index *raw.Index) error {
	canonical, err := canonicalize(sourceDir)
	if err != nil {
		return &raw.PersistenceError{Op: "save", Path: sourceDir, Err: err}
	}
	cachePath, err := s.CachePathFor(sourceDir)
	if err != nil {
		return &raw.PersistenceError{Op: "save", Path: sourceDir, Err: err}
	}

	index.SetLastUpdated(s.clock.Now())

	data, err := json.MarshalIndent(index.Snapshot(), "", "  ")
	if err != nil {
		return &raw.PersistenceError{Op: "save", Path: cachePath, Err: err}
	}
	if err := s.writeAtomic(cachePath, data); err != nil {
		return &raw.PersistenceError{Op: "save", Path: cachePath, Err: err}
	}

	manifest, err := s.readManifest()
	if err != nil {
		return &raw.PersistenceError{Op: "save", Path: s.manifestPath(), Err: err}
	}
	manifest[canonical] = manifestEntry{
		LastUpdated: index.LastUpdated().Format(raw.TimeLayout),
		RecordCount: index.Len(),
		CacheFile:   cachePath,
	}
	if err := s.writeManifest(manifest); err != nil {
		return &raw.PersistenceError{Op: "save", Path: s.manifestPath(), Err: err}
	}

	s.logger.Debug("index saved", "source", canonical, "records", index.Len(), "cache", cachePath)
	return nil
}

// ListIndexedDirectories reads the manifest, sorted by LastUpdated
// descending. Entries with unparseable timestamps are skipped.
func (s *FileStore) ListIndexedDirectories() ([]raw.IndexSummary, error) {
	manifest, err := s.readManifest()
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	summaries := make([]raw.IndexSummary, 0, len(manifest))
	for dir, entry := range manifest {
		updated, err := raw.ParseStoredTime(entry.LastUpdated)
		if err != nil {
			s.logger.Debug("skipping manifest entry with bad timestamp", "source", dir, "value", entry.LastUpdated)
			continue
		}
		summaries = append(summaries, raw.IndexSummary{
			SourceDirectory: dir,
			LastUpdated:     updated,
			RecordCount:     entry.RecordCount,
			CachePath:       entry.CacheFile,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].LastUpdated.Equal(summaries[j].LastUpdated) {
			return summaries[i].LastUpdated.After(summaries[j].LastUpdated)
		}
		return summaries[i].SourceDirectory < summaries[j].SourceDirectory
	})
	return summaries, nil
}

// Remove deletes the cache file and manifest entry for sourceDir.
func (s *FileStore) Remove(sourceDir string) (bool, error) {
	canonical, err := canonicalize(sourceDir)
	if err != nil {
		return false, &raw.PersistenceError{Op: "remove", Path: sourceDir, Err: err}
	}
	cachePath, err := s.CachePathFor(sourceDir)
	if err != nil {
		return false, &raw.PersistenceError{Op: "remove", Path: sourceDir, Err: err}
	}

	found := false
	if err := os.Remove(cachePath); err == nil {
		found = true
	} else if !os.IsNotExist(err) {
		return false, &raw.PersistenceError{Op: "remove", Path: cachePath, Err: err}
	}

	manifest, err := s.readManifest()
	if err != nil {
		return found, &raw.PersistenceError{Op: "remove", Path: s.manifestPath(), Err: err}
	}
	if _, ok := manifest[canonical]; ok {
		delete(manifest, canonical)
		if err := s.writeManifest(manifest); err != nil {
			return found, &raw.PersistenceError{Op: "remove", Path: s.manifestPath(), Err: err}
		}
		found = true
	}

	return found, nil
}

// ClearAll deletes every cache file and resets the manifest.
func (s *FileStore) ClearAll() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return &raw.PersistenceError{Op: "clear", Path: s.root, Err: err}
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		if err := os.Remove(filepath.Join(s.root, name)); err != nil {
			return &raw.PersistenceError{Op: "clear", Path: filepath.Join(s.root, name), Err: err}
		}
	}
	s.logger.Debug("cache cleared", "root", s.root)
	return nil
}

func (s *FileStore) manifestPath() string {
	return filepath.Join(s.root, manifestName)
}

// readManifest returns the manifest contents, or an empty map when no
// manifest exists yet.
func (s *FileStore) readManifest() (map[string]manifestEntry, error) {
	data, err := os.ReadFile(s.manifestPath())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]manifestEntry{}, nil
		}
		return nil, err
	}
	var manifest map[string]manifestEntry
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return manifest, nil
}

func (s *FileStore) writeManifest(manifest map[string]manifestEntry) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return s.writeAtomic(s.manifestPath(), data)
}

// writeAtomic writes data to path via a temp file and rename, so an
// interrupted run never leaves a half-written cache or manifest behind.
func (s *FileStore) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileStore implements raw.Store.
var _ raw.Store = (*FileStore)(nil)
