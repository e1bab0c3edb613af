package raw

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"
)

// stubCatalog scans a real directory by extension so builder tests can use
// t.TempDir fixtures without a dependency on the production scanner.
type stubCatalog struct{}

func (stubCatalog) Scan(dir string, class FileClass, recursive bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &InvalidDirectoryError{Path: dir, Reason: "unreadable", Err: err}
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		switch class {
		case ClassRAW:
			if ext == ".cr2" || ext == ".nef" || ext == ".arw" {
				out = append(out, filepath.Join(dir, e.Name()))
			}
		case ClassJPEG:
			if ext == ".jpg" || ext == ".jpeg" {
				out = append(out, filepath.Join(dir, e.Name()))
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// memStore keeps snapshots in memory, keyed by source directory.
type memStore struct {
	snapshots map[string]*Snapshot
	saveErr   error
	saves     int
}

func newMemStore() *memStore {
	return &memStore{snapshots: make(map[string]*Snapshot)}
}

func (m *memStore) CachePathFor(sourceDir string) (string, error) {
	abs, err := filepath.Abs(sourceDir)
	if err != nil {
		return "", err
	}
	return "mem:" + filepath.Clean(abs), nil
}

func (m *memStore) Load(sourceDir string) (*Index, error) {
	key, _ := m.CachePathFor(sourceDir)
	s, ok := m.snapshots[key]
	if !ok {
		return nil, nil
	}
	return IndexFromSnapshot(s)
}

func (m *memStore) Save(sourceDir string, index *Index) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	index.SetLastUpdated(time.Now())
	key, _ := m.CachePathFor(sourceDir)
	m.snapshots[key] = index.Snapshot()
	return nil
}

func (m *memStore) ListIndexedDirectories() ([]IndexSummary, error) {
	var out []IndexSummary
	for key, s := range m.snapshots {
		var last time.Time
		if s.LastUpdated != "" {
			last, _ = ParseStoredTime(s.LastUpdated)
		}
		out = append(out, IndexSummary{
			SourceDirectory: s.SourceDirectory,
			LastUpdated:     last,
			RecordCount:     len(s.Files),
			CachePath:       key,
		})
	}
	return out, nil
}

func (m *memStore) Remove(sourceDir string) (bool, error) {
	key, _ := m.CachePathFor(sourceDir)
	_, ok := m.snapshots[key]
	delete(m.snapshots, key)
	return ok, nil
}

func (m *memStore) ClearAll() error {
	m.snapshots = make(map[string]*Snapshot)
	return nil
}

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, make([]byte, size), 0644); err != nil {
		t.Fatalf("writing fixture %s: %v", name, err)
	}
	return p
}

func TestBuilder_FullBuild(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "IMG_0001.CR2", 100)
	writeFile(t, dir, "IMG_0002.NEF", 200)
	writeFile(t, dir, "notes.txt", 10) // not a raw file

	ts := time.Date(2024, 3, 10, 14, 0, 5, 0, time.Local)
	md := newStubMetadata()
	md.times[a] = ts

	store := newMemStore()
	b := NewBuilder(stubCatalog{}, md, store, NewNopLogger(), 2)

	idx, err := b.Build(context.Background(), dir, true, false)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if idx.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", idx.Len())
	}
	r := idx.FindByBasename("img_0001")[0]
	if r.CaptureTime == nil || !r.CaptureTime.Equal(ts) {
		t.Errorf("CaptureTime = %v, want %v", r.CaptureTime, ts)
	}
	if r.Size != 100 {
		t.Errorf("Size = %d, want 100", r.Size)
	}
	r = idx.FindByBasename("img_0002")[0]
	if r.CaptureTime != nil {
		t.Errorf("CaptureTime = %v, want nil for file without metadata", r.CaptureTime)
	}
	if store.saves != 1 {
		t.Errorf("store saves = %d, want 1", store.saves)
	}
}

func TestBuilder_MetadataFailureKeepsFile(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "broken.cr2", 50)

	md := newStubMetadata()
	md.errs[a] = &MetadataReadError{Path: a, Err: errors.New("unreadable")}

	b := NewBuilder(stubCatalog{}, md, newMemStore(), NewNopLogger(), 1)
	idx, err := b.Build(context.Background(), dir, true, false)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if idx.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (metadata failure must not drop the file)", idx.Len())
	}
	if idx.AllRecords()[0].CaptureTime != nil {
		t.Error("CaptureTime != nil, want nil after metadata failure")
	}
}

func TestBuilder_DifferentialUpdate(t *testing.T) {
	dir := t.TempDir()
	kept := writeFile(t, dir, "kept.cr2", 100)
	removed := writeFile(t, dir, "removed.cr2", 100)
	changed := writeFile(t, dir, "changed.cr2", 100)

	md := newStubMetadata()
	md.times[kept] = time.Date(2024, 3, 10, 14, 0, 5, 0, time.Local)
	md.times[changed] = time.Date(2024, 3, 10, 14, 0, 9, 0, time.Local)
	store := newMemStore()
	b := NewBuilder(stubCatalog{}, md, store, NewNopLogger(), 2)

	if _, err := b.Build(context.Background(), dir, true, false); err != nil {
		t.Fatalf("initial Build() error = %v", err)
	}
	initialReads := md.calls

	// Mutate the directory: delete one, resize one, add one.
	if err := os.Remove(removed); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(changed, make([]byte, 250), 0644); err != nil {
		t.Fatal(err)
	}
	added := writeFile(t, dir, "added.arw", 300)

	idx, err := b.Build(context.Background(), dir, true, false)
	if err != nil {
		t.Fatalf("differential Build() error = %v", err)
	}

	if idx.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", idx.Len())
	}
	if got := idx.FindByBasename("removed"); len(got) != 0 {
		t.Errorf("removed file still indexed: %v", got)
	}
	if got := idx.FindByBasename("added"); len(got) != 1 || got[0].Path != added {
		t.Errorf("added file not indexed: %v", got)
	}
	if got := idx.FindByBasename("changed"); len(got) != 1 || got[0].Size != 250 {
		t.Errorf("changed file not reprocessed: %v", got)
	}
	if got := idx.FindByBasename("kept"); len(got) != 1 || got[0].Path != kept {
		t.Errorf("unchanged file missing: %v", got)
	}

	// Only the new and the resized file get their metadata re-read.
	if reads := md.calls - initialReads; reads != 2 {
		t.Errorf("metadata reads during update = %d, want 2", reads)
	}

	// The updated index must be indistinguishable from a fresh rebuild.
	full, err := b.Build(context.Background(), dir, true, true)
	if err != nil {
		t.Fatalf("forced Build() error = %v", err)
	}
	byPath := make(map[string]*Record)
	for _, r := range full.AllRecords() {
		byPath[r.Path] = r
	}
	if len(byPath) != idx.Len() {
		t.Fatalf("rebuild has %d record(s), differential has %d", len(byPath), idx.Len())
	}
	for _, got := range idx.AllRecords() {
		want, ok := byPath[got.Path]
		if !ok {
			t.Errorf("differential record %s missing from rebuild", got.Path)
			continue
		}
		if got.Basename != want.Basename {
			t.Errorf("%s: Basename = %q, want %q", got.Path, got.Basename, want.Basename)
		}
		if got.Size != want.Size {
			t.Errorf("%s: Size = %d, want %d", got.Path, got.Size, want.Size)
		}
		switch {
		case got.CaptureTime == nil && want.CaptureTime == nil:
		case got.CaptureTime == nil || want.CaptureTime == nil:
			t.Errorf("%s: CaptureTime = %v, want %v", got.Path, got.CaptureTime, want.CaptureTime)
		case !got.CaptureTime.Equal(*want.CaptureTime):
			t.Errorf("%s: CaptureTime = %v, want %v", got.Path, got.CaptureTime, want.CaptureTime)
		}
	}
}

func TestBuilder_ForceRebuildIgnoresCache(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.cr2", 100)

	md := newStubMetadata()
	store := newMemStore()
	b := NewBuilder(stubCatalog{}, md, store, NewNopLogger(), 1)

	if _, err := b.Build(context.Background(), dir, true, false); err != nil {
		t.Fatalf("initial Build() error = %v", err)
	}
	initialReads := md.calls

	if _, err := b.Build(context.Background(), dir, true, true); err != nil {
		t.Fatalf("forced Build() error = %v", err)
	}

	// A forced rebuild re-reads every file even though nothing changed.
	if reads := md.calls - initialReads; reads != 1 {
		t.Errorf("metadata reads during forced rebuild = %d, want 1", reads)
	}
}

func TestBuilder_SaveFailureReturnsIndex(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.cr2", 100)

	store := newMemStore()
	store.saveErr = &PersistenceError{Op: "save", Err: os.ErrPermission}
	b := NewBuilder(stubCatalog{}, newStubMetadata(), store, NewNopLogger(), 1)

	idx, err := b.Build(context.Background(), dir, true, false)
	if err == nil {
		t.Fatal("Build() error = nil, want persistence error")
	}
	if idx == nil || idx.Len() != 1 {
		t.Errorf("Build() index = %v, want usable in-memory index alongside the error", idx)
	}
}

func TestBuilder_VanishedFileDropped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.cr2", 100)
	ghost := filepath.Join(dir, "ghost.cr2")

	// Catalog that reports a path that does not exist on disk.
	cat := fixedCatalog{paths: []string{filepath.Join(dir, "a.cr2"), ghost}}

	b := NewBuilder(cat, newStubMetadata(), newMemStore(), NewNopLogger(), 2)
	idx, err := b.Build(context.Background(), dir, true, false)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if idx.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (vanished file dropped)", idx.Len())
	}
}

// fixedCatalog returns a canned path list.
type fixedCatalog struct {
	paths []string
}

func (c fixedCatalog) Scan(string, FileClass, bool) ([]string, error) {
	return c.paths, nil
}
