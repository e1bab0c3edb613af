package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rawmatch/internal/raw"
	"rawmatch/internal/testutil"
)

func newTestStore(t *testing.T) (*FileStore, *testutil.StubClock) {
	t.Helper()
	clock := testutil.FixedClock()
	s, err := NewFileStore(t.TempDir(), raw.NewNopLogger(), clock)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return s, clock
}

func sampleIndex(sourceDir string) *raw.Index {
	idx := raw.NewIndex(sourceDir)
	ts := time.Date(2024, 3, 10, 14, 0, 5, 0, time.Local)
	idx.Add(&raw.Record{Path: filepath.Join(sourceDir, "IMG_0001.CR2"), Basename: "img_0001", CaptureTime: &ts, Size: 2048})
	idx.Add(&raw.Record{Path: filepath.Join(sourceDir, "IMG_0002.CR2"), Basename: "img_0002", Size: 4096})
	return idx
}

func TestCachePathFor_Stable(t *testing.T) {
	s, _ := newTestStore(t)
	dir := t.TempDir()

	base, err := s.CachePathFor(dir)
	if err != nil {
		t.Fatalf("CachePathFor() error = %v", err)
	}
	if !strings.HasPrefix(filepath.Base(base), "index_") {
		t.Errorf("cache file name = %q, want index_ prefix", filepath.Base(base))
	}

	// Trailing slash and ./ references must map to the same file.
	variants := []string{dir + "/", filepath.Join(dir, ".")}
	for _, v := range variants {
		got, err := s.CachePathFor(v)
		if err != nil {
			t.Fatalf("CachePathFor(%q) error = %v", v, err)
		}
		if got != base {
			t.Errorf("CachePathFor(%q) = %q, want %q", v, got, base)
		}
	}

	// A different directory maps elsewhere.
	other, err := s.CachePathFor(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if other == base {
		t.Error("distinct directories mapped to the same cache file")
	}
}

func TestCachePathFor_Symlink(t *testing.T) {
	s, _ := newTestStore(t)
	dir := t.TempDir()
	link := filepath.Join(t.TempDir(), "link")
	if err := os.Symlink(dir, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	base, err := s.CachePathFor(dir)
	if err != nil {
		t.Fatal(err)
	}
	viaLink, err := s.CachePathFor(link)
	if err != nil {
		t.Fatal(err)
	}
	if viaLink != base {
		t.Errorf("CachePathFor(symlink) = %q, want %q", viaLink, base)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s, clock := newTestStore(t)
	dir := t.TempDir()
	idx := sampleIndex(dir)

	if err := s.Save(dir, idx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got == nil {
		t.Fatal("Load() = nil, want saved index")
	}
	if got.Len() != 2 {
		t.Errorf("Len() = %d, want 2", got.Len())
	}
	if got.SourceDir() != dir {
		t.Errorf("SourceDir() = %q, want %q", got.SourceDir(), dir)
	}

	// Save stamps the clock time, truncated to the stored second resolution.
	want := clock.Now().Truncate(time.Second)
	if !got.LastUpdated().Equal(want) {
		t.Errorf("LastUpdated() = %v, want %v", got.LastUpdated(), want)
	}

	r := got.FindByBasename("img_0001")[0]
	if r.CaptureTime == nil {
		t.Fatal("CaptureTime = nil after round trip")
	}
	if r.Size != 2048 {
		t.Errorf("Size = %d, want 2048", r.Size)
	}
}

func TestLoad_Missing(t *testing.T) {
	s, _ := newTestStore(t)
	got, err := s.Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != nil {
		t.Errorf("Load() = %v, want nil for unindexed directory", got)
	}
}

func TestLoad_CorruptCache(t *testing.T) {
	s, _ := newTestStore(t)
	dir := t.TempDir()

	cachePath, err := s.CachePathFor(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cachePath, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v, want corrupt cache treated as missing", err)
	}
	if got != nil {
		t.Errorf("Load() = %v, want nil for corrupt cache", got)
	}
}

func TestListIndexedDirectories_SortedNewestFirst(t *testing.T) {
	s, clock := newTestStore(t)

	dirA := t.TempDir()
	dirB := t.TempDir()

	if err := s.Save(dirA, sampleIndex(dirA)); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Hour)
	if err := s.Save(dirB, sampleIndex(dirB)); err != nil {
		t.Fatal(err)
	}

	summaries, err := s.ListIndexedDirectories()
	if err != nil {
		t.Fatalf("ListIndexedDirectories() error = %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("len(summaries) = %d, want 2", len(summaries))
	}
	if !summaries[0].LastUpdated.After(summaries[1].LastUpdated) {
		t.Errorf("summaries not sorted newest first: %v then %v",
			summaries[0].LastUpdated, summaries[1].LastUpdated)
	}
	if summaries[0].RecordCount != 2 {
		t.Errorf("RecordCount = %d, want 2", summaries[0].RecordCount)
	}
	if summaries[0].CachePath == "" {
		t.Error("CachePath is empty")
	}
}

func TestListIndexedDirectories_Empty(t *testing.T) {
	s, _ := newTestStore(t)
	summaries, err := s.ListIndexedDirectories()
	if err != nil {
		t.Fatalf("ListIndexedDirectories() error = %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("len(summaries) = %d, want 0", len(summaries))
	}
}

func TestRemove(t *testing.T) {
	s, _ := newTestStore(t)
	dir := t.TempDir()

	if err := s.Save(dir, sampleIndex(dir)); err != nil {
		t.Fatal(err)
	}

	found, err := s.Remove(dir)
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if !found {
		t.Error("Remove() found = false, want true")
	}

	got, err := s.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("Load() after Remove() returned an index")
	}

	summaries, err := s.ListIndexedDirectories()
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 0 {
		t.Errorf("manifest still has %d entries after Remove()", len(summaries))
	}

	found, err = s.Remove(dir)
	if err != nil {
		t.Fatalf("second Remove() error = %v", err)
	}
	if found {
		t.Error("second Remove() found = true, want false")
	}
}

func TestClearAll(t *testing.T) {
	s, _ := newTestStore(t)
	dirA := t.TempDir()
	dirB := t.TempDir()

	if err := s.Save(dirA, sampleIndex(dirA)); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(dirB, sampleIndex(dirB)); err != nil {
		t.Fatal(err)
	}

	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}

	summaries, err := s.ListIndexedDirectories()
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 0 {
		t.Errorf("len(summaries) = %d after ClearAll(), want 0", len(summaries))
	}

	entries, err := os.ReadDir(s.Root())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			t.Errorf("cache file %s survived ClearAll()", e.Name())
		}
	}
}

func TestSave_NoStrayTempFiles(t *testing.T) {
	s, _ := newTestStore(t)
	dir := t.TempDir()

	if err := s.Save(dir, sampleIndex(dir)); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(s.Root())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("stray temp file %s left behind", e.Name())
		}
	}
}
