package raw

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the bounded concurrency for metadata extraction.
// Reads go through an external tool or image parse with per-file latency,
// so this is the one parallel region in a build.
const DefaultWorkers = 4

// Builder orchestrates full builds and differential updates of an Index
// against the current filesystem state.
type Builder struct {
	catalog  Catalog
	metadata MetadataReader
	store    Store
	logger   Logger
	workers  int
}

// NewBuilder creates a Builder. workers <= 0 selects DefaultWorkers.
func NewBuilder(catalog Catalog, metadata MetadataReader, store Store, logger Logger, workers int) *Builder {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Builder{
		catalog:  catalog,
		metadata: metadata,
		store:    store,
		logger:   logger,
		workers:  workers,
	}
}

// Build creates or refreshes the index for sourceDir and persists it.
// Without forceRebuild an existing cached index is updated differentially;
// otherwise a full build runs. A persistence failure after a successful
// build is returned as a *PersistenceError alongside the still-usable
// in-memory index.
func (b *Builder) Build(ctx context.Context, sourceDir string, recursive, forceRebuild bool) (*Index, error) {
	abs, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, &InvalidDirectoryError{Path: sourceDir, Reason: "cannot resolve", Err: err}
	}

	b.logger.Info("index build started", "source", abs, "recursive", recursive, "force_rebuild", forceRebuild)

	var existing *Index
	if !forceRebuild {
		existing, err = b.store.Load(abs)
		if err != nil {
			return nil, err
		}
	}

	var index *Index
	if existing == nil {
		index, err = b.fullBuild(ctx, abs, recursive)
	} else {
		b.logger.Info("existing index found", "records", existing.Len())
		index, err = b.differentialUpdate(ctx, existing, abs, recursive)
	}
	if err != nil {
		return nil, err
	}

	if err := b.store.Save(abs, index); err != nil {
		return index, err
	}

	b.logger.Info("index build finished", "source", abs, "records", index.Len())
	return index, nil
}

// fullBuild scans sourceDir and indexes every RAW file found.
func (b *Builder) fullBuild(ctx context.Context, sourceDir string, recursive bool) (*Index, error) {
	paths, err := b.catalog.Scan(sourceDir, ClassRAW, recursive)
	if err != nil {
		return nil, err
	}
	b.logger.Info("raw files discovered", "count", len(paths))

	index := NewIndex(sourceDir)
	for _, r := range b.describeFiles(ctx, paths) {
		index.Add(r)
	}
	return index, nil
}

// differentialUpdate reconciles an existing index with the directory's
// current contents: deleted files are removed, size-changed files are
// reprocessed, new files are added. The result is set-equal to what a
// full build over the same filesystem state would produce.
func (b *Builder) differentialUpdate(ctx context.Context, index *Index, sourceDir string, recursive bool) (*Index, error) {
	scanned, err := b.catalog.Scan(sourceDir, ClassRAW, recursive)
	if err != nil {
		return nil, err
	}

	current := make(map[string]bool, len(scanned))
	for _, p := range scanned {
		current[p] = true
	}

	existing := make(map[string]*Record, index.Len())
	for _, r := range index.AllRecords() {
		existing[r.Path] = r
	}

	var newFiles, changed []string
	for _, p := range scanned {
		if _, ok := existing[p]; !ok {
			newFiles = append(newFiles, p)
		}
	}
	var deleted []string
	for p := range existing {
		if !current[p] {
			deleted = append(deleted, p)
		}
	}

	for _, p := range deleted {
		index.Remove(p)
	}

	// Change detection is size-only: a same-size content edit is not
	// noticed. Candidates are the paths present both on disk and in the
	// index.
	for _, p := range scanned {
		rec, ok := existing[p]
		if !ok {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			b.logger.Debug("stat failed during update check", "path", p, "error", err)
			continue
		}
		if info.Size() != rec.Size {
			index.Remove(p)
			changed = append(changed, p)
		}
	}

	b.logger.Info("differential analysis", "new", len(newFiles), "deleted", len(deleted), "changed", len(changed))

	reprocess := append(newFiles, changed...)
	for _, r := range b.describeFiles(ctx, reprocess) {
		index.Add(r)
	}

	b.logger.Info("differential update finished", "records", index.Len())
	return index, nil
}

// describeFiles stats each path and reads its capture time with bounded
// parallelism. Results are folded in only after the whole batch completes,
// in scan order. A file whose metadata read fails is still described, with
// no capture time; a file that vanished between scan and stat is dropped.
func (b *Builder) describeFiles(ctx context.Context, paths []string) []*Record {
	results := make([]*Record, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			results[i] = b.describeFile(gctx, p)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	records := make([]*Record, 0, len(paths))
	for _, r := range results {
		if r != nil {
			records = append(records, r)
		}
	}
	return records
}

func (b *Builder) describeFile(ctx context.Context, path string) *Record {
	info, err := os.Stat(path)
	if err != nil {
		b.logger.Warn("stat failed, skipping file", "path", path, "error", err)
		return nil
	}

	ts, err := b.metadata.ReadCaptureTime(ctx, path)
	if err != nil {
		// Not fatal for the file: it stays indexed without a timestamp.
		b.logger.Debug("capture time unreadable", "path", path, "error", err)
		ts = nil
	}

	return &Record{
		Path:        path,
		Basename:    BasenameOf(path),
		CaptureTime: ts,
		Size:        info.Size(),
	}
}
