package raw

import (
	"context"
	"fmt"
)

// Service coordinates the catalog, builder, store, matcher, and copier to
// perform the high-level operations the CLI exposes.
type Service struct {
	catalog  Catalog
	metadata MetadataReader
	builder  *Builder
	store    Store
	copier   Copier
	logger   Logger
}

// NewService creates a Service with the provided dependencies.
func NewService(catalog Catalog, metadata MetadataReader, builder *Builder, store Store, copier Copier, logger Logger) *Service {
	return &Service{
		catalog:  catalog,
		metadata: metadata,
		builder:  builder,
		store:    store,
		copier:   copier,
		logger:   logger,
	}
}

// BuildIndex builds or updates the index for sourceDir and persists it.
func (s *Service) BuildIndex(ctx context.Context, sourceDir string, recursive, forceRebuild bool) (*Index, error) {
	return s.builder.Build(ctx, sourceDir, recursive, forceRebuild)
}

// MatchReport summarizes one match-and-copy run.
type MatchReport struct {
	RawRecords int // records in the union index
	JpegsFound int
	Matches    []MatchResult
	Stats      MatchStats
	Outcome    CopyOutcome
}

// MatchAndCopy scans targetDir for JPEGs, matches them against the union
// of all stored indexes (restricted to sourceFilter when non-empty), and
// copies each matched RAW file into targetDir. When no usable index exists
// it returns a *NoIndexError naming the missing directory.
func (s *Service) MatchAndCopy(ctx context.Context, targetDir string, recursive bool, sourceFilter string) (*MatchReport, error) {
	union, err := s.loadUnionIndex(sourceFilter)
	if err != nil {
		return nil, err
	}

	jpegs, err := s.catalog.Scan(targetDir, ClassJPEG, recursive)
	if err != nil {
		return nil, err
	}
	s.logger.Info("jpeg files discovered", "count", len(jpegs), "target", targetDir)

	report := &MatchReport{RawRecords: union.Len(), JpegsFound: len(jpegs)}
	if len(jpegs) == 0 {
		return report, nil
	}

	matcher := NewMatcher(union, s.metadata, s.logger)
	report.Matches = matcher.FindMatches(ctx, jpegs)
	report.Stats = MatchStatistics(report.Matches)

	if len(report.Matches) > 0 {
		report.Outcome = s.copier.CopyAll(report.Matches, targetDir)
		s.logger.Info("copy finished",
			"copied", report.Outcome.Copied,
			"skipped", report.Outcome.Skipped,
			"failed", report.Outcome.Failed)
	}

	return report, nil
}

// loadUnionIndex merges every stored index into one, newest first. With a
// sourceFilter only the matching directory's index is loaded; the filter is
// compared by cache path so symlinked or relative references still resolve.
func (s *Service) loadUnionIndex(sourceFilter string) (*Index, error) {
	summaries, err := s.store.ListIndexedDirectories()
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, &NoIndexError{}
	}

	var filterCachePath string
	if sourceFilter != "" {
		filterCachePath, err = s.store.CachePathFor(sourceFilter)
		if err != nil {
			return nil, fmt.Errorf("resolving source filter: %w", err)
		}
	}

	union := NewIndex("")
	loaded := 0
	for _, sum := range summaries {
		if filterCachePath != "" && sum.CachePath != filterCachePath {
			continue
		}
		idx, err := s.store.Load(sum.SourceDirectory)
		if err != nil {
			return nil, err
		}
		if idx == nil {
			s.logger.Warn("manifest entry without loadable cache", "source", sum.SourceDirectory)
			continue
		}
		for _, r := range idx.AllRecords() {
			union.Add(r)
		}
		loaded++
		s.logger.Debug("index loaded", "source", sum.SourceDirectory, "records", idx.Len())
	}

	if loaded == 0 {
		return nil, &NoIndexError{Requested: sourceFilter}
	}

	s.logger.Info("union index assembled", "records", union.Len(), "directories", loaded)
	return union, nil
}

// ListIndexed returns the manifest entries, newest first.
func (s *Service) ListIndexed() ([]IndexSummary, error) {
	return s.store.ListIndexedDirectories()
}

// LoadIndex returns the stored index for sourceDir, or nil if none exists.
func (s *Service) LoadIndex(sourceDir string) (*Index, error) {
	return s.store.Load(sourceDir)
}

// ClearCache removes the cache for sourceDir, or every cache when
// sourceDir is empty. It reports whether anything was removed.
func (s *Service) ClearCache(sourceDir string) (bool, error) {
	if sourceDir == "" {
		if err := s.store.ClearAll(); err != nil {
			return false, err
		}
		s.logger.Info("all index caches cleared")
		return true, nil
	}
	found, err := s.store.Remove(sourceDir)
	if err != nil {
		return false, err
	}
	s.logger.Info("index cache cleared", "source", sourceDir, "found", found)
	return found, nil
}
