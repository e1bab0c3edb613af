package app

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"golang.org/x/term"

	"rawmatch/internal/catalog"
	"rawmatch/internal/config"
	"rawmatch/internal/copier"
	"rawmatch/internal/metadata"
	"rawmatch/internal/raw"
	"rawmatch/internal/store"
)

// App is the application layer between the CLI and the raw.Service.
// It constructs all dependencies from config and manages the log file
// lifecycle on Close.
type App struct {
	cfg     *config.Config
	service *raw.Service
	logFile *os.File
}

// NewApp creates a fully wired App from the given config.
// Each run gets a fresh operation ID stamped on every log line.
// The caller must call Close when done.
func NewApp(cfg *config.Config, verbose bool) (*App, error) {
	opID := uuid.NewString()
	slogger, logFile, err := newLogger(cfg.LogDir, opID, verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	reader, err := metadata.NewReaderFromConfig(cfg.Metadata, logger)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating metadata reader: %w", err)
	}

	st, err := store.NewFileStore(cfg.CacheDir, logger, raw.RealClock{})
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating index store: %w", err)
	}

	scanner := catalog.NewScanner()
	builder := raw.NewBuilder(scanner, reader, st, logger, cfg.Index.Workers)
	cp := copier.NewFileCopier(cfg.Copy.SafetyMarginBytes, logger)
	svc := raw.NewService(scanner, reader, builder, st, cp, logger)

	return &App{
		cfg:     cfg,
		service: svc,
		logFile: logFile,
	}, nil
}

// BuildIndex scans sourceDir for raw files and builds or updates its index.
func (a *App) BuildIndex(ctx context.Context, sourceDir string, recursive, forceRebuild bool) (*raw.Index, error) {
	return a.service.BuildIndex(ctx, sourceDir, recursive, forceRebuild)
}

// MatchAndCopy scans targetDir for JPEG files, matches them against the
// indexed raw files, and copies matched raws into targetDir.
func (a *App) MatchAndCopy(ctx context.Context, targetDir string, recursive bool, sourceFilter string) (*raw.MatchReport, error) {
	return a.service.MatchAndCopy(ctx, targetDir, recursive, sourceFilter)
}

// ListIndexed returns summaries of all indexed source directories.
func (a *App) ListIndexed() ([]raw.IndexSummary, error) {
	return a.service.ListIndexed()
}

// LoadIndex loads the stored index for a single source directory.
func (a *App) LoadIndex(sourceDir string) (*raw.Index, error) {
	return a.service.LoadIndex(sourceDir)
}

// ClearCache removes the stored index for sourceDir, or all indexes when
// sourceDir is empty. Returns true if anything was removed.
func (a *App) ClearCache(sourceDir string) (bool, error) {
	return a.service.ClearCache(sourceDir)
}

// Close releases resources held by the App.
func (a *App) Close() error {
	if a.logFile != nil {
		return a.logFile.Close()
	}
	return nil
}

// StdoutIsTerminal reports whether stdout is attached to a terminal.
// Progress output is suppressed when it is not.
func StdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
