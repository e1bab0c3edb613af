// Package copier copies matched RAW files into the JPEG target directory.
package copier

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"rawmatch/internal/raw"
)

// DefaultSafetyMargin is the free-space headroom required beyond the file
// size before a copy is attempted.
const DefaultSafetyMargin = 10 * 1024 * 1024 // 10 MiB

// FileCopier is the filesystem implementation of raw.Copier. Copies run
// sequentially, one file at a time, so the disk-space and
// destination-collision checks observe prior writes in the same batch.
type FileCopier struct {
	safetyMargin int64
	logger       raw.Logger
}

// NewFileCopier creates a FileCopier. safetyMargin <= 0 selects
// DefaultSafetyMargin.
func NewFileCopier(safetyMargin int64, logger raw.Logger) *FileCopier {
	if safetyMargin <= 0 {
		safetyMargin = DefaultSafetyMargin
	}
	return &FileCopier{safetyMargin: safetyMargin, logger: logger}
}

// CopyAll copies each matched RAW file next to its JPEG. Per-file failures
// are accumulated, never aborting the batch; existing destination files
// are left untouched.
func (c *FileCopier) CopyAll(matches []raw.MatchResult, targetDir string) raw.CopyOutcome {
	var outcome raw.CopyOutcome

	c.logger.Info("copy started", "files", len(matches), "target", targetDir)

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		// No destination means nothing can be copied at all.
		outcome.Failed = len(matches)
		outcome.Errors = append(outcome.Errors, raw.CopyError{
			Path:   targetDir,
			Reason: fmt.Sprintf("creating target directory: %v", err),
		})
		return outcome
	}

	for _, m := range matches {
		dst := filepath.Join(targetDir, filepath.Base(m.RawPath))
		switch err := c.copyOne(m.RawPath, dst); {
		case err == nil:
			outcome.Copied++
		case errors.Is(err, errSkipped):
			outcome.Skipped++
			c.logger.Debug("destination exists, skipped", "path", dst)
		default:
			outcome.Failed++
			outcome.Errors = append(outcome.Errors, raw.CopyError{Path: m.RawPath, Reason: err.Error()})
			c.logger.Error("copy failed", "source", m.RawPath, "error", err)
		}
	}

	return outcome
}

// errSkipped marks an already-present destination. Not an error condition.
var errSkipped = errors.New("destination exists")

// copyOne copies src to dst, preserving mode and mtime, writing through a
// temp file so an interrupted copy never leaves a partial dst behind.
func (c *FileCopier) copyOne(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("source not readable: %w", err)
	}

	if _, err := os.Stat(dst); err == nil {
		return errSkipped
	}

	// A failed space check is itself non-fatal: attempt the copy anyway.
	if free, err := freeSpace(filepath.Dir(dst)); err != nil {
		c.logger.Debug("disk space check failed, proceeding", "error", err)
	} else if free < info.Size()+c.safetyMargin {
		return fmt.Errorf("insufficient disk space: need %d bytes, %d available", info.Size()+c.safetyMargin, free)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
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

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("copying data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}
	success = true

	// Preserve the source mtime, like cp -p. Failure here is cosmetic.
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		c.logger.Debug("preserving mtime failed", "path", dst, "error", err)
	}

	c.logger.Debug("copied", "source", src, "dest", dst, "bytes", info.Size())
	return nil
}

// Compile-time check that FileCopier implements raw.Copier.
var _ raw.Copier = (*FileCopier)(nil)
