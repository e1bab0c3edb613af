package raw

import (
	"context"
)

// Matcher pairs JPEG files with RAW records from an index using a
// two-phase algorithm: basename first, then exact capture-time
// corroboration when the JPEG carries a timestamp.
type Matcher struct {
	index    *Index
	metadata MetadataReader
	logger   Logger
}

// NewMatcher creates a Matcher over the given index.
func NewMatcher(index *Index, metadata MetadataReader, logger Logger) *Matcher {
	return &Matcher{index: index, metadata: metadata, logger: logger}
}

// FindMatches processes JPEG paths one at a time, in order. Matched JPEGs
// contribute one result each, in input order; unmatched JPEGs contribute
// nothing. A metadata-read failure on a JPEG is treated as "no timestamp",
// never as an abort.
func (m *Matcher) FindMatches(ctx context.Context, jpegPaths []string) []MatchResult {
	var matches []MatchResult

	m.logger.Info("matching started", "jpeg_count", len(jpegPaths))

	for _, p := range jpegPaths {
		jpeg := m.describeJpeg(ctx, p)
		if result, ok := m.matchOne(jpeg); ok {
			matches = append(matches, result)
			m.logger.Debug("match found", "jpeg", p, "raw", result.RawPath, "method", string(result.Method))
		} else {
			m.logger.Debug("no match", "jpeg", p)
		}
	}

	m.logger.Info("matching finished", "matched", len(matches))
	return matches
}

func (m *Matcher) describeJpeg(ctx context.Context, path string) JpegRecord {
	rec := JpegRecord{Path: path, Basename: BasenameOf(path)}
	ts, err := m.metadata.ReadCaptureTime(ctx, path)
	if err != nil {
		m.logger.Debug("jpeg capture time unreadable", "path", path, "error", err)
		return rec
	}
	rec.CaptureTime = ts
	return rec
}

// matchOne applies the two-phase algorithm to one JPEG.
func (m *Matcher) matchOne(jpeg JpegRecord) (MatchResult, bool) {
	candidates := m.index.FindByBasename(jpeg.Basename)
	if len(candidates) == 0 {
		return MatchResult{}, false
	}

	if jpeg.CaptureTime != nil {
		// Exact equality only. A basename collision without timestamp
		// corroboration is rejected outright rather than degraded to a
		// basename-only match.
		for _, c := range candidates {
			if c.CaptureTime != nil && timeKey(*c.CaptureTime) == timeKey(*jpeg.CaptureTime) {
				return MatchResult{
					JpegPath: jpeg.Path,
					RawPath:  c.Path,
					Method:   MatchBasenameAndTimestamp,
				}, true
			}
		}
		return MatchResult{}, false
	}

	// No JPEG timestamp: earliest-added candidate wins. Multiple candidates
	// are not an error.
	if len(candidates) > 1 {
		m.logger.Warn("multiple basename candidates, selecting first", "basename", jpeg.Basename, "count", len(candidates))
	}
	return MatchResult{
		JpegPath: jpeg.Path,
		RawPath:  candidates[0].Path,
		Method:   MatchBasenameOnly,
	}, true
}

// MatchStatistics aggregates match results by method.
func MatchStatistics(matches []MatchResult) MatchStats {
	stats := MatchStats{Total: len(matches)}
	for _, m := range matches {
		switch m.Method {
		case MatchBasenameAndTimestamp:
			stats.BasenameAndTimestamp++
		case MatchBasenameOnly:
			stats.BasenameOnly++
		}
	}
	return stats
}
