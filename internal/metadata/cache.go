package metadata

import (
	"context"
	"sync"
	"time"

	"rawmatch/internal/raw"
)

// CachingReader memoizes capture-time reads for the lifetime of a run, so
// a file queried during both indexing and matching is read once. Failed
// reads are cached as "no timestamp" to avoid pointless retries.
// Safe for concurrent use by the parallel extraction workers.
type CachingReader struct {
	inner raw.MetadataReader

	mu    sync.Mutex
	cache map[string]*time.Time
}

// NewCachingReader wraps inner with a per-run memo.
func NewCachingReader(inner raw.MetadataReader) *CachingReader {
	return &CachingReader{
		inner: inner,
		cache: make(map[string]*time.Time),
	}
}

// ReadCaptureTime returns the memoized result when present, otherwise
// delegates to the wrapped reader. The first error for a path is returned
// to the caller; later lookups of that path see "no timestamp".
func (c *CachingReader) ReadCaptureTime(ctx context.Context, path string) (*time.Time, error) {
	c.mu.Lock()
	if ts, ok := c.cache[path]; ok {
		c.mu.Unlock()
		return ts, nil
	}
	c.mu.Unlock()

	ts, err := c.inner.ReadCaptureTime(ctx, path)
	if err != nil {
		c.mu.Lock()
		c.cache[path] = nil
		c.mu.Unlock()
		return nil, err
	}

	c.mu.Lock()
	c.cache[path] = ts
	c.mu.Unlock()
	return ts, nil
}

// Size returns the number of memoized paths.
func (c *CachingReader) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

var _ raw.MetadataReader = (*CachingReader)(nil)
