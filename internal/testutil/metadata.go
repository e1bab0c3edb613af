package testutil

import (
	"context"
	"sync"
	"time"

	"rawmatch/internal/raw"
)

// MockMetadataReader serves capture timestamps from an in-memory map.
// Paths not present in Times report no timestamp. Safe for concurrent use.
type MockMetadataReader struct {
	mu    sync.Mutex
	Times map[string]time.Time
	Errs  map[string]error
	calls map[string]int
}

// NewMockMetadataReader creates an empty MockMetadataReader.
func NewMockMetadataReader() *MockMetadataReader {
	return &MockMetadataReader{
		Times: make(map[string]time.Time),
		Errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

// SetTime registers a capture timestamp for path.
func (m *MockMetadataReader) SetTime(path string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Times[path] = t
}

// SetError makes reads of path fail with err.
func (m *MockMetadataReader) SetError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errs[path] = err
}

func (m *MockMetadataReader) ReadCaptureTime(_ context.Context, path string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[path]++
	if err, ok := m.Errs[path]; ok {
		return nil, err
	}
	if t, ok := m.Times[path]; ok {
		return &t, nil
	}
	return nil, nil
}

// Calls returns how many times path has been read.
func (m *MockMetadataReader) Calls(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[path]
}

var _ raw.MetadataReader = (*MockMetadataReader)(nil)
