package metadata

import (
	"fmt"
	"time"

	"rawmatch/internal/config"
	"rawmatch/internal/raw"
)

// NewReaderFromConfig creates a MetadataReader based on the config type,
// wrapped in the per-run memoizing cache. For the exiftool backend this is
// also where tool availability is checked, once, at startup.
func NewReaderFromConfig(cfg config.MetadataConfig, logger raw.Logger) (raw.MetadataReader, error) {
	var inner raw.MetadataReader
	switch cfg.Type {
	case "exif", "":
		inner = NewNativeReader(logger)
	case "exiftool":
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		r, err := NewExiftoolReader(cfg.ExiftoolPath, timeout, logger)
		if err != nil {
			return nil, err
		}
		inner = r
	default:
		return nil, fmt.Errorf("unknown metadata reader type: %q", cfg.Type)
	}
	return NewCachingReader(inner), nil
}
