package raw

import "fmt"

// InvalidDirectoryError reports a directory that is missing, not a
// directory, or unreadable. It aborts the current command.
type InvalidDirectoryError struct {
	Path   string
	Reason string
	Err    error
}

func (e *InvalidDirectoryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid directory %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid directory %s: %s", e.Path, e.Reason)
}

func (e *InvalidDirectoryError) Unwrap() error { return e.Err }

// MetadataReadError reports a failed capture-time read for one file.
// Callers degrade it to "no timestamp" everywhere except the one-time
// tool-availability check at startup.
type MetadataReadError struct {
	Path string
	Err  error
}

func (e *MetadataReadError) Error() string {
	return fmt.Sprintf("reading metadata of %s: %v", e.Path, e.Err)
}

func (e *MetadataReadError) Unwrap() error { return e.Err }

// PersistenceError reports a cache or manifest write that could not
// complete. The in-memory index remains valid.
type PersistenceError struct {
	Op   string // "save", "remove", "clear"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("index %s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NoIndexError reports a match run that found no usable index. Requested
// names the --source-filter directory when one was given; empty means no
// directory is indexed at all.
type NoIndexError struct {
	Requested string
}

func (e *NoIndexError) Error() string {
	if e.Requested != "" {
		return fmt.Sprintf("no index exists for %s", e.Requested)
	}
	return "no directories are indexed"
}
