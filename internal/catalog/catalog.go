// Package catalog discovers RAW and JPEG files on the real filesystem.
package catalog

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"rawmatch/internal/raw"
)

// rawExtensions covers the common camera vendors. Lookup is on the
// lowercased extension, so casing on disk never matters.
var rawExtensions = map[string]bool{
	".cr2": true, // Canon
	".cr3": true, // Canon
	".nef": true, // Nikon
	".arw": true, // Sony
	".raf": true, // Fujifilm
	".orf": true, // Olympus
	".rw2": true, // Panasonic
	".pef": true, // Pentax
	".dng": true, // Adobe/Leica
	".rwl": true, // Leica
	".3fr": true, // Hasselblad
	".iiq": true, // Phase One
}

var jpegExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
}

// Scanner is the filesystem implementation of raw.Catalog.
type Scanner struct{}

// NewScanner creates a Scanner.
func NewScanner() *Scanner { return &Scanner{} }

// Scan returns the absolute paths of all files of the given class under
// dir, sorted lexicographically. A non-recursive scan reads only the top
// level. A missing, non-directory, or unreadable dir yields a
// *raw.InvalidDirectoryError.
func (s *Scanner) Scan(dir string, class raw.FileClass, recursive bool) ([]string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, &raw.InvalidDirectoryError{Path: dir, Reason: "cannot resolve", Err: err}
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &raw.InvalidDirectoryError{Path: abs, Reason: "does not exist"}
		}
		return nil, &raw.InvalidDirectoryError{Path: abs, Reason: "not accessible", Err: err}
	}
	if !info.IsDir() {
		return nil, &raw.InvalidDirectoryError{Path: abs, Reason: "not a directory"}
	}

	extensions := jpegExtensions
	if class == raw.ClassRAW {
		extensions = rawExtensions
	}

	var paths []string
	if recursive {
		err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if p == abs {
					return err
				}
				// Unreadable subdirectory: skip it rather than abort.
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			if extensions[strings.ToLower(filepath.Ext(p))] {
				paths = append(paths, p)
			}
			return nil
		})
		if err != nil {
			return nil, &raw.InvalidDirectoryError{Path: abs, Reason: "not readable", Err: err}
		}
	} else {
		entries, err := os.ReadDir(abs)
		if err != nil {
			return nil, &raw.InvalidDirectoryError{Path: abs, Reason: "not readable", Err: err}
		}
		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			if extensions[strings.ToLower(filepath.Ext(entry.Name()))] {
				paths = append(paths, filepath.Join(abs, entry.Name()))
			}
		}
	}

	sort.Strings(paths)
	return paths, nil
}

// IsClass reports whether path's extension belongs to the given class.
func IsClass(path string, class raw.FileClass) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if class == raw.ClassRAW {
		return rawExtensions[ext]
	}
	return jpegExtensions[ext]
}

// Compile-time check that Scanner implements raw.Catalog.
var _ raw.Catalog = (*Scanner)(nil)
