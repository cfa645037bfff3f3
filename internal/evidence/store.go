// Package evidence stores uploaded evidence files on local disk under names
// derived from the owning report id.
package evidence

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	ErrNotFound    = errors.New("evidence not found")
	ErrMissingFile = errors.New("evidence file is required")
)

// Store writes evidence files into a single directory.
type Store struct {
	dir string
}

// NewStore creates dir if necessary and returns a Store rooted there.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory files are written to.
func (s *Store) Dir() string { return s.dir }

// Save copies the uploaded file to "<reportID>_<sanitised name>" and returns
// the stored name and its full path.
func (s *Store) Save(reportID string, fh *multipart.FileHeader) (string, string, error) {
	if fh == nil {
		return "", "", ErrMissingFile
	}
	src, err := fh.Open()
	if err != nil {
		return "", "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	name := reportID + "_" + SecureFilename(fh.Filename)
	path := filepath.Join(s.dir, name)

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", "", fmt.Errorf("create evidence file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", "", fmt.Errorf("write evidence file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", "", fmt.Errorf("close evidence file: %w", err)
	}
	return name, path, nil
}

// Open returns the path of a stored file. Names that would leave the upload
// directory, or that do not exist, yield ErrNotFound.
func (s *Store) Open(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", ErrNotFound
	}
	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", ErrNotFound
	}
	return path, nil
}

// Remove deletes a stored file. Removing a name that does not exist is not an
// error.
func (s *Store) Remove(name string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return ErrNotFound
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove evidence file: %w", err)
	}
	return nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureFilename reduces an uploaded filename to a flat ASCII name: path
// separators become spaces, whitespace runs become "_", anything outside
// [A-Za-z0-9_.-] is dropped, and leading/trailing dots and underscores are
// trimmed. An empty result becomes "upload".
func SecureFilename(name string) string {
	name = strings.NewReplacer("/", " ", "\\", " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeChars.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")
	if name == "" {
		return "upload"
	}
	return name
}
