// Package store implements the on-disk layout of content entries.
//
// Every admitted upload owns one directory named by its content id directly
// under the base directory:
//
//	<base>/<contentId>/source.{jpg|png}   the uploaded bytes, verbatim
//	<base>/<contentId>/target.jpg         recompressed output (after success)
//	<base>/<contentId>/meta               metadata record (always present)
//
// The store knows nothing about processing state beyond reading and writing
// the metadata record; the job coordinator owns all transitions.
package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/speexx/guetzli-service/internal/logger"
	"github.com/speexx/guetzli-service/pkg/image"
)

// ErrNotFound is returned when an entry or one of its files is absent.
var ErrNotFound = errors.New("content not found")

const (
	metaFile   = "meta"
	targetFile = "target.jpg"

	// DefaultBaseDirName is the directory created under the user's home
	// when storage.base is not configured.
	DefaultBaseDirName = ".guetzli-data"
)

// Store manages content entries below a single base directory.
// All methods are safe for concurrent use; isolation between entries is
// delegated to the filesystem, and concurrent writers to the same entry
// are prevented by the coordinator's ownership rules.
type Store struct {
	base string
}

// New creates a store rooted at base, creating the directory if needed.
// An empty base resolves to <home>/.guetzli-data.
func New(base string) (*Store, error) {
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		base = filepath.Join(home, DefaultBaseDirName)
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create base directory %s: %w", base, err)
	}
	logger.Info("storage base path", "path", base)
	return &Store{base: base}, nil
}

// Base returns the base directory.
func (s *Store) Base() string {
	return s.base
}

// Admit generates a fresh content id, creates the entry directory and
// streams body into the source file. It does not write metadata; the
// caller completes admission with WriteMeta.
//
// Returns the new content id and the number of source bytes written.
func (s *Store) Admit(body io.Reader, typ image.Type) (string, int64, error) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")

	dir := s.entryDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create entry directory: %w", err)
	}

	f, err := os.OpenFile(s.SourcePath(id, typ), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("create source file: %w", err)
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// Leave no half-written entry behind.
		if derr := s.Delete(id); derr != nil {
			logger.Warn("cleanup of failed admission", "content_id", id, "error", derr)
		}
		return "", 0, fmt.Errorf("write source file: %w", err)
	}

	return id, n, nil
}

// ReadSource opens the stored source file. Closing the reader is the
// caller's responsibility.
func (s *Store) ReadSource(id string, typ image.Type) (io.ReadCloser, error) {
	return s.open(s.SourcePath(id, typ))
}

// ReadTarget opens the transformed target file. Closing the reader is the
// caller's responsibility. Absent targets (entry unknown, or not yet
// transformed) yield ErrNotFound.
func (s *Store) ReadTarget(id string) (io.ReadCloser, error) {
	return s.open(s.TargetPath(id))
}

func (s *Store) open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return nil, err
	}
	return f, nil
}

// ReadMeta reads and parses the metadata record of an entry.
// A missing record yields ErrNotFound; a malformed one
// image.ErrCorruptMetadata.
func (s *Store) ReadMeta(id string) (*image.Metadata, error) {
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no metadata for %s", ErrNotFound, id)
		}
		return nil, err
	}
	return image.ParseMetadata(data)
}

// WriteMeta rewrites the metadata record of the entry named by
// meta.ContentID. The file is replaced in a single truncate-and-write;
// crash-safety beyond single-file replace is not required here.
func (s *Store) WriteMeta(meta *image.Metadata) error {
	data, err := meta.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.metaPath(meta.ContentID), data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// TargetSize returns the byte length of the target file.
func (s *Store) TargetSize(id string) (int64, error) {
	fi, err := os.Stat(s.TargetPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: no target for %s", ErrNotFound, id)
		}
		return 0, err
	}
	return fi.Size(), nil
}

// List returns the content ids of all entries, in directory order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.base)
	if err != nil {
		return nil, fmt.Errorf("list base directory: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// Delete removes the entry directory tree. Per-file failures are logged
// and skipped so that a wedged file never blocks the purge; a missing
// directory is a no-op.
func (s *Store) Delete(id string) error {
	dir := s.entryDir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read entry directory: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			logger.Warn("delete entry file", "content_id", id, "file", e.Name(), "error", err)
		}
	}
	if err := os.Remove(dir); err != nil {
		return fmt.Errorf("remove entry directory: %w", err)
	}
	return nil
}

// SourcePath returns the path of the source file for id.
func (s *Store) SourcePath(id string, typ image.Type) string {
	return filepath.Join(s.entryDir(id), "source."+typ.Ext())
}

// TargetPath returns the path of the target file for id.
func (s *Store) TargetPath(id string) string {
	return filepath.Join(s.entryDir(id), targetFile)
}

func (s *Store) metaPath(id string) string {
	return filepath.Join(s.entryDir(id), metaFile)
}

func (s *Store) entryDir(id string) string {
	return filepath.Join(s.base, id)
}
