// Package filestore provides a phiguard.KeyStore backed by files on a local filesystem.
//
// Each key record is stored in its own file:
//
//	<dir>/<service>/<account>.key
//
// Service and account names are path-escaped. Directories are created with
// mode 0700 and records are written with mode 0600 using a temp file, fsync
// and rename, so a record is always either the old or the new value.
//
// Usage:
//
//	store, err := filestore.New("/var/lib/phiguard")
//	manager, err := phiguard.New(store)
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rbaliyan/phiguard"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600
	fileExt  = ".key"
)

// Store is a file-backed phiguard.KeyStore. It is safe for concurrent use
// within one process; concurrent writers see last-rename-wins semantics.
type Store struct {
	dir string
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("filestore: directory must not be empty")
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("filestore: failed to create %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Put atomically writes key to the record file for id.
func (s *Store) Put(_ context.Context, id phiguard.KeyRecordID, key []byte) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("filestore: failed to create record directory: %w", err)
	}
	return writeSecureFile(path, key, filePerm)
}

// Get reads the record for id. A missing file or a permission denial is
// reported as an absent record.
func (s *Store) Get(_ context.Context, id phiguard.KeyRecordID) ([]byte, bool, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return data, true, nil
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("filestore: failed to read record %s: %w", id, err)
	}
}

// Delete removes the record file for id. Removing a missing record is not an error.
func (s *Store) Delete(_ context.Context, id phiguard.KeyRecordID) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("filestore: failed to delete record %s: %w", id, err)
	}
	return nil
}

func (s *Store) path(id phiguard.KeyRecordID) (string, error) {
	service, err := segment(id.Service)
	if err != nil {
		return "", err
	}
	account, err := segment(id.Account)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, service, account+fileExt), nil
}

// segment escapes name for use as a single path element.
func segment(name string) (string, error) {
	switch name {
	case "", ".", "..":
		return "", fmt.Errorf("filestore: invalid record name %q", name)
	}
	return url.PathEscape(name), nil
}

func writeSecureFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("filestore: failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if err = tmpFile.Chmod(perm); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("filestore: failed to set permissions: %w", err)
	}

	if _, err = tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("filestore: failed to write temp file: %w", err)
	}

	if err = tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("filestore: failed to sync temp file: %w", err)
	}

	if err = tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("filestore: failed to close temp file: %w", err)
	}

	if err = os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("filestore: failed to rename temp file: %w", err)
	}

	return nil
}

// Compile-time interface check.
var _ phiguard.KeyStore = (*Store)(nil)
