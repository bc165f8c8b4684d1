package imgsync

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// writeFileAtomic replaces path with data through a temp file in the same
// directory, so a crash mid-write never leaves a partial canonical file.
// Parent directories are created as needed.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	return nil
}

// writeIfChanged writes data atomically unless path already holds exactly
// these bytes. Reports whether a write happened.
func writeIfChanged(path string, data []byte) (bool, error) {
	old, err := os.ReadFile(path)
	switch {
	case err == nil:
		if bytes.Equal(old, data) {
			return false, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return false, &PersistenceError{Path: path, Err: err}
	}
	if err := writeFileAtomic(path, data); err != nil {
		return false, err
	}
	return true, nil
}
