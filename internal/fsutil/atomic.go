// Package fsutil holds file helpers shared by the writers.
package fsutil

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/Faultbox/trackforge/internal/errs"
)

// WriteFileAtomic writes data to a temporary file next to path, syncs it and
// renames it over path. Readers see either the old file or the complete new
// one. On failure the temporary file is removed and an *errs.IOError is
// returned; nothing is retried.
func WriteFileAtomic(fs afero.Fs, path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return &errs.IOError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return &errs.IOError{Op: "create", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = fs.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return &errs.IOError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &errs.IOError{Op: "sync", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &errs.IOError{Op: "close", Path: path, Err: err}
	}
	if err := fs.Chmod(tmpName, perm); err != nil {
		return &errs.IOError{Op: "chmod", Path: path, Err: err}
	}
	if err := fs.Rename(tmpName, path); err != nil {
		return &errs.IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}
