// Package fsutil holds file helpers shared by the cisync commands.
package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
)

const tmpPrefix = ".cisync-tmp-"

// WriteFileAtomic writes data to name through a temporary file in the same
// directory followed by a rename. The parent directory must already exist;
// it is never created. An existing file keeps its permissions.
func WriteFileAtomic(fsys billy.Filesystem, name string, data []byte, perm os.FileMode) error {
	dir := path.Dir(name)

	// billy creates missing parents on open; refuse instead
	if dir != "." {
		ok, err := DirExists(fsys, dir)
		if err != nil {
			return err
		}
		if !ok {
			return &fs.PathError{Op: "write", Path: name, Err: fs.ErrNotExist}
		}
	}

	if info, err := fsys.Stat(name); err == nil {
		perm = info.Mode().Perm()
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	// Create temp file in destination directory
	tmpFile, err := fsys.TempFile(dir, tmpPrefix)
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = fsys.Remove(tmpPath)
	}() // cleanup on error

	// Write content
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}

	if ch, ok := fsys.(billy.Change); ok {
		if err := ch.Chmod(tmpPath, perm); err != nil {
			return err
		}
	}

	// Atomic rename
	return fsys.Rename(tmpPath, name)
}

// DirExists reports whether dir exists and is a directory.
func DirExists(fsys billy.Filesystem, dir string) (bool, error) {
	info, err := fsys.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
