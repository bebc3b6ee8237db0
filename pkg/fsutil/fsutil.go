// Package fsutil contains the filesystem operations shared by the lifecycle hooks and the
// cross-platform shell helpers (rm, mkdir, mv, cp).
package fsutil

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// RemoveTree recursively deletes path. A missing path is not an error.
func RemoveTree(path string) error {
	err := os.RemoveAll(path)
	if err != nil && !eris.Is(err, os.ErrNotExist) {
		return eris.Wrapf(err, "Could not delete %s", path)
	}

	return nil
}

// EnsureDir creates path and all missing parents. An existing directory is not an error but an
// existing file is.
func EnsureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return eris.Errorf("%s exists but is not a directory", path)
		}
		return nil
	}

	if !eris.Is(err, os.ErrNotExist) {
		return eris.Wrapf(err, "Failed to check %s", path)
	}

	err = os.MkdirAll(path, 0755)
	if err != nil {
		return eris.Wrapf(err, "Failed to create %s", path)
	}
	return nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// CopyTree copies the directory src to dest. If dest already exists, it's replaced.
// File modes are preserved and symlinks are recreated instead of followed.
func CopyTree(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return eris.Wrapf(err, "Could not find source directory %s", src)
	}

	if !info.IsDir() {
		return eris.Errorf("%s is not a directory", src)
	}

	err = RemoveTree(dest)
	if err != nil {
		return err
	}

	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return eris.Wrapf(err, "Failed to read %s", path)
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return eris.Wrapf(err, "Failed to relativize %s", path)
		}
		target := filepath.Join(dest, rel)

		switch {
		case info.IsDir():
			err = os.MkdirAll(target, info.Mode().Perm()|0700)
			if err != nil {
				return eris.Wrapf(err, "Failed to create %s", target)
			}
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return eris.Wrapf(err, "Failed to read link %s", path)
			}

			err = os.Symlink(link, target)
			if err != nil {
				return eris.Wrapf(err, "Failed to create link %s", target)
			}
		case info.Mode().IsRegular():
			return CopyFile(path, target, info.Mode().Perm())
		}

		return nil
	})
}

// CopyFile copies a single regular file to dest and applies mode to the copy.
func CopyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "Failed to open file %s", src)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return eris.Wrapf(err, "Failed to create file %s", dest)
	}

	_, err = io.Copy(out, in)
	if err != nil {
		out.Close()
		return eris.Wrapf(err, "Failed to copy %s to %s", src, dest)
	}

	err = out.Close()
	if err != nil {
		return eris.Wrapf(err, "Failed to write %s", dest)
	}

	return os.Chmod(dest, mode)
}

// Move moves each item into the directory dest, or renames the single item to dest if dest
// isn't an existing directory.
func Move(items []string, dest string) error {
	dest = filepath.Clean(dest)
	destParent := filepath.Dir(dest)
	info, err := os.Stat(destParent)
	if err != nil {
		return eris.Wrapf(err, "Could not find destination directory %s", destParent)
	}

	if !info.IsDir() {
		return eris.Errorf("%s is not a directory!", destParent)
	}

	destIsDir := IsDir(dest)
	if len(items) > 1 && !destIsDir {
		return eris.Errorf("Can't move multiple items to %s because it is not a directory!", dest)
	}

	for _, item := range items {
		itemDest := dest
		if destIsDir {
			itemDest = filepath.Join(dest, filepath.Base(item))
		}

		err = os.Rename(item, itemDest)
		if err != nil {
			return eris.Wrapf(err, "Failed to move %s to %s", item, itemDest)
		}
	}

	return nil
}
