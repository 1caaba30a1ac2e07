// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"os"
	"path/filepath"
)

// atomicWriteFile writes data to a temp file in the same directory as
// path and renames it into place, so a reader never observes a partially
// written target — the same durability idiom as the blob store.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".mnemosyne-restore-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
