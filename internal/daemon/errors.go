// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"errors"
	"fmt"

	"github.com/strongdm/mnemosyne/internal/blobstore"
	"github.com/strongdm/mnemosyne/internal/repository"
	"github.com/strongdm/mnemosyne/internal/rpc"
)

// errProjectNotFound reports that projectPath is not among the daemon's
// currently-watched projects.
func errProjectNotFound(projectPath string) error {
	return fmt.Errorf("%w: %s", errProjectUnknown, projectPath)
}

var errProjectUnknown = errors.New("daemon: project not watched")

// rpcCodeFor maps an internal error to a JSON-RPC response code, per the
// error taxonomy of spec §4.8/§7.
func rpcCodeFor(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errProjectUnknown):
		return rpc.CodeProjectNotFound
	case errors.Is(err, repository.ErrHashNotFound):
		return rpc.CodeSnapshotNotFound
	case errors.Is(err, repository.ErrAmbiguousHash):
		return rpc.CodeSnapshotNotFound
	case errors.Is(err, repository.ErrSymbolNotFound):
		return rpc.CodeSymbolNotFound
	case errors.Is(err, repository.ErrOutsideProject):
		return rpc.CodeInvalidPath
	case errors.Is(err, blobstore.ErrInvalidHash):
		return rpc.CodeInvalidPath
	case errors.Is(err, blobstore.ErrNotFound):
		return rpc.CodeSnapshotNotFound
	default:
		return rpc.CodeStorageError
	}
}
