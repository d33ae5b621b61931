// Copyright 2025 The nearcore Go authors
// This file is part of the nearcore Go state sync core.
//
// This software is provided "as is", without warranty of any kind,
// express or implied, including but not limited to the warranties
// of merchantability, fitness for a particular purpose and
// noninfringement. In no event shall the authors or copyright
// holders be liable for any claim, damages, or other liability,
// whether in an action of contract, tort or otherwise, arising
// from, out of or in connection with the software or the use or
// other dealings in the software.

package external

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FilesystemStore fetches state parts from a local directory tree, used in
// single-machine testing and localnet deployments.
type FilesystemStore struct {
	root string
}

// NewFilesystemStore roots the store at root.
func NewFilesystemStore(root string) *FilesystemStore {
	return &FilesystemStore{root: root}
}

func (f *FilesystemStore) Name() string { return "filesystem" }

// Get reads the file at root/key.
func (f *FilesystemStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(f.root, key))
	if err != nil {
		return nil, fmt.Errorf("statesync: filesystem get %s: %w", key, err)
	}
	return data, nil
}
