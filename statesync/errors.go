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

package statesync

import "errors"

var (
	// ErrShardLayoutChanged is raised when the previous-epoch shard layout
	// does not match the sync-epoch shard layout. This is a fatal,
	// unrecoverable precondition violation: state sync does not migrate
	// across layout boundaries itself. The caller must wait an epoch.
	ErrShardLayoutChanged = errors.New("statesync: cannot sync across a sharding upgrade, wait for the next epoch")

	// ErrPartOutOfRange is returned when a part response names a part index
	// at or beyond the shard's known part count.
	ErrPartOutOfRange = errors.New("statesync: part index out of range")

	// ErrNoPermits is reported internally when the external-storage
	// semaphore has no free permits; the caller re-arms RunMe and retries
	// next tick.
	ErrNoPermits = errors.New("statesync: no external-storage permits available")

	// ErrSemaphoreClosed is reported internally when the external-storage
	// semaphore has been torn down.
	ErrSemaphoreClosed = errors.New("statesync: external-storage semaphore closed")
)
