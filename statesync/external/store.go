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

// Package external implements the bounded-concurrency external-storage
// fetcher: the object-store backends (S3, GCS, filesystem, Azure) a state
// sync session reads parts from when running in ExternalStorage mode.
package external

import (
	"context"
	"fmt"
)

// ObjectKey derives the location of one state part within an external
// object store from the tuple the original algorithm keys on:
// (chain_id, epoch_id, epoch_height, shard_id, part_id, num_parts).
func ObjectKey(chainID string, epochID string, epochHeight uint64, shardID uint64, partIndex, numParts uint64) string {
	return fmt.Sprintf("chain_id=%s/epoch_id=%s/epoch_height=%d/shard_id=%d/state_part_%06d_of_%06d",
		chainID, epochID, epochHeight, shardID, partIndex, numParts)
}

// Store is the read-only object-store interface every backend implements.
type Store interface {
	// Get fetches the object at key. Callers treat a non-nil error as
	// transient-storage (retry via the DownloadStatus.Error path).
	Get(ctx context.Context, key string) ([]byte, error)

	// Name identifies the backend for logging.
	Name() string
}
