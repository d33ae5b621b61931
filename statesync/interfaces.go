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

import "context"

// ShardLayoutID identifies a shard layout version; two layouts compare equal
// iff the shard partitioning is identical.
type ShardLayoutID string

// ShardUID identifies a shard within a specific shard layout version.
type ShardUID struct {
	Version uint32
	ShardID ShardID
}

// StateRoot is the cryptographic commitment to a shard's full state at a
// block.
type StateRoot = SyncHash

// Chain is the chain-store collaborator: out of scope per SPEC_FULL.md §1,
// referenced only by interface.
type Chain interface {
	// BlockExists reports whether the block with the given hash is present
	// locally.
	BlockExists(hash SyncHash) (bool, error)
	// PrevHash returns the prev_hash of the block with the given hash.
	PrevHash(hash SyncHash) (SyncHash, error)
	// EpochIDOf returns the epoch id for the block with the given hash.
	EpochIDOf(hash SyncHash) (ShardLayoutID, error)

	// NumStateParts returns the number of parts composing shardID's state at
	// sync_hash, once the header has been persisted.
	NumStateParts(shardID ShardID, syncHash SyncHash) (uint64, error)
	// StateRoot returns the state root shardID's header commits to.
	StateRoot(shardID ShardID, syncHash SyncHash) (StateRoot, error)

	// SetStateHeader persists a downloaded header.
	SetStateHeader(shardID ShardID, syncHash SyncHash, header []byte) error
	// SetStatePart persists a downloaded part at the given index.
	SetStatePart(shardID ShardID, syncHash SyncHash, partIndex, numParts uint64, data []byte) error
	// ClearDownloadedParts removes any persisted parts for shardID at
	// syncHash, used when a phase-finalization error forces a restart.
	ClearDownloadedParts(shardID ShardID, syncHash SyncHash, numParts uint64) error

	// ScheduleApplyStateParts enqueues the apply-parts executor for shardID;
	// the result later arrives via SetApplyResult.
	ScheduleApplyStateParts(shardID ShardID, syncHash SyncHash, numParts uint64, scheduler ApplySchedulerFunc) error
	// SetStateFinalize finalizes the applied state for shardID given the
	// apply result.
	SetStateFinalize(shardID ShardID, syncHash SyncHash, applyErr error) error

	// PrepareSplitShards enqueues the split-state executor for shardID; the
	// result later arrives via SetSplitResult.
	PrepareSplitShards(shardID ShardID, syncHash SyncHash, scheduler SplitSchedulerFunc) error
	// FinalizeSplitShards consumes the split result for shardUID.
	FinalizeSplitShards(shardUID ShardUID, syncHash SyncHash, roots map[ShardUID]StateRoot) error
}

// EpochManager is the epoch-manager collaborator: out of scope per
// SPEC_FULL.md §1, referenced only by interface.
type EpochManager interface {
	ShardLayout(epochID ShardLayoutID) (ShardLayoutID, error)
	WillShardLayoutChange(prevHash SyncHash) (bool, error)
	// EpochHeight returns the height of epochID's first block, used to build
	// external-storage object keys alongside epoch id and shard id.
	EpochHeight(epochID ShardLayoutID) (uint64, error)
}

// Runtime is the runtime-adapter collaborator: validates a part against a
// state root, out of scope per SPEC_FULL.md §1.
type Runtime interface {
	ValidateStatePart(stateRoot StateRoot, partID, numParts uint64, data []byte) bool
}

// PartStore is the StateParts column: out of scope per SPEC_FULL.md §6, the
// concrete column-family store belongs to the chain store. The
// external-storage dispatch path writes validated parts here directly,
// keyed by StatePartKey.Encode().
type PartStore interface {
	Put(key, value []byte) error
}

// PeerMessenger is the peer-manager collaborator: sends typed outbound
// network messages, out of scope per SPEC_FULL.md §1.
type PeerMessenger interface {
	RequestStateHeader(ctx context.Context, shardID ShardID, syncHash SyncHash, peerID string) error
	RequestStatePart(ctx context.Context, shardID ShardID, syncHash SyncHash, partID uint64, peerID string) error
}

// ErrRouteNotFound is returned by a PeerMessenger implementation when the
// named peer is unreachable; the dispatcher re-arms RunMe in response.
var ErrRouteNotFound = routeNotFoundError{}

type routeNotFoundError struct{}

func (routeNotFoundError) Error() string { return "statesync: route not found" }

// ApplySchedulerFunc enqueues an opaque apply-parts task; the scheduler is
// expected to eventually call SetApplyResult.
type ApplySchedulerFunc func(shardID ShardID, syncHash SyncHash, numParts uint64)

// SplitSchedulerFunc enqueues an opaque split-state task; the scheduler is
// expected to eventually call SetSplitResult.
type SplitSchedulerFunc func(shardUID ShardUID, syncHash SyncHash)
