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

// Package statesync implements the per-shard state synchronization core of a
// sharded blockchain client: a header-then-parts download coordinator that
// fetches shard state from peers or an external object store, validates it,
// persists it and hands it off to downstream apply/split schedulers.
package statesync

import (
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MaxPartRequestsPerPeer bounds the number of outstanding part requests this
// node will keep in flight against a single peer for a single shard.
const MaxPartRequestsPerPeer = 16

// MaxPeersAssumed upper-bounds the number of distinct peers the requested-target
// LRU needs to account for; it sizes the LRU alongside MaxPartRequestsPerPeer.
const MaxPeersAssumed = 10000

// SyncHash identifies the block pinning the sync target: the first block of
// the target epoch. All persisted artifacts are keyed by (SyncHash, ShardID,
// PartIndex).
type SyncHash = common.Hash

// ShardID identifies a shard within the current shard layout.
type ShardID uint64

// ShardStatus is the phase a ShardSyncDownload is currently in.
type ShardStatus int

const (
	StatusDownloadHeader ShardStatus = iota
	StatusDownloadParts
	StatusScheduling
	StatusApplying
	StatusComplete
	StatusSplitScheduling
	StatusSplitApplying
	StatusDone
)

func (s ShardStatus) String() string {
	switch s {
	case StatusDownloadHeader:
		return "DownloadHeader"
	case StatusDownloadParts:
		return "DownloadParts"
	case StatusScheduling:
		return "Scheduling"
	case StatusApplying:
		return "Applying"
	case StatusComplete:
		return "Complete"
	case StatusSplitScheduling:
		return "SplitScheduling"
	case StatusSplitApplying:
		return "SplitApplying"
	case StatusDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// DownloadStatus tracks the fetch state of a single artifact (a header, or
// one state part) within a shard's current phase.
//
// Invariant: Done and Error are never both true on the same tick; RunMe=true
// implies Done=false.
type DownloadStatus struct {
	RunMe atomic.Bool // dispatcher should (re)issue the request

	Done  bool // successfully fetched and persisted
	Error bool // last attempt failed, caller must decide retry

	StateRequestsCount uint64  // monotonically increasing attempt count
	LastTarget         *string // peer id of most recent source, nil for external

	StartTime      time.Time
	PrevUpdateTime time.Time
}

// newDownloadStatus creates a DownloadStatus armed to run immediately.
func newDownloadStatus(now time.Time) *DownloadStatus {
	d := &DownloadStatus{
		StartTime:      now,
		PrevUpdateTime: now,
	}
	d.RunMe.Store(true)
	return d
}

// ShardSyncDownload is the per-shard download record. Header-phase and
// parts-phase download slices are replaced wholesale on phase transitions.
type ShardSyncDownload struct {
	Status    ShardStatus
	Downloads []*DownloadStatus
}

// newDownloadHeaderPhase starts a shard at the header-download phase with a
// single DownloadStatus slot.
func newDownloadHeaderPhase(now time.Time) *ShardSyncDownload {
	return &ShardSyncDownload{
		Status:    StatusDownloadHeader,
		Downloads: []*DownloadStatus{newDownloadStatus(now)},
	}
}

// newDownloadPartsPhase starts a shard at the parts-download phase with
// numParts DownloadStatus slots, all armed to run.
func newDownloadPartsPhase(now time.Time, numParts uint64) *ShardSyncDownload {
	downloads := make([]*DownloadStatus, numParts)
	for i := range downloads {
		downloads[i] = newDownloadStatus(now)
	}
	return &ShardSyncDownload{
		Status:    StatusDownloadParts,
		Downloads: downloads,
	}
}

// withEmptyDownloads transitions to the given status carrying no per-artifact
// records, used for every phase after parts (Scheduling, Applying, Complete,
// Split*, Done).
func withEmptyDownloads(status ShardStatus) *ShardSyncDownload {
	return &ShardSyncDownload{Status: status, Downloads: nil}
}

// PendingRequestStatus tracks, for one (peer, shard) pair, how many part
// requests are still outstanding and when that bookkeeping expires.
type PendingRequestStatus struct {
	MissingParts int
	WaitUntil    time.Time
}

func newPendingRequestStatus(now time.Time, timeout time.Duration) *PendingRequestStatus {
	return &PendingRequestStatus{MissingParts: 1, WaitUntil: now.Add(timeout)}
}

func (p *PendingRequestStatus) expired(now time.Time) bool {
	return now.After(p.WaitUntil)
}

// PartResult carries the outcome of a background fetch attempt back to the
// orchestrator: a successful byte length, or an error.
type PartResult struct {
	SyncHash SyncHash
	ShardID  ShardID
	PartID   uint64
	NumParts uint64

	ByteLength uint64
	Err        error
}

// SyncMode fixes, at construction, how header and part data is retrieved.
type SyncMode int

const (
	// ModePeers fetches both headers and parts from peers.
	ModePeers SyncMode = iota
	// ModeExternalStorage fetches headers from peers but parts from an
	// external object store.
	ModeExternalStorage
)

// Result is the tri-state outcome of a single Step call.
type Result int

const (
	ResultInProgress Result = iota
	ResultRequestBlock
	ResultCompleted
)

func (r Result) String() string {
	switch r {
	case ResultInProgress:
		return "InProgress"
	case ResultRequestBlock:
		return "RequestBlock"
	case ResultCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}
