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

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/dndll/nearcore/internal/log"
	"github.com/dndll/nearcore/statesync/external"
)

// dispatcher issues the actual outbound requests for a shard's currently
// armed artifacts: one header request, or a batch of part requests, via
// whichever SyncMode the session was constructed with.
type dispatcher struct {
	mode SyncMode

	peers   PeerMessenger
	ledger  *pendingLedger
	timeout time.Duration

	// ExternalStorage mode only.
	chainID     string
	objectStore external.Store
	partStore   PartStore
	semaphore   *boundedSemaphore
	permits     int64
	resultCh    chan<- PartResult
	runtime     Runtime
}

// dispatchHeader picks one candidate uniformly at random and sends a header
// request, per spec.md §4.4.
func (d *dispatcher) dispatchHeader(ctx context.Context, shardID ShardID, syncHash SyncHash, download *ShardSyncDownload, candidates []string) {
	if len(candidates) == 0 {
		return
	}
	status := download.Downloads[0]
	if !status.RunMe.Load() {
		return
	}
	peerID := candidates[rand.Intn(len(candidates))]

	status.RunMe.Store(false)
	status.StateRequestsCount++
	status.LastTarget = &peerID

	go func() {
		err := d.peers.RequestStateHeader(ctx, shardID, syncHash, peerID)
		if errors.Is(err, ErrRouteNotFound) {
			status.RunMe.Store(true)
		} else if err != nil {
			log.Debug("state sync header request failed", "shard", shardID, "peer", peerID, "err", err)
		}
	}()
}

// dispatchPartsPeers pairs still-needed parts, in index order, with targets
// drawn from the bounded-multiplicity sampler and sends one request per
// pairing, per spec.md §4.3/§4.4. At most len(candidates)*MaxPartRequestsPerPeer
// parts are paired per call; the rest stay armed for a later tick. All
// candidates are weighted equally: direct peers and epoch validators are not
// told apart, and no weighting by stake or past throughput is applied.
func (d *dispatcher) dispatchPartsPeers(ctx context.Context, now time.Time, shardID ShardID, syncHash SyncHash, download *ShardSyncDownload, candidates []string) {
	sampler := newLimitedSampler(candidates, MaxPartRequestsPerPeer)

	for partIndex, status := range download.Downloads {
		if !status.RunMe.Load() {
			continue
		}
		peerID, ok := sampler.next()
		if !ok {
			break
		}

		d.ledger.recordRequest(now, d.timeout, peerID, shardID, uint64(partIndex), syncHash)

		status.RunMe.Store(false)
		status.StateRequestsCount++
		status.LastTarget = &peerID

		partIdx := uint64(partIndex)
		go func() {
			err := d.peers.RequestStatePart(ctx, shardID, syncHash, partIdx, peerID)
			if errors.Is(err, ErrRouteNotFound) {
				status.RunMe.Store(true)
			} else if err != nil {
				log.Debug("state sync part request failed", "shard", shardID, "part", partIdx, "peer", peerID, "err", err)
			}
		}()
	}
}

// externalPartTask bundles everything a background fetch goroutine needs so
// that dispatchPartsExternal stays a thin loop over parts_to_fetch.
type externalPartTask struct {
	syncHash    SyncHash
	shardID     ShardID
	partIndex   uint64
	numParts    uint64
	chainID     string
	epochID     string
	epochHeight uint64
	stateRoot   StateRoot
}

// dispatchPartsExternal attempts to acquire one semaphore permit per
// still-needed part and spawns a background fetch for each one acquired, per
// spec.md §4.4's ExternalStorage path. It stops dispatching as soon as this
// tick's permit budget is spent, mirroring the original's
// "if semaphore.available_permits() == 0 { break }" guard (state.rs:684-686):
// without it, a fetch that completes (and releases its permit) before this
// loop finishes iterating could let a later part acquire the freed permit
// and start a task beyond num_concurrent_requests within the same tick.
func (d *dispatcher) dispatchPartsExternal(ctx context.Context, shardID ShardID, syncHash SyncHash, download *ShardSyncDownload, epochID string, epochHeight uint64, stateRoot StateRoot) {
	numParts := uint64(len(download.Downloads))

	var spawned int64
	for partIndex, status := range download.Downloads {
		if !status.RunMe.Load() {
			continue
		}
		if spawned >= d.permits {
			break
		}
		task := externalPartTask{
			syncHash:    syncHash,
			shardID:     shardID,
			partIndex:   uint64(partIndex),
			numParts:    numParts,
			chainID:     d.chainID,
			epochID:     epochID,
			epochHeight: epochHeight,
			stateRoot:   stateRoot,
		}
		if d.dispatchOneExternalPart(ctx, status, task) {
			spawned++
		}
	}
}

// dispatchOneExternalPart tries to acquire one semaphore permit for task and
// spawns the background fetch on success. It reports whether it spawned a
// task, so the caller can track this tick's dispatch budget.
func (d *dispatcher) dispatchOneExternalPart(ctx context.Context, status *DownloadStatus, task externalPartTask) bool {
	ok, err := d.semaphore.tryAcquire()
	if !ok {
		// Non-blocking by design: a busy pool or a closed session both leave
		// the part armed for a later tick rather than stalling this one.
		status.RunMe.Store(true)
		if errors.Is(err, ErrSemaphoreClosed) {
			log.Error("state sync external fetch semaphore closed", "shard", task.shardID, "part", task.partIndex)
		}
		return false
	}

	if !status.RunMe.CompareAndSwap(true, false) {
		// Lost the race: something else already cleared RunMe for this part.
		d.semaphore.release()
		return false
	}
	status.StateRequestsCount++
	status.LastTarget = nil

	key := external.ObjectKey(task.chainID, task.epochID, task.epochHeight, uint64(task.shardID), task.partIndex, task.numParts)

	go func() {
		defer d.semaphore.release()

		data, err := d.objectStore.Get(ctx, key)
		result := PartResult{
			SyncHash: task.syncHash,
			ShardID:  task.shardID,
			PartID:   task.partIndex,
			NumParts: task.numParts,
		}
		switch {
		case err != nil:
			result.Err = err
		case !d.runtime.ValidateStatePart(task.stateRoot, task.partIndex, task.numParts, data):
			result.Err = fmt.Errorf("statesync: validate_state_part failed for state_root=%s part=%d shard=%d", task.stateRoot, task.partIndex, task.shardID)
		default:
			partKey := StatePartKey{SyncHash: task.syncHash, ShardID: task.shardID, PartIndex: task.partIndex}
			if err := d.partStore.Put(partKey.Encode(), data); err != nil {
				result.Err = fmt.Errorf("statesync: persist part failed for state_root=%s part=%d shard=%d: %w", task.stateRoot, task.partIndex, task.shardID, err)
			} else {
				result.ByteLength = uint64(len(data))
			}
		}

		select {
		case d.resultCh <- result:
		default:
			log.Error("state sync result channel full, dropping part result", "shard", task.shardID, "part", task.partIndex)
		}
	}()
	return true
}
