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
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

func waitForRecorded(t *testing.T, ch <-chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-time.After(waitTimeout):
			t.Fatalf("timed out waiting for request %d/%d", i+1, n)
		}
	}
}

// newTestSync wires a StateSync in Peers mode over a fixed clock, with a
// single shard 0, one hop from genesis.
func newTestSync(t *testing.T, peers *fakePeerMessenger, now time.Time) (*StateSync, *fakeChain, *fakeEpochManager, SyncHash) {
	t.Helper()

	chain := newFakeChain()
	epochManager := newFakeEpochManager()

	syncHash := common.BytesToHash([]byte("sync-hash"))
	prevHash := common.BytesToHash([]byte("prev-hash"))
	chain.prev[syncHash] = prevHash
	chain.blocks[prevHash] = true
	chain.epoch[syncHash] = "epoch-1"
	chain.epoch[prevHash] = "epoch-0"
	epochManager.layouts["epoch-1"] = "layout-A"
	epochManager.layouts["epoch-0"] = "layout-A"

	sync := New(Config{
		Mode:    ModePeers,
		ChainID: "test-chain",
		Timeout: time.Minute,
		Peers:   peers,
		Now:     func() time.Time { return now },
	})
	return sync, chain, epochManager, syncHash
}

// TestHeaderRequestEmission covers spec.md §8 scenario 1.
func TestHeaderRequestEmission(t *testing.T) {
	peers := newFakePeerMessenger(4)
	now := time.Now()
	sync, chain, epochManager, syncHash := newTestSync(t, peers, now)

	shards := map[ShardID]*ShardSyncDownload{}
	result, err := sync.Step(context.Background(), syncHash, shards, chain,
		epochManager, []PeerInfo{{ID: "peerA", TrackingShards: map[ShardID]struct{}{0: {}}}},
		[]ShardID{0}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, ResultInProgress, result)

	waitForRecorded(t, peers.recorded, 1)
	require.Equal(t, 1, peers.headerCount())

	download := shards[0]
	require.Equal(t, StatusDownloadHeader, download.Status)
	status := download.Downloads[0]
	require.False(t, status.RunMe.Load())
	require.EqualValues(t, 1, status.StateRequestsCount)
	require.NotNil(t, status.LastTarget)
	require.Equal(t, "peerA", *status.LastTarget)
}

// TestHeaderArrivalTransitionsToParts covers spec.md §8 scenario 2.
func TestHeaderArrivalTransitionsToParts(t *testing.T) {
	peers := newFakePeerMessenger(4)
	now := time.Now()
	sync, chain, epochManager, syncHash := newTestSync(t, peers, now)
	chain.numParts[0] = 5

	shards := map[ShardID]*ShardSyncDownload{0: newDownloadHeaderPhase(now)}
	require.NoError(t, UpdateDownloadOnStateHeaderResponse(chain, shards[0], 0, syncHash, []byte("header-bytes")))
	require.True(t, shards[0].Downloads[0].Done)

	_, err := sync.Step(context.Background(), syncHash, shards, chain, epochManager,
		nil, []ShardID{0}, nil, nil)
	require.NoError(t, err)

	download := shards[0]
	require.Equal(t, StatusDownloadParts, download.Status)
	require.Len(t, download.Downloads, 5)
	for _, status := range download.Downloads {
		require.True(t, status.RunMe.Load())
	}
}

// TestPartResponseCompletesAndUpdatesLedger covers the direct-peer part
// response entry point: in Peers mode this is the only path that marks a
// part Done, and it must also clear the pending-request ledger entry the
// dispatcher recorded when it sent the request.
func TestPartResponseCompletesAndUpdatesLedger(t *testing.T) {
	peers := newFakePeerMessenger(4)
	now := time.Now()
	sync, chain, _, syncHash := newTestSync(t, peers, now)

	download := newDownloadPartsPhase(now, 2)
	sync.ledger.recordRequest(now, time.Minute, "peerA", ShardID(0), 0, syncHash)
	require.True(t, sync.ledger.hasPending("peerA", ShardID(0)))

	require.NoError(t, sync.UpdateDownloadOnStatePartResponse(chain, download, 0, syncHash, 0, 2, []byte("part-bytes")))

	status := download.Downloads[0]
	require.True(t, status.Done)
	require.False(t, status.Error)
	require.Equal(t, []byte("part-bytes"), chain.parts[0][0])
	require.False(t, sync.ledger.hasPending("peerA", ShardID(0)))
}

// TestPartResponseRejectsOutOfRange covers the §8 boundary: a part_id at or
// beyond num_parts is rejected rather than applied.
func TestPartResponseRejectsOutOfRange(t *testing.T) {
	peers := newFakePeerMessenger(4)
	now := time.Now()
	sync, chain, _, syncHash := newTestSync(t, peers, now)

	download := newDownloadPartsPhase(now, 2)
	err := sync.UpdateDownloadOnStatePartResponse(chain, download, 0, syncHash, 2, 2, []byte("part-bytes"))
	require.ErrorIs(t, err, ErrPartOutOfRange)
	require.False(t, download.Downloads[0].Done)
	require.False(t, download.Downloads[1].Done)
}

// TestBoundedParallelism covers spec.md §8 scenario 3: two peers, 100 parts,
// K=16 caps in-flight requests at 32 per tick.
func TestBoundedParallelism(t *testing.T) {
	peers := newFakePeerMessenger(64)
	now := time.Now()
	sync, chain, epochManager, syncHash := newTestSync(t, peers, now)

	shards := map[ShardID]*ShardSyncDownload{0: newDownloadPartsPhase(now, 100)}
	candidates := []PeerInfo{
		{ID: "peerA", TrackingShards: map[ShardID]struct{}{0: {}}},
		{ID: "peerB", TrackingShards: map[ShardID]struct{}{0: {}}},
	}

	_, err := sync.Step(context.Background(), syncHash, shards, chain, epochManager,
		candidates, []ShardID{0}, nil, nil)
	require.NoError(t, err)

	waitForRecorded(t, peers.recorded, 32)
	require.Equal(t, 32, peers.partCount())

	runMeCount := 0
	notRunMeCount := 0
	for _, status := range shards[0].Downloads {
		if status.RunMe.Load() {
			runMeCount++
		} else {
			notRunMeCount++
		}
	}
	require.Equal(t, 68, runMeCount)
	require.Equal(t, 32, notRunMeCount)
}

// TestPendingExpiryReassigns covers spec.md §8 scenario 4.
func TestPendingExpiryReassigns(t *testing.T) {
	peers := newFakePeerMessenger(8)
	clock := time.Now()
	sync, chain, epochManager, syncHash := newTestSync(t, peers, clock)
	// Override Now with a pointer-backed closure so the same StateSync (and
	// its single ledger/dispatcher) can be advanced between ticks.
	sync.now = func() time.Time { return clock }

	shards := map[ShardID]*ShardSyncDownload{0: newDownloadPartsPhase(clock, 1)}
	candidates := []PeerInfo{{ID: "peerA", TrackingShards: map[ShardID]struct{}{0: {}}}}

	_, err := sync.Step(context.Background(), syncHash, shards, chain, epochManager,
		candidates, []ShardID{0}, nil, nil)
	require.NoError(t, err)
	waitForRecorded(t, peers.recorded, 1)
	require.False(t, shards[0].Downloads[0].RunMe.Load())

	clock = clock.Add(2 * time.Minute)
	_, err = sync.Step(context.Background(), syncHash, shards, chain, epochManager,
		candidates, []ShardID{0}, nil, nil)
	require.NoError(t, err)
	waitForRecorded(t, peers.recorded, 1)
	require.Equal(t, 2, peers.partCount())
}

// TestExternalStorageBackpressure covers spec.md §8 scenario 5.
func TestExternalStorageBackpressure(t *testing.T) {
	now := time.Now()
	chain := newFakeChain()
	epochManager := newFakeEpochManager()

	syncHash := common.BytesToHash([]byte("sync-hash"))
	prevHash := common.BytesToHash([]byte("prev-hash"))
	chain.prev[syncHash] = prevHash
	chain.blocks[prevHash] = true
	chain.epoch[syncHash] = "epoch-1"
	chain.epoch[prevHash] = "epoch-0"
	epochManager.layouts["epoch-1"] = "layout-A"
	epochManager.layouts["epoch-0"] = "layout-A"

	objectStore := &fakeObjectStore{data: []byte("part-bytes")}
	partStore := newFakePartStore()
	runtime := &fakeRuntime{valid: true}

	sync := New(Config{
		Mode:               ModeExternalStorage,
		ChainID:            "test-chain",
		Timeout:            time.Minute,
		Peers:              newFakePeerMessenger(4),
		ObjectStore:        objectStore,
		PartStore:          partStore,
		Runtime:            runtime,
		ConcurrentRequests: 4,
		Now:                func() time.Time { return now },
	})

	shards := map[ShardID]*ShardSyncDownload{0: newDownloadPartsPhase(now, 10)}
	_, err := sync.Step(context.Background(), syncHash, shards, chain, epochManager,
		nil, []ShardID{0}, nil, nil)
	require.NoError(t, err)

	deadline := time.Now().Add(waitTimeout)
	for {
		objectStore.mu.Lock()
		gets := objectStore.gets
		objectStore.mu.Unlock()
		if gets >= 4 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for external fetches, got %d", gets)
		}
		time.Sleep(time.Millisecond)
	}

	runMeCount := 0
	for _, status := range shards[0].Downloads {
		if status.RunMe.Load() {
			runMeCount++
		}
	}
	require.Equal(t, 6, runMeCount)
}

// TestValidationFailureMarksPartError covers the ingestion half of spec.md
// §8 scenario 6: a failed fetch result sets the part's Error flag and leaves
// Done false.
func TestValidationFailureMarksPartError(t *testing.T) {
	now := time.Now()
	download := newDownloadPartsPhase(now, 1)
	syncHash := common.BytesToHash([]byte("sync-hash"))

	sync := New(Config{Mode: ModeExternalStorage, Now: func() time.Time { return now }})
	shards := map[ShardID]*ShardSyncDownload{0: download}

	sync.ingestPartResult(now, syncHash, shards, PartResult{
		SyncHash: syncHash,
		ShardID:  0,
		PartID:   0,
		Err:      fmt.Errorf("validate_state_part failed"),
	})

	status := download.Downloads[0]
	require.True(t, status.Error)
	require.False(t, status.Done)
}

// TestLayoutChangeResharding covers spec.md §8 scenario 7.
func TestLayoutChangeResharding(t *testing.T) {
	now := time.Now()
	chain := newFakeChain()
	epochManager := newFakeEpochManager()
	syncHash := common.BytesToHash([]byte("sync-hash"))
	prevHash := common.BytesToHash([]byte("prev-hash"))
	chain.prev[syncHash] = prevHash
	chain.blocks[prevHash] = true
	epochManager.layoutChange[prevHash] = true

	sync := New(Config{Mode: ModePeers, Now: func() time.Time { return now }})
	shards := map[ShardID]*ShardSyncDownload{0: withEmptyDownloads(StatusComplete)}

	_, err := sync.Step(context.Background(), syncHash, shards, chain, epochManager, nil, []ShardID{0}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, StatusSplitScheduling, shards[0].Status)

	_, err = sync.Step(context.Background(), syncHash, shards, chain, epochManager, nil, []ShardID{0}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, StatusSplitApplying, shards[0].Status)

	sync.SetSplitResult(0, map[ShardUID]StateRoot{{ShardID: 0, Version: 1}: syncHash}, nil)
	_, err = sync.Step(context.Background(), syncHash, shards, chain, epochManager, nil, []ShardID{0}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, StatusDone, shards[0].Status)
}

// TestEmptyTrackingShardsCompletesOnBlockPresence covers the boundary
// behavior from spec.md §8: tracking_shards empty -> Completed iff the sync
// block is present.
func TestEmptyTrackingShardsCompletesOnBlockPresence(t *testing.T) {
	now := time.Now()
	chain := newFakeChain()
	epochManager := newFakeEpochManager()
	syncHash := common.BytesToHash([]byte("sync-hash"))
	prevHash := common.BytesToHash([]byte("prev-hash"))
	chain.prev[syncHash] = prevHash
	chain.blocks[prevHash] = true

	sync := New(Config{Mode: ModePeers, Now: func() time.Time { return now }})
	shards := map[ShardID]*ShardSyncDownload{}

	result, err := sync.Step(context.Background(), syncHash, shards, chain, epochManager, nil, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, ResultCompleted, result)
}

func TestEmptyTrackingShardsRequestsBlockWhenAbsent(t *testing.T) {
	now := time.Now()
	chain := newFakeChain()
	epochManager := newFakeEpochManager()
	syncHash := common.BytesToHash([]byte("sync-hash"))
	prevHash := common.BytesToHash([]byte("prev-hash"))
	chain.prev[syncHash] = prevHash
	// prevHash is absent from chain.blocks.

	sync := New(Config{Mode: ModePeers, Now: func() time.Time { return now }})
	shards := map[ShardID]*ShardSyncDownload{}

	result, err := sync.Step(context.Background(), syncHash, shards, chain, epochManager, nil, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, ResultRequestBlock, result)
}

// TestShardLayoutChangePanics covers the fatal precondition from spec.md §4.1.
func TestShardLayoutChangePanics(t *testing.T) {
	now := time.Now()
	chain := newFakeChain()
	epochManager := newFakeEpochManager()
	syncHash := common.BytesToHash([]byte("sync-hash"))
	prevHash := common.BytesToHash([]byte("prev-hash"))
	chain.prev[syncHash] = prevHash
	chain.blocks[prevHash] = true
	chain.epoch[syncHash] = "epoch-1"
	chain.epoch[prevHash] = "epoch-0"
	epochManager.layouts["epoch-1"] = "layout-B"
	epochManager.layouts["epoch-0"] = "layout-A"

	sync := New(Config{Mode: ModePeers, Now: func() time.Time { return now }})
	shards := map[ShardID]*ShardSyncDownload{}

	require.Panics(t, func() {
		_, _ = sync.Step(context.Background(), syncHash, shards, chain, epochManager, nil, []ShardID{0}, nil, nil)
	})
}
