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
	"sync"
	"time"

	"github.com/dndll/nearcore/internal/log"
	"github.com/dndll/nearcore/statesync/external"
)

// applyOutcome is what SetApplyResult hands back to the orchestrator, picked
// up on the shard's next tick in the Applying phase.
type applyOutcome struct {
	err error
}

// splitOutcome is what SetSplitResult hands back to the orchestrator, picked
// up on the shard's next tick in the SplitApplying phase.
type splitOutcome struct {
	roots map[ShardUID]StateRoot
	err   error
}

// Config constructs a StateSync. Peers is always required: even in
// ExternalStorage mode, headers are fetched from peers (spec.md §3).
type Config struct {
	Mode    SyncMode
	ChainID string
	Timeout time.Duration
	Catchup bool

	Peers PeerMessenger

	// ExternalStorage mode only.
	ObjectStore               external.Store
	PartStore                 PartStore
	Runtime                   Runtime
	ConcurrentRequests        int64
	ConcurrentRequestsCatchup int64

	// Now overrides the clock; defaults to time.Now. Tests inject a fixed or
	// stepped clock here instead of relying on a process-wide singleton.
	Now func() time.Time

	// API, if set, receives a Status snapshot after every Step call.
	API *API
}

// StateSync is the per-session orchestrator: one instance drives every shard
// tracked for a single sync_hash through its phases. It owns the pending
// ledger, the requested-target LRU, the response channel and the
// external-storage semaphore; the per-shard download map is supplied by the
// caller on every Step call.
type StateSync struct {
	mode    SyncMode
	chainID string
	timeout time.Duration
	catchup bool
	now     func() time.Time

	peers      *candidatePool
	dispatcher *dispatcher
	ledger     *pendingLedger
	gate       *blockGate
	resultCh   chan PartResult
	api        *API

	mu           sync.Mutex
	applyResults map[ShardID]*applyOutcome
	splitResults map[ShardID]*splitOutcome
}

// New builds a StateSync ready to drive Step calls for one sync session.
func New(cfg Config) *StateSync {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	permits := cfg.ConcurrentRequests
	if cfg.Catchup && cfg.ConcurrentRequestsCatchup > 0 {
		permits = cfg.ConcurrentRequestsCatchup
	}
	resultCh := make(chan PartResult, 256)
	ledger := newPendingLedger()

	return &StateSync{
		mode:    cfg.Mode,
		chainID: cfg.ChainID,
		timeout: cfg.Timeout,
		catchup: cfg.Catchup,
		now:     now,

		ledger:   ledger,
		gate:     &blockGate{},
		resultCh: resultCh,
		api:      cfg.API,

		applyResults: make(map[ShardID]*applyOutcome),
		splitResults: make(map[ShardID]*splitOutcome),

		dispatcher: &dispatcher{
			mode:        cfg.Mode,
			peers:       cfg.Peers,
			ledger:      ledger,
			timeout:     cfg.Timeout,
			chainID:     cfg.ChainID,
			objectStore: cfg.ObjectStore,
			partStore:   cfg.PartStore,
			semaphore:   newBoundedSemaphore(permits),
			permits:     permits,
			resultCh:    resultCh,
			runtime:     cfg.Runtime,
		},
	}
}

// SetApplyResult delivers the outcome of a previously scheduled apply-parts
// task; it is picked up on the shard's next Step while it is in the Applying
// phase.
func (s *StateSync) SetApplyResult(shardID ShardID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyResults[shardID] = &applyOutcome{err: err}
}

// SetSplitResult delivers the outcome of a previously scheduled split-state
// task; it is picked up on the shard's next Step while it is in the
// SplitApplying phase.
func (s *StateSync) SetSplitResult(shardID ShardID, roots map[ShardUID]StateRoot, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.splitResults[shardID] = &splitOutcome{roots: roots, err: err}
}

func (s *StateSync) takeApplyResult(shardID ShardID) (*applyOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.applyResults[shardID]
	if ok {
		delete(s.applyResults, shardID)
	}
	return r, ok
}

func (s *StateSync) takeSplitResult(shardID ShardID) (*splitOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.splitResults[shardID]
	if ok {
		delete(s.splitResults, shardID)
	}
	return r, ok
}

// Step drives every shard in trackingShards one tick forward and returns the
// aggregate outcome, per spec.md §4.1.
//
// Precondition: the shard layout of the block before sync_hash must equal the
// shard layout of sync_hash's own epoch. A violation is a design invariant
// break (state sync never migrates across a sharding upgrade mid-session) and
// panics rather than returning an error, matching the original's panic! on
// the same precondition.
func (s *StateSync) Step(
	ctx context.Context,
	syncHash SyncHash,
	shards map[ShardID]*ShardSyncDownload,
	chain Chain,
	epochManager EpochManager,
	peers []PeerInfo,
	trackingShards []ShardID,
	applyScheduler ApplySchedulerFunc,
	splitScheduler SplitSchedulerFunc,
) (Result, error) {
	now := s.now()

	if err := checkShardLayoutUnchanged(chain, epochManager, syncHash); err != nil {
		panic(err)
	}

	prevHash, err := chain.PrevHash(syncHash)
	if err != nil {
		return ResultInProgress, err
	}
	havePrevBlock, err := chain.BlockExists(prevHash)
	if err != nil {
		return ResultInProgress, err
	}
	requestBlock, haveBlock := s.gate.check(now, s.timeout, havePrevBlock)

	s.peers = newCandidatePool(peers)
	s.drainResults(now, syncHash, shards)

	allDone := true
	for _, shardID := range trackingShards {
		download, ok := shards[shardID]
		if !ok {
			download = newDownloadHeaderPhase(now)
			shards[shardID] = download
		}

		s.stepShard(ctx, now, syncHash, shardID, download, shards, chain, epochManager, applyScheduler, splitScheduler)

		if shards[shardID].Status != StatusDone {
			allDone = false
		}
	}

	result := ResultInProgress
	switch {
	case haveBlock && allDone:
		result = ResultCompleted
	case requestBlock:
		result = ResultRequestBlock
	}

	if s.api != nil {
		s.api.Publish(Snapshot(syncHash, result, shards))
	}
	return result, nil
}

func (s *StateSync) stepShard(
	ctx context.Context,
	now time.Time,
	syncHash SyncHash,
	shardID ShardID,
	download *ShardSyncDownload,
	shards map[ShardID]*ShardSyncDownload,
	chain Chain,
	epochManager EpochManager,
	applyScheduler ApplySchedulerFunc,
	splitScheduler SplitSchedulerFunc,
) {
	switch download.Status {
	case StatusDownloadHeader:
		s.stepDownloadHeader(ctx, now, syncHash, shardID, download, shards, chain)
	case StatusDownloadParts:
		s.stepDownloadParts(ctx, now, syncHash, shardID, download, shards, chain, epochManager)
	case StatusScheduling:
		s.stepScheduling(shardID, syncHash, download, shards, chain, applyScheduler)
	case StatusApplying:
		s.stepApplying(shardID, syncHash, download, shards, chain)
	case StatusComplete:
		s.stepComplete(shardID, syncHash, download, shards, chain, epochManager)
	case StatusSplitScheduling:
		s.stepSplitScheduling(shardID, syncHash, download, shards, chain, splitScheduler)
	case StatusSplitApplying:
		s.stepSplitApplying(shardID, syncHash, download, shards, chain)
	case StatusDone:
		// terminal
	}
}

func (s *StateSync) stepDownloadHeader(ctx context.Context, now time.Time, syncHash SyncHash, shardID ShardID, download *ShardSyncDownload, shards map[ShardID]*ShardSyncDownload, chain Chain) {
	status := download.Downloads[0]

	if status.Done {
		numParts, err := chain.NumStateParts(shardID, syncHash)
		if err != nil {
			log.Warn("state sync could not read num_parts", "shard", shardID, "err", err)
			status.Done = false
			status.Error = true
			return
		}
		shards[shardID] = newDownloadPartsPhase(now, numParts)
		return
	}

	// Re-arm only on timeout or error, and only then bump prev_update_time;
	// an already-armed status that simply hasn't been dispatched yet keeps
	// its original timestamp, matching state.rs:853-869.
	if now.Sub(status.PrevUpdateTime) >= s.timeout || status.Error {
		status.RunMe.Store(true)
		status.Error = false
		status.PrevUpdateTime = now
	}

	candidates := s.peers.forShard(shardID)
	s.dispatcher.dispatchHeader(ctx, shardID, syncHash, download, candidates)
}

func (s *StateSync) stepDownloadParts(ctx context.Context, now time.Time, syncHash SyncHash, shardID ShardID, download *ShardSyncDownload, shards map[ShardID]*ShardSyncDownload, chain Chain, epochManager EpochManager) {
	allDone := true
	for _, status := range download.Downloads {
		if status.Done {
			continue
		}
		allDone = false

		timedOut := now.Sub(status.PrevUpdateTime) >= s.timeout
		if timedOut || status.Error {
			// ExternalStorage parts with no last_target yet are deferred
			// rather than retried immediately: the object may simply not
			// exist yet (see spec.md §4.1 table, DownloadParts row). Only
			// re-arm (and bump prev_update_time) once it's an actual timeout
			// or there's a target to retry against, matching state.rs:893-916.
			if !timedOut && s.mode == ModeExternalStorage && status.LastTarget == nil {
				continue
			}
			status.RunMe.Store(true)
			status.Error = false
			status.PrevUpdateTime = now
		}
	}

	if allDone {
		shards[shardID] = withEmptyDownloads(StatusScheduling)
		return
	}

	if s.mode == ModePeers {
		s.ledger.sweep(now)
		candidates := s.filterPending(shardID)
		s.dispatcher.dispatchPartsPeers(ctx, now, shardID, syncHash, download, candidates)
		return
	}

	epochID, err := chain.EpochIDOf(syncHash)
	if err != nil {
		log.Warn("state sync could not read epoch id", "shard", shardID, "err", err)
		return
	}
	epochHeight, err := epochManager.EpochHeight(epochID)
	if err != nil {
		log.Warn("state sync could not read epoch height", "shard", shardID, "err", err)
		return
	}
	stateRoot, err := chain.StateRoot(shardID, syncHash)
	if err != nil {
		log.Warn("state sync could not read state root", "shard", shardID, "err", err)
		return
	}
	s.dispatcher.dispatchPartsExternal(ctx, shardID, syncHash, download, string(epochID), epochHeight, stateRoot)
}

// filterPending returns the shard's candidate peers with any peer that
// already has an outstanding request for this shard excluded, per
// spec.md §4.3.
func (s *StateSync) filterPending(shardID ShardID) []string {
	all := s.peers.forShard(shardID)
	filtered := make([]string, 0, len(all))
	for _, id := range all {
		if !s.ledger.hasPending(id, shardID) {
			filtered = append(filtered, id)
		}
	}
	return filtered
}

func (s *StateSync) stepScheduling(shardID ShardID, syncHash SyncHash, download *ShardSyncDownload, shards map[ShardID]*ShardSyncDownload, chain Chain, applyScheduler ApplySchedulerFunc) {
	numParts, err := chain.NumStateParts(shardID, syncHash)
	if err != nil {
		log.Warn("state sync could not read num_parts at scheduling", "shard", shardID, "err", err)
		return
	}
	if err := chain.ScheduleApplyStateParts(shardID, syncHash, numParts, applyScheduler); err != nil {
		log.Warn("state sync apply scheduling failed, restarting shard", "shard", shardID, "err", err)
		s.resetShardAfterFailure(shardID, syncHash, numParts, shards, chain)
		return
	}
	shards[shardID] = withEmptyDownloads(StatusApplying)
}

func (s *StateSync) stepApplying(shardID ShardID, syncHash SyncHash, download *ShardSyncDownload, shards map[ShardID]*ShardSyncDownload, chain Chain) {
	outcome, ok := s.takeApplyResult(shardID)
	if !ok {
		return
	}
	if outcome.err != nil {
		log.Warn("state sync apply failed, restarting shard", "shard", shardID, "err", outcome.err)
		numParts, err := chain.NumStateParts(shardID, syncHash)
		if err != nil {
			numParts = 0
		}
		s.resetShardAfterFailure(shardID, syncHash, numParts, shards, chain)
		return
	}
	if err := chain.SetStateFinalize(shardID, syncHash, nil); err != nil {
		log.Warn("state sync finalize failed", "shard", shardID, "err", err)
		return
	}
	shards[shardID] = withEmptyDownloads(StatusComplete)
}

func (s *StateSync) stepComplete(shardID ShardID, syncHash SyncHash, download *ShardSyncDownload, shards map[ShardID]*ShardSyncDownload, chain Chain, epochManager EpochManager) {
	prevHash, err := chain.PrevHash(syncHash)
	if err != nil {
		log.Warn("state sync could not read prev_hash at complete", "shard", shardID, "err", err)
		return
	}
	splitPending, err := epochManager.WillShardLayoutChange(prevHash)
	if err != nil {
		log.Warn("state sync could not check shard layout change", "shard", shardID, "err", err)
		return
	}
	if splitPending {
		shards[shardID] = withEmptyDownloads(StatusSplitScheduling)
		return
	}
	shards[shardID] = withEmptyDownloads(StatusDone)
}

func (s *StateSync) stepSplitScheduling(shardID ShardID, syncHash SyncHash, download *ShardSyncDownload, shards map[ShardID]*ShardSyncDownload, chain Chain, splitScheduler SplitSchedulerFunc) {
	if err := chain.PrepareSplitShards(shardID, syncHash, splitScheduler); err != nil {
		log.Warn("state sync split scheduling failed, retrying", "shard", shardID, "err", err)
		return
	}
	shards[shardID] = withEmptyDownloads(StatusSplitApplying)
}

func (s *StateSync) stepSplitApplying(shardID ShardID, syncHash SyncHash, download *ShardSyncDownload, shards map[ShardID]*ShardSyncDownload, chain Chain) {
	outcome, ok := s.takeSplitResult(shardID)
	if !ok {
		return
	}
	if outcome.err != nil {
		log.Warn("state sync split apply failed, retrying", "shard", shardID, "err", outcome.err)
		shards[shardID] = withEmptyDownloads(StatusSplitScheduling)
		return
	}
	for uid := range outcome.roots {
		if err := chain.FinalizeSplitShards(uid, syncHash, outcome.roots); err != nil {
			log.Warn("state sync split finalize failed", "shard", shardID, "sub_shard", uid.ShardID, "err", err)
		}
	}
	shards[shardID] = withEmptyDownloads(StatusDone)
}

// resetShardAfterFailure restarts a shard at DownloadHeader and wipes any
// parts already persisted for it, per spec.md §4.1's Scheduling/Applying
// error rows.
func (s *StateSync) resetShardAfterFailure(shardID ShardID, syncHash SyncHash, numParts uint64, shards map[ShardID]*ShardSyncDownload, chain Chain) {
	if err := chain.ClearDownloadedParts(shardID, syncHash, numParts); err != nil {
		log.Error("state sync could not clear downloaded parts", "shard", shardID, "err", err)
	}
	shards[shardID] = newDownloadHeaderPhase(s.now())
}

// checkShardLayoutUnchanged enforces the fatal precondition from spec.md
// §4.1: the shard layout in effect the block before sync_hash must equal the
// shard layout of sync_hash's own epoch.
func checkShardLayoutUnchanged(chain Chain, epochManager EpochManager, syncHash SyncHash) error {
	syncEpochID, err := chain.EpochIDOf(syncHash)
	if err != nil {
		return err
	}
	prevHash, err := chain.PrevHash(syncHash)
	if err != nil {
		return err
	}
	prevEpochID, err := chain.EpochIDOf(prevHash)
	if err != nil {
		return err
	}
	syncLayout, err := epochManager.ShardLayout(syncEpochID)
	if err != nil {
		return err
	}
	prevLayout, err := epochManager.ShardLayout(prevEpochID)
	if err != nil {
		return err
	}
	if syncLayout != prevLayout {
		return ErrShardLayoutChanged
	}
	return nil
}
