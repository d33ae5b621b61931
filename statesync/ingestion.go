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
	"time"

	"github.com/dndll/nearcore/internal/log"
)

// drainResults empties the external-storage result channel non-blockingly,
// applying each result to the owning shard's download record. Called once
// per Step before the phase loop, per spec.md §4.5.
func (s *StateSync) drainResults(now time.Time, syncHash SyncHash, shards map[ShardID]*ShardSyncDownload) {
	for {
		select {
		case result, ok := <-s.resultCh:
			if !ok {
				return
			}
			s.ingestPartResult(now, syncHash, shards, result)
		default:
			return
		}
	}
}

// ingestPartResult applies one background fetch outcome, discarding it if it
// no longer matches the session in progress.
func (s *StateSync) ingestPartResult(now time.Time, syncHash SyncHash, shards map[ShardID]*ShardSyncDownload, result PartResult) {
	if result.SyncHash != syncHash {
		return
	}
	download, ok := shards[result.ShardID]
	if !ok || download.Status != StatusDownloadParts {
		return
	}
	if result.PartID >= uint64(len(download.Downloads)) {
		return
	}
	status := download.Downloads[result.PartID]
	status.PrevUpdateTime = now

	if result.Err != nil {
		status.Error = true
		log.Debug("state sync external part fetch failed", "shard", result.ShardID, "part", result.PartID, "err", result.Err)
		return
	}
	status.Done = true
	status.Error = false
	log.Trace("state sync external part downloaded", "shard", result.ShardID, "part", result.PartID, "bytes", result.ByteLength)
}

// UpdateDownloadOnStateHeaderResponse is the direct-peer entry point for a
// header response: it persists the header and updates the single
// DownloadStatus slot at index 0 accordingly.
func UpdateDownloadOnStateHeaderResponse(chain Chain, download *ShardSyncDownload, shardID ShardID, syncHash SyncHash, header []byte) error {
	if len(download.Downloads) == 0 {
		return nil
	}
	status := download.Downloads[0]
	if err := chain.SetStateHeader(shardID, syncHash, header); err != nil {
		status.Error = true
		log.Warn("state sync header persist failed", "shard", shardID, "err", err)
		return err
	}
	status.Done = true
	status.Error = false
	return nil
}

// UpdateDownloadOnStatePartResponse is the direct-peer entry point for a part
// response (mirrors the original's update_download_on_state_response_message,
// state.rs:763): it rejects an out-of-range part id, persists the part,
// updates the corresponding DownloadStatus slot, and reports the arrival to
// this session's pending ledger so Peers-mode accounting stays correct. In
// Peers mode this is the only path that ever marks a part Done: the
// resultCh/drainResults path only ever receives ExternalStorage fetch
// outcomes.
func (s *StateSync) UpdateDownloadOnStatePartResponse(chain Chain, download *ShardSyncDownload, shardID ShardID, syncHash SyncHash, partID, numParts uint64, data []byte) error {
	if partID >= numParts || partID >= uint64(len(download.Downloads)) {
		return ErrPartOutOfRange
	}
	status := download.Downloads[partID]
	if err := chain.SetStatePart(shardID, syncHash, partID, numParts, data); err != nil {
		status.Error = true
		log.Warn("state sync part persist failed", "shard", shardID, "part", partID, "err", err)
		return err
	}
	status.Done = true
	status.Error = false
	s.ledger.receivedPart(partID, shardID, syncHash)
	return nil
}
