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

// Target candidate tracking, adapted from the teacher's downloader peer set
// (github.com/r5-labs/r5-core/client/eth/downloader/peer.go): instead of
// tracking per-peer throughput for block retrieval, this tracks which peers
// are worth asking for a given shard's state.
package statesync

import (
	"sync"
)

// PeerInfo describes one candidate source as seen by the caller: a
// highest-height peer, or an epoch validator known to have tracked the shard.
type PeerInfo struct {
	ID             string
	TrackingShards map[ShardID]struct{}
}

// Tracks reports whether this peer is known to track shardID.
func (p PeerInfo) Tracks(shardID ShardID) bool {
	_, ok := p.TrackingShards[shardID]
	return ok
}

// candidatePool holds the current set of candidates the dispatcher is allowed
// to pick from for one Step call. It is rebuilt fresh every tick from the
// caller-supplied peer list plus epoch validators; nothing here persists
// across ticks except via pendingLedger.
type candidatePool struct {
	mu    sync.RWMutex
	peers []PeerInfo
}

func newCandidatePool(peers []PeerInfo) *candidatePool {
	cp := make([]PeerInfo, len(peers))
	copy(cp, peers)
	return &candidatePool{peers: cp}
}

// forShard returns the IDs of every candidate tracking shardID.
func (c *candidatePool) forShard(shardID ShardID) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.peers))
	for _, p := range c.peers {
		if p.Tracks(shardID) {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
