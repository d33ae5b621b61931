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

// Adapted from the teacher's DownloaderAPI (client/eth/downloader/api.go):
// that type wraps an event.TypeMux and exposes subscriptions through an
// RPC notifier so a wire client can watch sync progress. This module has no
// RPC surface of its own (out of scope per spec.md §1), so the same
// broadcast need is served with a bare event.Feed instead of the mux/
// notifier/RPC-subscription chain.
package statesync

import "github.com/ethereum/go-ethereum/event"

// Status is one snapshot of sync progress, published after every Step call.
type Status struct {
	SyncHash SyncHash
	Result   Result
	Shards   map[ShardID]ShardStatus
}

// API publishes Status updates to any number of subscribers.
type API struct {
	feed event.Feed
}

// NewAPI returns a ready-to-use status feed.
func NewAPI() *API {
	return &API{}
}

// Publish broadcasts status to all current subscribers. Like event.Feed.Send,
// it blocks until every subscriber has received the value.
func (a *API) Publish(status Status) {
	a.feed.Send(status)
}

// SubscribeStatus registers ch to receive every future Status until the
// returned subscription is unsubscribed or the API is garbage collected.
func (a *API) SubscribeStatus(ch chan<- Status) event.Subscription {
	return a.feed.Subscribe(ch)
}

// Snapshot builds a Status from the current per-shard map; callers take it
// after a Step call to publish or inspect the aggregate state.
func Snapshot(syncHash SyncHash, result Result, shards map[ShardID]*ShardSyncDownload) Status {
	out := make(map[ShardID]ShardStatus, len(shards))
	for id, d := range shards {
		out[id] = d.Status
	}
	return Status{SyncHash: syncHash, Result: result, Shards: out}
}
