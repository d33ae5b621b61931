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
)

type headerRequest struct {
	shardID  ShardID
	syncHash SyncHash
	peerID   string
}

type partRequest struct {
	shardID  ShardID
	syncHash SyncHash
	partID   uint64
	peerID   string
}

// fakePeerMessenger records every outbound request it sees and signals
// recorded on a buffered channel so tests can wait for dispatcher goroutines
// to finish without sleeping.
type fakePeerMessenger struct {
	mu         sync.Mutex
	headerReqs []headerRequest
	partReqs   []partRequest
	headerErr  error
	partErr    error
	recorded   chan struct{}
}

func newFakePeerMessenger(buffer int) *fakePeerMessenger {
	return &fakePeerMessenger{recorded: make(chan struct{}, buffer)}
}

func (f *fakePeerMessenger) RequestStateHeader(_ context.Context, shardID ShardID, syncHash SyncHash, peerID string) error {
	f.mu.Lock()
	f.headerReqs = append(f.headerReqs, headerRequest{shardID, syncHash, peerID})
	f.mu.Unlock()
	f.recorded <- struct{}{}
	return f.headerErr
}

func (f *fakePeerMessenger) RequestStatePart(_ context.Context, shardID ShardID, syncHash SyncHash, partID uint64, peerID string) error {
	f.mu.Lock()
	f.partReqs = append(f.partReqs, partRequest{shardID, syncHash, partID, peerID})
	f.mu.Unlock()
	f.recorded <- struct{}{}
	return f.partErr
}

func (f *fakePeerMessenger) headerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.headerReqs)
}

func (f *fakePeerMessenger) partCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.partReqs)
}

// fakeChain is a minimal, map-backed Chain fake.
type fakeChain struct {
	mu sync.Mutex

	blocks map[SyncHash]bool
	prev   map[SyncHash]SyncHash
	epoch  map[SyncHash]ShardLayoutID

	numParts  map[ShardID]uint64
	stateRoot map[ShardID]StateRoot

	headers map[ShardID][]byte
	parts   map[ShardID]map[uint64][]byte
	cleared map[ShardID]int

	scheduleApplyErr error
	finalizeErr      error
	prepareSplitErr  error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		blocks:    make(map[SyncHash]bool),
		prev:      make(map[SyncHash]SyncHash),
		epoch:     make(map[SyncHash]ShardLayoutID),
		numParts:  make(map[ShardID]uint64),
		stateRoot: make(map[ShardID]StateRoot),
		headers:   make(map[ShardID][]byte),
		parts:     make(map[ShardID]map[uint64][]byte),
		cleared:   make(map[ShardID]int),
	}
}

func (c *fakeChain) BlockExists(hash SyncHash) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks[hash], nil
}

func (c *fakeChain) PrevHash(hash SyncHash) (SyncHash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prev[hash], nil
}

func (c *fakeChain) EpochIDOf(hash SyncHash) (ShardLayoutID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch[hash], nil
}

func (c *fakeChain) NumStateParts(shardID ShardID, _ SyncHash) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.numParts[shardID], nil
}

func (c *fakeChain) StateRoot(shardID ShardID, _ SyncHash) (StateRoot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateRoot[shardID], nil
}

func (c *fakeChain) SetStateHeader(shardID ShardID, _ SyncHash, header []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[shardID] = header
	return nil
}

func (c *fakeChain) SetStatePart(shardID ShardID, _ SyncHash, partIndex, _ uint64, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.parts[shardID] == nil {
		c.parts[shardID] = make(map[uint64][]byte)
	}
	c.parts[shardID][partIndex] = data
	return nil
}

func (c *fakeChain) ClearDownloadedParts(shardID ShardID, _ SyncHash, _ uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared[shardID]++
	delete(c.parts, shardID)
	return nil
}

func (c *fakeChain) ScheduleApplyStateParts(shardID ShardID, syncHash SyncHash, numParts uint64, scheduler ApplySchedulerFunc) error {
	if c.scheduleApplyErr != nil {
		return c.scheduleApplyErr
	}
	if scheduler != nil {
		scheduler(shardID, syncHash, numParts)
	}
	return nil
}

func (c *fakeChain) SetStateFinalize(_ ShardID, _ SyncHash, _ error) error {
	return c.finalizeErr
}

func (c *fakeChain) PrepareSplitShards(shardID ShardID, syncHash SyncHash, scheduler SplitSchedulerFunc) error {
	if c.prepareSplitErr != nil {
		return c.prepareSplitErr
	}
	if scheduler != nil {
		scheduler(ShardUID{ShardID: shardID}, syncHash)
	}
	return nil
}

func (c *fakeChain) FinalizeSplitShards(_ ShardUID, _ SyncHash, _ map[ShardUID]StateRoot) error {
	return nil
}

// fakeEpochManager is a minimal EpochManager fake.
type fakeEpochManager struct {
	layouts      map[ShardLayoutID]ShardLayoutID
	layoutChange map[SyncHash]bool
	heights      map[ShardLayoutID]uint64
}

func newFakeEpochManager() *fakeEpochManager {
	return &fakeEpochManager{
		layouts:      make(map[ShardLayoutID]ShardLayoutID),
		layoutChange: make(map[SyncHash]bool),
		heights:      make(map[ShardLayoutID]uint64),
	}
}

func (e *fakeEpochManager) ShardLayout(epochID ShardLayoutID) (ShardLayoutID, error) {
	if l, ok := e.layouts[epochID]; ok {
		return l, nil
	}
	return epochID, nil
}

func (e *fakeEpochManager) WillShardLayoutChange(prevHash SyncHash) (bool, error) {
	return e.layoutChange[prevHash], nil
}

func (e *fakeEpochManager) EpochHeight(epochID ShardLayoutID) (uint64, error) {
	return e.heights[epochID], nil
}

// fakeRuntime validates every part as valid says; the zero value rejects
// every part.
type fakeRuntime struct {
	valid bool
}

func (r *fakeRuntime) ValidateStatePart(_ StateRoot, _, _ uint64, _ []byte) bool {
	return r.valid
}

// fakeObjectStore serves fixed bytes for every key, or an error.
type fakeObjectStore struct {
	mu   sync.Mutex
	data []byte
	err  error
	gets int
}

func (s *fakeObjectStore) Name() string { return "fake" }

func (s *fakeObjectStore) Get(_ context.Context, _ string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.err != nil {
		return nil, s.err
	}
	return s.data, nil
}

// fakePartStore is an in-memory PartStore.
type fakePartStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakePartStore() *fakePartStore {
	return &fakePartStore{data: make(map[string][]byte)}
}

func (p *fakePartStore) Put(key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (p *fakePartStore) get(key []byte) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.data[string(key)]
	return v, ok
}
