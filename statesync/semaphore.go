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
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// boundedSemaphore wraps golang.org/x/sync/semaphore.Weighted with a closed
// flag, so dispatch can distinguish "no permits right now" from "this
// session's external-storage fetcher has been torn down" the way the
// original's tokio::sync::Semaphore does (TryAcquireError::NoPermits vs.
// ::Closed).
type boundedSemaphore struct {
	sem    *semaphore.Weighted
	closed atomic.Bool
}

func newBoundedSemaphore(permits int64) *boundedSemaphore {
	return &boundedSemaphore{sem: semaphore.NewWeighted(permits)}
}

// tryAcquire attempts a non-blocking single-permit acquisition. ok is true
// only on success; err distinguishes ErrNoPermits from ErrSemaphoreClosed
// otherwise.
func (b *boundedSemaphore) tryAcquire() (ok bool, err error) {
	if b.closed.Load() {
		return false, ErrSemaphoreClosed
	}
	if b.sem.TryAcquire(1) {
		return true, nil
	}
	return false, ErrNoPermits
}

func (b *boundedSemaphore) release() {
	b.sem.Release(1)
}

// close marks the semaphore closed; in-flight permits are unaffected, but no
// further tryAcquire call succeeds.
func (b *boundedSemaphore) close() {
	b.closed.Store(true)
}
