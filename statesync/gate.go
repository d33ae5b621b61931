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

import "time"

// blockGate tracks whether the "sync block" (prev_hash of the sync_hash
// block) is locally present, and whether/when it was last requested.
type blockGate struct {
	lastRequested *time.Time
}

// check updates the gate against the current presence of prevHash and
// returns (requestBlock, haveBlock).
func (g *blockGate) check(now time.Time, timeout time.Duration, havePrevBlock bool) (requestBlock, haveBlock bool) {
	if havePrevBlock {
		g.lastRequested = nil
		return false, true
	}
	if g.lastRequested == nil {
		requestBlock = true
	} else if now.Sub(*g.lastRequested) >= timeout {
		requestBlock = true
	}
	if requestBlock {
		t := now
		g.lastRequested = &t
	}
	return requestBlock, false
}
