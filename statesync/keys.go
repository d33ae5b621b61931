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
	"encoding/binary"
)

// StatePartKey is the byte-serialized tuple (SyncHash, ShardID, PartIndex)
// used as the key into the StateParts column.
type StatePartKey struct {
	SyncHash  SyncHash
	ShardID   ShardID
	PartIndex uint64
}

// Encode serializes the key as hash(32) || shardID(8, big-endian) ||
// partIndex(8, big-endian).
func (k StatePartKey) Encode() []byte {
	buf := make([]byte, 32+8+8)
	copy(buf[:32], k.SyncHash[:])
	binary.BigEndian.PutUint64(buf[32:40], uint64(k.ShardID))
	binary.BigEndian.PutUint64(buf[40:48], k.PartIndex)
	return buf
}

// DecodeStatePartKey is the inverse of Encode.
func DecodeStatePartKey(data []byte) (StatePartKey, bool) {
	if len(data) != 48 {
		return StatePartKey{}, false
	}
	var k StatePartKey
	copy(k.SyncHash[:], data[:32])
	k.ShardID = ShardID(binary.BigEndian.Uint64(data[32:40]))
	k.PartIndex = binary.BigEndian.Uint64(data[40:48])
	return k, true
}
