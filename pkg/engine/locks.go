package engine

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// numSignerShards spreads signer locks across a fixed set of mutexes.
// Operations for one signer always hit the same shard, so a used-check and
// the commit that follows it cannot interleave with another operation on the
// same signer.
const numSignerShards = 128

// signerLocks provides fine-grained locking keyed by signer address.
// Distinct signers may share a shard; that costs contention, never
// correctness.
type signerLocks struct {
	shards [numSignerShards]sync.Mutex
}

// lock acquires the shard for one signer and returns its unlock function.
func (l *signerLocks) lock(signer common.Address) func() {
	shard := &l.shards[shardIndex(signer)]
	shard.Lock()
	return shard.Unlock
}

// shardIndex hashes a signer address with FNV-1a for even distribution.
func shardIndex(signer common.Address) int {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(signer); i++ {
		h ^= uint32(signer[i])
		h *= fnvPrime
	}
	return int(h % numSignerShards)
}
