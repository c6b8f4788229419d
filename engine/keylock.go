package engine

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

const lockShards = 64

// keyLocks serializes read-modify-write sequences per order id without a
// single global lock. Ids are spread over a fixed set of shards; two ids on
// the same shard serialize against each other, ids on different shards never
// contend.
type keyLocks struct {
	shards [lockShards]sync.Mutex
}

// lock acquires the shard for id and returns the matching unlock.
func (k *keyLocks) lock(id common.Hash) func() {
	shard := &k.shards[int(id[0])&(lockShards-1)]
	shard.Lock()
	return shard.Unlock
}
