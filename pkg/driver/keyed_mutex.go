package driver

import (
	"hash/fnv"
	"sync"
)

// keyedMutex serializes operations that share an entity key. Upserts to the
// same node race between read-merge and write otherwise; different entities
// hash to different shards and proceed in parallel.
type keyedMutex struct {
	shards []sync.Mutex
}

func newKeyedMutex(shards int) *keyedMutex {
	if shards <= 0 {
		shards = 64
	}
	return &keyedMutex{shards: make([]sync.Mutex, shards)}
}

// Lock acquires the shard owning key and returns its unlock function.
func (m *keyedMutex) Lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	shard := &m.shards[h.Sum32()%uint32(len(m.shards))]
	shard.Lock()
	return shard.Unlock
}
