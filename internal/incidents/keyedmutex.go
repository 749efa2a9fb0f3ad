package incidents

import (
	"hash/fnv"
	"sync"
)

// keyedMutex serializes work per key using a fixed number of shards. Keys
// that hash to the same shard share a lock.
type keyedMutex struct {
	shards []sync.Mutex
}

func newKeyedMutex(shards int) *keyedMutex {
	if shards <= 0 {
		shards = 1
	}
	return &keyedMutex{shards: make([]sync.Mutex, shards)}
}

func (m *keyedMutex) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &m.shards[h.Sum32()%uint32(len(m.shards))]
}

// Lock locks key and returns the matching unlock function.
func (m *keyedMutex) Lock(key string) func() {
	mu := m.shard(key)
	mu.Lock()
	return mu.Unlock
}
