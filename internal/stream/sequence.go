package stream

import (
	"sync"
	"sync/atomic"
)

var seqMap sync.Map // map[string]*uint64

// nextSeq hands out a monotonic per-topic sequence number so clients can
// detect gaps after an eviction or reconnect.
func nextSeq(topic string) uint64 {
	v, _ := seqMap.LoadOrStore(topic, new(uint64))
	ptr := v.(*uint64)
	return atomic.AddUint64(ptr, 1)
}
