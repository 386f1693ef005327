package state

import (
	"hash/fnv"
	"sync"
)

// stripedLocks is a fixed-size ring of mutexes, one per document-id hash
// bucket, so concurrent commits to different documents don't serialize
// behind a single store-wide lock while still guaranteeing at most one
// in-flight transaction per document.
type stripedLocks struct {
	mus [256]sync.Mutex
}

func (s *stripedLocks) lockFor(documentID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(documentID))
	return &s.mus[h.Sum32()%uint32(len(s.mus))]
}
