package replay

import (
	"sync"

	"github.com/v2fly/ss-bloomring"
)

const (
	bloomRingCapacity = 1e6
	bloomRingFPR      = 1e-6
	bloomRingSlots    = 10
)

// NewBloomRing returns a filter over a ring of bloom filters. Old salts
// fall out as slots are recycled, and lookups may report false positives.
func NewBloomRing() Filter {
	return &bloomRingFilter{
		ring: ss_bloomring.NewBloomRing(bloomRingSlots, bloomRingCapacity, bloomRingFPR),
	}
}

type bloomRingFilter struct {
	access sync.Mutex
	ring   *ss_bloomring.BloomRing
}

func (f *bloomRingFilter) Check(sum []byte) bool {
	f.access.Lock()
	defer f.access.Unlock()
	if f.ring.Test(sum) {
		return false
	}
	f.ring.Add(sum)
	return true
}
