package replay

import (
	"sync"
	"time"

	"github.com/seiflotfy/cuckoofilter"
)

const cuckooCapacity = 100000

// NewCuckoo returns a filter made of two cuckoo filters, one of which is
// reset every interval.
func NewCuckoo(interval time.Duration) Filter {
	return &cuckooFilter{
		interval: interval,
		now:      time.Now,
	}
}

type cuckooFilter struct {
	access    sync.Mutex
	current   *cuckoo.Filter
	previous  *cuckoo.Filter
	rotatedAt time.Time
	interval  time.Duration
	now       func() time.Time
}

func (f *cuckooFilter) Check(sum []byte) bool {
	f.access.Lock()
	defer f.access.Unlock()
	now := f.now()
	if f.current == nil {
		f.current = cuckoo.NewFilter(cuckooCapacity)
		f.previous = cuckoo.NewFilter(cuckooCapacity)
		f.rotatedAt = now
	} else if now.Sub(f.rotatedAt) >= f.interval {
		f.previous.Reset()
		f.current, f.previous = f.previous, f.current
		f.rotatedAt = now
	}
	if f.previous.Lookup(sum) {
		return false
	}
	return f.current.InsertUnique(sum)
}
