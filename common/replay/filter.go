package replay

import (
	"time"

	E "github.com/sagernet/sing-cio/common/exceptions"
)

// Filter remembers salts seen recently.
type Filter interface {
	// Check records sum and reports whether it was new.
	Check(sum []byte) bool
}

const (
	KindNone      = "none"
	KindCuckoo    = "cuckoo"
	KindBloomRing = "bloomring"
)

// New returns the filter named by kind. A cuckoo filter forgets salts
// after two intervals.
func New(kind string, interval time.Duration) (Filter, error) {
	switch kind {
	case KindCuckoo, "":
		if interval <= 0 {
			interval = time.Minute
		}
		return NewCuckoo(interval), nil
	case KindBloomRing:
		return NewBloomRing(), nil
	case KindNone:
		return nil, nil
	default:
		return nil, E.New("unknown replay filter: ", kind)
	}
}
