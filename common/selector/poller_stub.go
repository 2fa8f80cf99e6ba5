//go:build !linux && !darwin

package selector

import E "github.com/sagernet/sing-cio/common/exceptions"

func newPoller() (poller, error) {
	return nil, E.New("selector not supported on this platform")
}
