//go:build darwin

package selector

import (
	"syscall"

	E "github.com/sagernet/sing-cio/common/exceptions"

	"golang.org/x/sys/unix"
)

type kqueuePoller struct {
	kqueueFD int
	pipeFDs  [2]int
	events   []unix.Kevent_t
}

func newPoller() (poller, error) {
	kqueueFD, err := unix.Kqueue()
	if err != nil {
		return nil, E.Cause(err, "kqueue")
	}
	unix.CloseOnExec(kqueueFD)
	var pipeFDs [2]int
	err = unix.Pipe(pipeFDs[:])
	if err != nil {
		unix.Close(kqueueFD)
		return nil, E.Cause(err, "create wakeup pipe")
	}
	for _, fd := range pipeFDs {
		unix.CloseOnExec(fd)
		err = unix.SetNonblock(fd, true)
		if err != nil {
			unix.Close(pipeFDs[0])
			unix.Close(pipeFDs[1])
			unix.Close(kqueueFD)
			return nil, E.Cause(err, "set wakeup pipe non-blocking")
		}
	}
	_, err = unix.Kevent(kqueueFD, []unix.Kevent_t{{
		Ident:  uint64(pipeFDs[0]),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD,
	}}, nil, nil)
	if err != nil {
		unix.Close(pipeFDs[0])
		unix.Close(pipeFDs[1])
		unix.Close(kqueueFD)
		return nil, E.Cause(err, "register wakeup pipe")
	}
	return &kqueuePoller{
		kqueueFD: kqueueFD,
		pipeFDs:  pipeFDs,
	}, nil
}

func kqueueFilter(fd int, filter int16, previous bool, next bool) (unix.Kevent_t, bool) {
	event := unix.Kevent_t{Ident: uint64(fd), Filter: filter}
	switch {
	case next && !previous:
		event.Flags = unix.EV_ADD
	case !next && previous:
		event.Flags = unix.EV_DELETE
	default:
		return event, false
	}
	return event, true
}

func (p *kqueuePoller) Update(fd int, previous Interest, next Interest) error {
	var changes []unix.Kevent_t
	readMask := InterestRead | InterestAccept
	writeMask := InterestWrite | InterestConnect
	if event, changed := kqueueFilter(fd, unix.EVFILT_READ, previous&readMask != 0, next&readMask != 0); changed {
		changes = append(changes, event)
	}
	if event, changed := kqueueFilter(fd, unix.EVFILT_WRITE, previous&writeMask != 0, next&writeMask != 0); changed {
		changes = append(changes, event)
	}
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kqueueFD, changes, nil, nil)
	if next == 0 && (err == unix.ENOENT || err == unix.EBADF) {
		return nil
	}
	return err
}

func (p *kqueuePoller) Wait(events []readyEvent) (int, error) {
	if cap(p.events) < len(events) {
		p.events = make([]unix.Kevent_t, len(events))
	}
	osEvents := p.events[:len(events)]
	for {
		n, err := unix.Kevent(p.kqueueFD, nil, osEvents, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, E.Cause(err, "kevent")
		}
		var count int
		for _, event := range osEvents[:n] {
			fd := int(event.Ident)
			if fd == p.pipeFDs[0] {
				p.drainWakeup()
				continue
			}
			if event.Flags&unix.EV_ERROR != 0 {
				events[count] = readyEvent{fd: fd, failed: syscall.Errno(event.Data)}
				count++
				continue
			}
			var ready Interest
			switch event.Filter {
			case unix.EVFILT_READ:
				ready = InterestRead | InterestAccept
			case unix.EVFILT_WRITE:
				ready = InterestWrite | InterestConnect
			}
			events[count] = readyEvent{fd: fd, ready: ready}
			count++
		}
		return count, nil
	}
}

func (p *kqueuePoller) drainWakeup() {
	var buffer [64]byte
	for {
		n, err := unix.Read(p.pipeFDs[0], buffer[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (p *kqueuePoller) Wakeup() {
	_, _ = unix.Write(p.pipeFDs[1], []byte{0})
}

func (p *kqueuePoller) Close() error {
	return E.Errors(
		unix.Close(p.kqueueFD),
		unix.Close(p.pipeFDs[0]),
		unix.Close(p.pipeFDs[1]),
	)
}
