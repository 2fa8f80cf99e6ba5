//go:build linux

package selector

import (
	"errors"

	E "github.com/sagernet/sing-cio/common/exceptions"

	"golang.org/x/sys/unix"
)

type epollPoller struct {
	epollFD int
	pipeFDs [2]int
	events  []unix.EpollEvent
}

func newPoller() (poller, error) {
	epollFD, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, E.Cause(err, "epoll_create1")
	}
	var pipeFDs [2]int
	err = unix.Pipe2(pipeFDs[:], unix.O_NONBLOCK|unix.O_CLOEXEC)
	if err != nil {
		unix.Close(epollFD)
		return nil, E.Cause(err, "create wakeup pipe")
	}
	err = unix.EpollCtl(epollFD, unix.EPOLL_CTL_ADD, pipeFDs[0], &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(pipeFDs[0]),
	})
	if err != nil {
		unix.Close(pipeFDs[0])
		unix.Close(pipeFDs[1])
		unix.Close(epollFD)
		return nil, E.Cause(err, "register wakeup pipe")
	}
	return &epollPoller{
		epollFD: epollFD,
		pipeFDs: pipeFDs,
	}, nil
}

func epollEvents(interest Interest) uint32 {
	var events uint32
	if interest&(InterestRead|InterestAccept) != 0 {
		events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if interest&(InterestWrite|InterestConnect) != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

func (p *epollPoller) Update(fd int, previous Interest, next Interest) error {
	if next == 0 {
		err := unix.EpollCtl(p.epollFD, unix.EPOLL_CTL_DEL, fd, nil)
		if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.EBADF) {
			return nil
		}
		return err
	}
	event := &unix.EpollEvent{Events: epollEvents(next), Fd: int32(fd)}
	if previous == 0 {
		err := unix.EpollCtl(p.epollFD, unix.EPOLL_CTL_ADD, fd, event)
		if !errors.Is(err, unix.EEXIST) {
			return err
		}
	}
	err := unix.EpollCtl(p.epollFD, unix.EPOLL_CTL_MOD, fd, event)
	if errors.Is(err, unix.ENOENT) {
		return unix.EpollCtl(p.epollFD, unix.EPOLL_CTL_ADD, fd, event)
	}
	return err
}

func (p *epollPoller) Wait(events []readyEvent) (int, error) {
	if cap(p.events) < len(events) {
		p.events = make([]unix.EpollEvent, len(events))
	}
	osEvents := p.events[:len(events)]
	for {
		n, err := unix.EpollWait(p.epollFD, osEvents, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, E.Cause(err, "epoll_wait")
		}
		var count int
		for _, event := range osEvents[:n] {
			fd := int(event.Fd)
			if fd == p.pipeFDs[0] {
				p.drainWakeup()
				continue
			}
			var ready Interest
			if event.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0 {
				ready |= InterestRead | InterestAccept
			}
			if event.Events&unix.EPOLLOUT != 0 {
				ready |= InterestWrite | InterestConnect
			}
			// errors wake every interest; the next syscall on fd reports the failure
			if event.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				ready |= interestAll
			}
			events[count] = readyEvent{fd: fd, ready: ready}
			count++
		}
		return count, nil
	}
}

func (p *epollPoller) drainWakeup() {
	var buffer [64]byte
	for {
		n, err := unix.Read(p.pipeFDs[0], buffer[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (p *epollPoller) Wakeup() {
	_, _ = unix.Write(p.pipeFDs[1], []byte{0})
}

func (p *epollPoller) Close() error {
	return E.Errors(
		unix.Close(p.epollFD),
		unix.Close(p.pipeFDs[0]),
		unix.Close(p.pipeFDs[1]),
	)
}
