//go:build linux
// +build linux

// File: monitor/epoll_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-backed Monitor.

package monitor

import "golang.org/x/sys/unix"

const maxEpollEvents = 256

type epollMonitor struct {
	epfd int
	raw  []unix.EpollEvent
}

// New constructs the platform Monitor for Linux.
func New() (Monitor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollMonitor{epfd: epfd, raw: make([]unix.EpollEvent, maxEpollEvents)}, nil
}

func (m *epollMonitor) StartReadMonitor(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	return unix.EpollCtl(m.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (m *epollMonitor) ArmWrite(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLOUT, Fd: int32(fd)}
	return unix.EpollCtl(m.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (m *epollMonitor) DisarmWrite(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	return unix.EpollCtl(m.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (m *epollMonitor) StopMonitor(fd int) error {
	err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (m *epollMonitor) Wait(eventsOut []Event, timeoutMs int) (int, error) {
	if cap(m.raw) < len(eventsOut) {
		m.raw = make([]unix.EpollEvent, len(eventsOut))
	}
	n, err := unix.EpollWait(m.epfd, m.raw[:len(eventsOut)], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, ErrInterrupted
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		e := m.raw[i]
		eventsOut[i] = Event{
			Fd:         int(e.Fd),
			Readable:   e.Events&unix.EPOLLIN != 0,
			Writable:   e.Events&unix.EPOLLOUT != 0,
			PeerClosed: e.Events&unix.EPOLLRDHUP != 0,
			Error:      e.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		}
	}
	return n, nil
}

func (m *epollMonitor) Close() error {
	return unix.Close(m.epfd)
}
