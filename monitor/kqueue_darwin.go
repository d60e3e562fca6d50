//go:build darwin
// +build darwin

// File: monitor/kqueue_darwin.go
// Author: momentics <momentics@gmail.com>
//
// Darwin kqueue(2)-backed Monitor.

package monitor

import (
	"time"

	"golang.org/x/sys/unix"
)

const maxKevents = 256

type kqueueMonitor struct {
	kq  int
	raw []unix.Kevent_t
}

// New constructs the platform Monitor for Darwin.
func New() (Monitor, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueueMonitor{kq: kq, raw: make([]unix.Kevent_t, maxKevents)}, nil
}

func (m *kqueueMonitor) StartReadMonitor(fd int) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE},
	}
	_, err := unix.Kevent(m.kq, changes, nil, nil)
	return err
}

func (m *kqueueMonitor) ArmWrite(fd int) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE},
	}
	_, err := unix.Kevent(m.kq, changes, nil, nil)
	return err
}

func (m *kqueueMonitor) DisarmWrite(fd int) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	_, err := unix.Kevent(m.kq, changes, nil, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (m *kqueueMonitor) StopMonitor(fd int) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	// Best-effort: either filter may not have been registered.
	unix.Kevent(m.kq, changes, nil, nil)
	return nil
}

func (m *kqueueMonitor) Wait(eventsOut []Event, timeoutMs int) (int, error) {
	if cap(m.raw) < len(eventsOut) {
		m.raw = make([]unix.Kevent_t, len(eventsOut))
	}
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		d := time.Duration(timeoutMs) * time.Millisecond
		t := unix.NsecToTimespec(d.Nanoseconds())
		ts = &t
	}
	n, err := unix.Kevent(m.kq, nil, m.raw[:len(eventsOut)], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, ErrInterrupted
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		e := m.raw[i]
		ev := Event{Fd: int(e.Ident)}
		switch e.Filter {
		case unix.EVFILT_READ:
			ev.Readable = true
		case unix.EVFILT_WRITE:
			ev.Writable = true
		}
		if e.Flags&unix.EV_EOF != 0 {
			ev.PeerClosed = true
		}
		if e.Flags&unix.EV_ERROR != 0 {
			ev.Error = true
		}
		eventsOut[i] = ev
	}
	return n, nil
}

func (m *kqueueMonitor) Close() error {
	return unix.Close(m.kq)
}
