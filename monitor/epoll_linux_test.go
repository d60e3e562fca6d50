//go:build linux
// +build linux

package monitor

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestEpollMonitorReadReadiness(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	m, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if err := m.StartReadMonitor(fds[0]); err != nil {
		t.Fatal(err)
	}

	events := make([]Event, 4)
	n, err := m.Wait(events, 50)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected no readiness before any write, got %d", n)
	}

	if _, err := unix.Write(fds[1], []byte("ping")); err != nil {
		t.Fatal(err)
	}

	n, err = m.Wait(events, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || events[0].Fd != fds[0] || !events[0].Readable {
		t.Fatalf("unexpected events: n=%d events=%+v", n, events[:n])
	}
}

func TestEpollMonitorStopMonitorIsIdempotent(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	m, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if err := m.StopMonitor(fds[0]); err != nil {
		t.Fatalf("StopMonitor on unregistered fd should be safe: %v", err)
	}
	if err := m.StartReadMonitor(fds[0]); err != nil {
		t.Fatal(err)
	}
	if err := m.StopMonitor(fds[0]); err != nil {
		t.Fatal(err)
	}
}
