package reactor_test

import (
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hioload/netrt/api"
	"github.com/hioload/netrt/frame"
	"github.com/hioload/netrt/reactor"
)

func setNonBlocking(t *testing.T, fd int) {
	t.Helper()
	if err := unix.SetNonblock(fd, true); err != nil {
		t.Fatal(err)
	}
}

func TestConnectedDataDisconnectedOrdering(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	ours, theirs := fds[0], fds[1]
	setNonBlocking(t, ours)

	var mu sync.Mutex
	var seen []api.NetworkEventType

	r, err := reactor.New(0, reactor.WithDirectCallback(func(ev api.NetworkEvent) {
		mu.Lock()
		seen = append(seen, ev.Type)
		mu.Unlock()
	}))
	if err != nil {
		t.Fatal(err)
	}
	r.Start()
	defer r.Stop()

	connID := r.AddConnection(ours, "unix", 0, true)
	if connID == 0 {
		t.Fatal("expected a non-zero connection id")
	}

	// The reactor decodes frames, so the peer must send a framed message for
	// a Data event to be emitted.
	enc := frame.NewEncoder()
	frames, err := enc.EncodeMessage(1, []byte("hello"), false)
	if err != nil {
		t.Fatal(err)
	}
	for _, wire := range enc.SerializeFrames(frames) {
		if _, err := unix.Write(theirs, wire); err != nil {
			t.Fatal(err)
		}
	}
	unix.Close(theirs) // triggers an orderly EOF on ours

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n >= 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 3 {
		t.Fatalf("expected at least Connected, Data, Disconnected; got %v", seen)
	}
	if seen[0] != api.EventConnected {
		t.Fatalf("first event = %v, want Connected", seen[0])
	}
	last := seen[len(seen)-1]
	if last != api.EventDisconnected && last != api.EventError {
		t.Fatalf("last event = %v, want Disconnected or Error", last)
	}
}

func TestSendDataUnknownConnectionReturnsFalse(t *testing.T) {
	r, err := reactor.New(0, reactor.WithDirectCallback(func(api.NetworkEvent) {}))
	if err != nil {
		t.Fatal(err)
	}
	r.Start()
	defer r.Stop()

	if r.SendData(0xFFFFFFFF, []byte("x")) {
		t.Fatal("expected SendData to fail for an unknown connection id")
	}
}

func TestRemoveConnectionStopsFurtherEvents(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	ours, theirs := fds[0], fds[1]
	defer unix.Close(theirs)
	setNonBlocking(t, ours)

	var mu sync.Mutex
	var count int
	r, err := reactor.New(0, reactor.WithDirectCallback(func(api.NetworkEvent) {
		mu.Lock()
		count++
		mu.Unlock()
	}))
	if err != nil {
		t.Fatal(err)
	}
	r.Start()
	defer r.Stop()

	connID := r.AddConnection(ours, "unix", 0, true)
	r.RemoveConnection(connID)
	time.Sleep(150 * time.Millisecond)

	if r.SendData(connID, []byte("late")) {
		t.Fatal("expected SendData to fail after RemoveConnection")
	}

	mu.Lock()
	got := count
	mu.Unlock()
	if got != 2 {
		t.Fatalf("saw %d events, want 2 (Connected, then one Disconnected)", got)
	}
}
