package acceptor_test

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hioload/netrt/acceptor"
	"github.com/rs/zerolog"
)

type fakeReactor struct {
	mu    sync.Mutex
	added []int
}

func (f *fakeReactor) AddConnection(fd int, peerAddress string, peerPort uint16, isUnixDomain bool) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, fd)
	return uint64(len(f.added))
}

func (f *fakeReactor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.added)
}

func TestAcceptorForwardsToReactorsRoundRobin(t *testing.T) {
	fd, err := acceptor.ListenIPv4("127.0.0.1", 0, 16)
	if err != nil {
		t.Fatal(err)
	}
	addr, err := localAddr(fd)
	if err != nil {
		t.Fatal(err)
	}

	r1, r2 := &fakeReactor{}, &fakeReactor{}
	a, err := acceptor.New(fd, false, []acceptor.ReactorTarget{r1, r2}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	a.Start()
	defer a.Stop()

	const conns = 6
	var dialers []net.Conn
	defer func() {
		for _, c := range dialers {
			c.Close()
		}
	}()
	for i := 0; i < conns; i++ {
		c, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatal(err)
		}
		dialers = append(dialers, c)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r1.count()+r2.count() >= conns {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := r1.count() + r2.count(); got != conns {
		t.Fatalf("total accepted = %d, want %d", got, conns)
	}
	if r1.count() == 0 || r2.count() == 0 {
		t.Fatalf("expected round robin across both reactors, got r1=%d r2=%d", r1.count(), r2.count())
	}
}

func localAddr(fd int) (string, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return "", err
	}
	v, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return "", fmt.Errorf("unexpected sockaddr type %T", sa)
	}
	return fmt.Sprintf("%d.%d.%d.%d:%d", v.Addr[0], v.Addr[1], v.Addr[2], v.Addr[3], v.Port), nil
}
