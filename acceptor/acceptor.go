// File: acceptor/acceptor.go
// Author: momentics <momentics@gmail.com>
//
// Acceptor owns a single listening descriptor and a single goroutine that
// drives it through its own Monitor instance, handing each accepted
// descriptor to one of N reactors chosen by round robin.
package acceptor

import (
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hioload/netrt/monitor"
	"github.com/rs/zerolog"
)

// ReactorTarget is satisfied by reactor.Reactor; kept minimal to avoid an
// import cycle between acceptor and reactor.
type ReactorTarget interface {
	AddConnection(fd int, peerAddress string, peerPort uint16, isUnixDomain bool) uint64
}

const emfileBackoff = 10 * time.Millisecond

// Acceptor accepts connections on one listening descriptor and forwards
// each to one of its target reactors.
type Acceptor struct {
	listenFd     int
	mon          monitor.Monitor
	reactors     []ReactorTarget
	roundRobin   atomic.Uint64
	isUnixDomain bool
	log          zerolog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// New wraps an already-listening, non-blocking descriptor. reactors must be
// non-empty; connections are forwarded round robin across them.
func New(listenFd int, isUnixDomain bool, reactors []ReactorTarget, log zerolog.Logger) (*Acceptor, error) {
	if len(reactors) == 0 {
		return nil, fmt.Errorf("acceptor: at least one reactor is required")
	}
	mon, err := monitor.New()
	if err != nil {
		return nil, err
	}
	if err := mon.StartReadMonitor(listenFd); err != nil {
		mon.Close()
		return nil, err
	}
	return &Acceptor{
		listenFd:     listenFd,
		mon:          mon,
		reactors:     reactors,
		isUnixDomain: isUnixDomain,
		log:          log,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}, nil
}

// Start launches the accept loop goroutine.
func (a *Acceptor) Start() {
	go a.loop()
}

// Stop closes the listening descriptor and joins the accept loop.
func (a *Acceptor) Stop() {
	close(a.stopCh)
	<-a.doneCh
	a.mon.Close()
	unix.Close(a.listenFd)
}

func (a *Acceptor) loop() {
	defer close(a.doneCh)
	events := make([]monitor.Event, 1)

	for {
		select {
		case <-a.stopCh:
			return
		default:
		}

		n, err := a.mon.Wait(events, 100)
		if err != nil {
			if err == monitor.ErrInterrupted {
				continue
			}
			a.log.Error().Err(err).Msg("acceptor: monitor wait failed")
			continue
		}
		if n == 0 {
			continue
		}

		a.acceptUntilWouldBlock()
	}
}

func (a *Acceptor) acceptUntilWouldBlock() {
	for {
		select {
		case <-a.stopCh:
			return
		default:
		}

		fd, sa, err := unix.Accept(a.listenFd)
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return
			case unix.EINTR:
				continue
			case unix.EMFILE, unix.ENFILE:
				a.log.Warn().Err(err).Msg("acceptor: descriptor table exhausted, backing off")
				time.Sleep(emfileBackoff)
				return
			default:
				a.log.Warn().Err(err).Msg("acceptor: accept failed")
				return
			}
		}

		if err := unix.SetNonblock(fd, true); err != nil {
			a.log.Warn().Err(err).Msg("acceptor: failed to set non-blocking, dropping connection")
			unix.Close(fd)
			continue
		}

		addr, port := peerFromSockaddr(sa)
		target := a.reactors[a.roundRobin.Add(1)%uint64(len(a.reactors))]
		target.AddConnection(fd, addr, port, a.isUnixDomain)
	}
}

func peerFromSockaddr(sa unix.Sockaddr) (string, uint16) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d", v.Addr[0], v.Addr[1], v.Addr[2], v.Addr[3]), uint16(v.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("%x", v.Addr), uint16(v.Port)
	case *unix.SockaddrUnix:
		return v.Name, 0
	default:
		return "", 0
	}
}
