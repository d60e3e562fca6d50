// File: server/server.go
// Author: momentics <momentics@gmail.com>
//
// Server is the library surface composing the Acceptor, Reactor pool,
// Worker Pool and Connection Registry into the callback-based API user code
// drives: set callbacks, start one or more listeners, send data by
// connection_id, stop.
package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/hioload/netrt/acceptor"
	"github.com/hioload/netrt/api"
	"github.com/hioload/netrt/config"
	"github.com/hioload/netrt/frame"
	"github.com/hioload/netrt/reactor"
	"github.com/hioload/netrt/registry"
	"github.com/hioload/netrt/workerpool"
)

// Server composes the runtime pipeline behind the Server façade contract in
// spec.md §6.1.
type Server struct {
	cfg *config.Config
	log zerolog.Logger

	registry *registry.ConnectionRegistry
	pool     *workerpool.WorkerPool
	reactors []*reactor.Reactor

	acceptors []*acceptor.Acceptor

	encoder   *frame.Encoder
	messageID atomic.Uint64

	mu sync.Mutex

	onConnected    func(api.ConnectionInformation)
	onMessage      func(uint64, []byte)
	onDisconnected func(uint64)
	onError        func(uint64, *api.NetworkError, string)

	started atomic.Bool
}

// Option configures a Server before Start* is first called.
type Option func(*Server)

// WithConfig overrides config.DefaultConfig().
func WithConfig(cfg *config.Config) Option {
	return func(s *Server) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger attaches a logger; zerolog.Nop() is used otherwise.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New constructs a Server. Callback setters and a Start* call must follow
// before any connection can be accepted.
func New(opts ...Option) *Server {
	s := &Server{
		cfg:     config.DefaultConfig(),
		log:     zerolog.Nop(),
		encoder: frame.NewEncoder(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registry = registry.New(registry.DefaultCapacity)
	return s
}

// SetOnClientConnected registers the Connected callback.
func (s *Server) SetOnClientConnected(fn func(api.ConnectionInformation)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnected = fn
}

// SetOnMessage registers the Data callback.
func (s *Server) SetOnMessage(fn func(connectionID uint64, payload []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = fn
}

// SetOnClientDisconnected registers the Disconnected callback.
func (s *Server) SetOnClientDisconnected(fn func(connectionID uint64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDisconnected = fn
}

// SetOnConnectionError registers the Error callback.
func (s *Server) SetOnConnectionError(fn func(connectionID uint64, netErr *api.NetworkError, message string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

func (s *Server) dispatch(ev api.NetworkEvent) {
	s.mu.Lock()
	onConnected := s.onConnected
	onMessage := s.onMessage
	onDisconnected := s.onDisconnected
	onError := s.onError
	s.mu.Unlock()

	switch ev.Type {
	case api.EventConnected:
		s.registry.Put(ev.Info)
		if onConnected != nil {
			onConnected(ev.Info)
		}
	case api.EventData:
		if onMessage != nil {
			onMessage(ev.ConnectionID, ev.Payload)
		}
	case api.EventDisconnected:
		s.registry.Remove(ev.ConnectionID)
		if onDisconnected != nil {
			onDisconnected(ev.ConnectionID)
		}
	case api.EventError:
		s.registry.Remove(ev.ConnectionID)
		if onError != nil {
			onError(ev.ConnectionID, ev.Err, ev.Err.Error())
		}
	}
}

// ensureStarted lazily builds the worker pool and reactor fleet on first
// Start* call, since the callbacks must already be registered by then.
func (s *Server) ensureStarted() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.pool = workerpool.New(s.cfg.WorkerCount, 0, s.dispatch, s.log)
	s.pool.Start()

	s.reactors = make([]*reactor.Reactor, s.cfg.ReactorCount)
	for i := range s.reactors {
		r, err := reactor.New(
			uint8(i),
			reactor.WithWorkerPool(s.pool),
			reactor.WithLogger(s.log),
			reactor.WithReadChunkSize(s.cfg.ReadChunkSize),
			reactor.WithPollTimeoutMs(s.cfg.MonitorPollTimeoutMs),
			reactor.WithSendBufferLimits(s.cfg.SendBufferHighWater, s.cfg.SendBufferLowWater, s.cfg.SendBufferMaxCapacity),
			reactor.WithReassemblyTimeout(time.Duration(s.cfg.ReassemblyTimeoutMs)*time.Millisecond),
		)
		if err != nil {
			s.log.Error().Err(err).Int("reactor_index", i).Msg("server: failed to construct reactor")
			continue
		}
		r.Start()
		s.reactors[i] = r
	}
}

func (s *Server) reactorTargets() []acceptor.ReactorTarget {
	targets := make([]acceptor.ReactorTarget, 0, len(s.reactors))
	for _, r := range s.reactors {
		if r != nil {
			targets = append(targets, r)
		}
	}
	return targets
}

func (s *Server) addAcceptor(fd int, isUnixDomain bool) bool {
	a, err := acceptor.New(fd, isUnixDomain, s.reactorTargets(), s.log)
	if err != nil {
		s.log.Error().Err(err).Msg("server: failed to construct acceptor")
		return false
	}
	a.Start()
	s.mu.Lock()
	s.acceptors = append(s.acceptors, a)
	s.mu.Unlock()
	return true
}

// StartIPv4 opens an IPv4 TCP listener on host:port.
func (s *Server) StartIPv4(host string, port int) bool {
	s.ensureStarted()
	fd, err := acceptor.ListenIPv4(host, port, s.cfg.AcceptBacklog)
	if err != nil {
		s.log.Error().Err(err).Msg("server: StartIPv4 failed")
		return false
	}
	return s.addAcceptor(fd, false)
}

// StartIPv6 opens an IPv6 TCP listener on host:port.
func (s *Server) StartIPv6(host string, port int) bool {
	s.ensureStarted()
	fd, err := acceptor.ListenIPv6(host, port, s.cfg.AcceptBacklog)
	if err != nil {
		s.log.Error().Err(err).Msg("server: StartIPv6 failed")
		return false
	}
	return s.addAcceptor(fd, false)
}

// StartUniversalIP opens both an IPv4 and an IPv6 listener on port.
func (s *Server) StartUniversalIP(host4, host6 string, port int) bool {
	okv4 := s.StartIPv4(host4, port)
	okv6 := s.StartIPv6(host6, port)
	return okv4 && okv6
}

// StartUnixDomain opens a Unix-domain stream listener at path.
func (s *Server) StartUnixDomain(path string) bool {
	s.ensureStarted()
	fd, err := acceptor.ListenUnixDomain(path, s.cfg.AcceptBacklog)
	if err != nil {
		s.log.Error().Err(err).Msg("server: StartUnixDomain failed")
		return false
	}
	return s.addAcceptor(fd, true)
}

// SendData frames data as one or more Message frames (CRC per config),
// serializes them, and enqueues the wire bytes on the reactor embedded in
// connectionID (bits 32-39, per spec.md §3).
func (s *Server) SendData(connectionID uint64, data []byte) bool {
	r := s.reactorFor(connectionID)
	if r == nil {
		return false
	}
	frames, err := s.encoder.EncodeMessage(s.messageID.Add(1), data, s.cfg.CRCEnabled)
	if err != nil {
		s.log.Error().Err(err).Uint64("connection_id", connectionID).Msg("server: failed to encode message")
		return false
	}
	var wire []byte
	for _, b := range s.encoder.SerializeFrames(frames) {
		wire = append(wire, b...)
	}
	return r.SendData(connectionID, wire)
}

func (s *Server) reactorFor(connectionID uint64) *reactor.Reactor {
	idx := int((connectionID >> 32) & 0xFF)
	if idx < 0 || idx >= len(s.reactors) {
		return nil
	}
	return s.reactors[idx]
}

// Stop tears down acceptors, reactors and the worker pool, in that order so
// no new connection arrives mid-shutdown.
func (s *Server) Stop() {
	s.mu.Lock()
	acceptors := s.acceptors
	s.acceptors = nil
	s.mu.Unlock()

	for _, a := range acceptors {
		a.Stop()
	}
	for _, r := range s.reactors {
		if r != nil {
			r.Stop()
		}
	}
	if s.pool != nil {
		s.pool.Stop()
	}
}

// ConnectionCount reports the number of connections currently tracked in
// the registry.
func (s *Server) ConnectionCount() int {
	return s.registry.Len()
}

