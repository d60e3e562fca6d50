// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Reactor owns a subset of connections, drives its private event loop on a
// single goroutine, performs all reads/writes, and translates I/O outcomes
// into api.NetworkEvents delivered to a WorkerPool or, absent one, to a
// direct callback (the Client façade's path).
package reactor

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hioload/netrt/api"
	"github.com/hioload/netrt/connid"
	"github.com/hioload/netrt/frame"
	"github.com/hioload/netrt/monitor"
	"github.com/hioload/netrt/sendbuffer"
	"github.com/rs/zerolog"
)

// connState is a connection's position in its Registering -> Open ->
// Closing -> Closed lifecycle. Transitions are linear; no connection is
// ever re-opened.
type connState int32

const (
	stateRegistering connState = iota
	stateOpen
	stateClosing
	stateClosed
)

// connection is the reactor-private record for one descriptor. Only the
// loop goroutine touches fd, sendBuf, decoder or state.
type connection struct {
	fd           int
	connID       uint64
	peerAddr     string
	peerPort     uint16
	isUnixDomain bool
	connectedAt  time.Time

	sendBuf     *sendbuffer.Buffer
	decoder     *frame.Decoder
	state       connState
	writeArmed  bool
}

// Submitter is satisfied by workerpool.WorkerPool; kept minimal so this
// package never imports workerpool (which would create a cycle with the
// server façade composing both).
type Submitter interface {
	SubmitEvent(api.NetworkEvent)
}

// command is posted from any goroutine to the loop goroutine so that all
// mutation of the connections map happens on a single thread, per spec.
type command struct {
	kind       commandKind
	fd         int
	peer       peerInfo
	connID     uint64
	data       []byte
	result     chan bool
	sizeResult chan sendBufferQuery
}

type commandKind int

const (
	cmdAdd commandKind = iota
	cmdRemove
	cmdSend
	cmdQuerySendSize
)

// sendBufferQuery answers SendBufferSize: size is meaningful only when ok.
type sendBufferQuery struct {
	size int
	ok   bool
}

type peerInfo struct {
	address      string
	port         uint16
	isUnixDomain bool
}

// Reactor drives one goroutine's worth of connections through a shared
// Monitor. Every exported method is safe to call from any goroutine.
type Reactor struct {
	id      uint8
	mon     monitor.Monitor
	pool    Submitter
	direct  api.EventHandler
	log     zerolog.Logger
	readChunkSize int
	pollTimeoutMs int

	sendBufferHighWater int
	sendBufferLowWater  int
	sendBufferMaxCap    int
	reassemblyTimeout   time.Duration

	commands chan command
	stopCh   chan struct{}
	stopped  atomic.Bool
	wg       sync.WaitGroup

	connSeq atomic.Uint32

	mu          sync.Mutex
	connections map[uint64]*connection
	fdToConn    map[int]*connection
}

// Option configures a Reactor at construction time.
type Option func(*Reactor)

// WithWorkerPool routes every event through pool.SubmitEvent.
func WithWorkerPool(pool Submitter) Option {
	return func(r *Reactor) { r.pool = pool }
}

// WithDirectCallback invokes handler inline on the loop goroutine instead of
// routing through a WorkerPool; used by the Client façade.
func WithDirectCallback(handler api.EventHandler) Option {
	return func(r *Reactor) { r.direct = handler }
}

// WithLogger attaches a logger; the zero value (zerolog.Nop()) is used
// otherwise.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Reactor) { r.log = log }
}

// WithReadChunkSize overrides the 8 KiB default stack read buffer size.
func WithReadChunkSize(n int) Option {
	return func(r *Reactor) {
		if n > 0 {
			r.readChunkSize = n
		}
	}
}

// WithPollTimeoutMs overrides the 100 ms default monitor wait timeout.
func WithPollTimeoutMs(ms int) Option {
	return func(r *Reactor) {
		if ms > 0 {
			r.pollTimeoutMs = ms
		}
	}
}

// WithSendBufferLimits overrides the send buffer's high/low watermarks and
// ceiling for every connection this reactor registers; non-positive values
// fall back to sendbuffer's own package defaults.
func WithSendBufferLimits(highWater, lowWater, maxCap int) Option {
	return func(r *Reactor) {
		r.sendBufferHighWater = highWater
		r.sendBufferLowWater = lowWater
		r.sendBufferMaxCap = maxCap
	}
}

// WithReassemblyTimeout overrides the Decoder's reassembly timeout for every
// connection this reactor registers; zero falls back to
// frame.DefaultReassemblyTimeout.
func WithReassemblyTimeout(d time.Duration) Option {
	return func(r *Reactor) { r.reassemblyTimeout = d }
}

// New constructs a Reactor identified by id (embedded in every connection_id
// it issues, so outbound sends can be routed back to the owning reactor).
func New(id uint8, opts ...Option) (*Reactor, error) {
	mon, err := monitor.New()
	if err != nil {
		return nil, err
	}
	r := &Reactor{
		id:            id,
		mon:           mon,
		log:           zerolog.Nop(),
		readChunkSize: 8 * 1024,
		pollTimeoutMs: 100,
		commands:      make(chan command, 256),
		stopCh:        make(chan struct{}),
		connections:   make(map[uint64]*connection),
		fdToConn:      make(map[int]*connection),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Start launches the loop goroutine.
func (r *Reactor) Start() {
	r.wg.Add(1)
	go r.loop()
}

// Stop is idempotent: it joins the loop goroutine, closes all owned
// descriptors, and frees state.
func (r *Reactor) Stop() {
	if !r.stopped.CompareAndSwap(false, true) {
		r.wg.Wait()
		return
	}
	close(r.stopCh)
	r.wg.Wait()
	r.mon.Close()
}

// AddConnection registers fd (already set non-blocking by the caller) and
// returns its assigned connection_id. The registration itself happens on
// the loop goroutine.
func (r *Reactor) AddConnection(fd int, peerAddress string, peerPort uint16, isUnixDomain bool) uint64 {
	seq := uint16(r.connSeq.Add(1))
	connID := connid.Generate(r.id, uint16(fd), seq)

	done := make(chan bool, 1)
	r.commands <- command{
		kind:   cmdAdd,
		fd:     fd,
		peer:   peerInfo{address: peerAddress, port: peerPort, isUnixDomain: isUnixDomain},
		connID: connID,
		result: done,
	}
	<-done
	return connID
}

// RemoveConnection initiates close: deregisters from the monitor, closes fd,
// emits one Disconnected event for connID, and no event for it after that.
func (r *Reactor) RemoveConnection(connID uint64) {
	r.commands <- command{kind: cmdRemove, connID: connID}
}

// SendData enqueues bytes into the connection's send buffer and arms
// write-interest if not already armed. Returns false if connID is unknown
// or the send buffer would overflow its ceiling.
func (r *Reactor) SendData(connID uint64, data []byte) bool {
	result := make(chan bool, 1)
	r.commands <- command{kind: cmdSend, connID: connID, data: data, result: result}
	return <-result
}

// SendBufferSize reports the number of bytes still queued for connID. The
// second return is false if connID is unknown or already closed, letting
// callers (e.g. GracefulShutdown) distinguish "drained" from "gone".
func (r *Reactor) SendBufferSize(connID uint64) (int, bool) {
	result := make(chan sendBufferQuery, 1)
	r.commands <- command{kind: cmdQuerySendSize, connID: connID, sizeResult: result}
	q := <-result
	return q.size, q.ok
}

func (r *Reactor) loop() {
	defer r.wg.Done()
	events := make([]monitor.Event, 256)

	for {
		select {
		case <-r.stopCh:
			r.closeAll()
			return
		default:
		}

		r.drainCommands()

		n, err := r.mon.Wait(events, r.pollTimeoutMs)
		if err != nil {
			if err == monitor.ErrInterrupted {
				continue
			}
			r.log.Error().Err(err).Uint8("reactor_id", r.id).Msg("reactor: monitor wait failed, terminating loop")
			r.closeAllWithError(err)
			return
		}

		for i := 0; i < n; i++ {
			r.handleEvent(events[i])
		}
	}
}

func (r *Reactor) drainCommands() {
	for {
		select {
		case c := <-r.commands:
			r.applyCommand(c)
		default:
			return
		}
	}
}

func (r *Reactor) applyCommand(c command) {
	switch c.kind {
	case cmdAdd:
		r.doAdd(c)
	case cmdRemove:
		r.doRemove(c.connID)
	case cmdSend:
		c.result <- r.doSend(c.connID, c.data)
	case cmdQuerySendSize:
		c.sizeResult <- r.doQuerySendSize(c.connID)
	}
}

func (r *Reactor) doAdd(c command) {
	conn := &connection{
		fd:           c.fd,
		connID:       c.connID,
		peerAddr:     c.peer.address,
		peerPort:     c.peer.port,
		isUnixDomain: c.peer.isUnixDomain,
		connectedAt:  time.Now(),
		sendBuf:      sendbuffer.NewWithLimits(r.sendBufferHighWater, r.sendBufferLowWater, r.sendBufferMaxCap),
		decoder:      frame.NewDecoder(r.reassemblyTimeout),
		state:        stateRegistering,
	}

	r.mu.Lock()
	r.connections[c.connID] = conn
	r.fdToConn[c.fd] = conn
	r.mu.Unlock()

	if err := r.mon.StartReadMonitor(c.fd); err != nil {
		r.log.Error().Err(err).Int("fd", c.fd).Msg("reactor: failed to register descriptor")
		r.mu.Lock()
		delete(r.connections, c.connID)
		delete(r.fdToConn, c.fd)
		r.mu.Unlock()
		unix.Close(c.fd)
		// No Connected event was ever emitted for this id, so no
		// Disconnected/Error follows it either.
		if c.result != nil {
			c.result <- false
		}
		return
	}

	conn.state = stateOpen
	r.deliver(api.NetworkEvent{
		Type:         api.EventConnected,
		ConnectionID: conn.connID,
		Info: api.ConnectionInformation{
			ConnectionID: conn.connID,
			PeerAddress:  conn.peerAddr,
			PeerPort:     conn.peerPort,
			IsUnixDomain: conn.isUnixDomain,
			ConnectedAt:  conn.connectedAt,
		},
	})
	if c.result != nil {
		c.result <- true
	}
}

func (r *Reactor) doRemove(connID uint64) {
	r.mu.Lock()
	conn, ok := r.connections[connID]
	r.mu.Unlock()
	if !ok || conn.state == stateClosed || conn.state == stateClosing {
		return
	}
	r.closeConnection(conn, nil)
}

func (r *Reactor) doSend(connID uint64, data []byte) bool {
	r.mu.Lock()
	conn, ok := r.connections[connID]
	r.mu.Unlock()
	if !ok || conn.state != stateOpen {
		return false
	}
	if !conn.sendBuf.Write(data) {
		return false
	}
	if !conn.writeArmed {
		if err := r.mon.ArmWrite(conn.fd); err == nil {
			conn.writeArmed = true
		}
	}
	return true
}

func (r *Reactor) doQuerySendSize(connID uint64) sendBufferQuery {
	r.mu.Lock()
	conn, ok := r.connections[connID]
	r.mu.Unlock()
	if !ok || conn.state != stateOpen {
		return sendBufferQuery{ok: false}
	}
	return sendBufferQuery{size: conn.sendBuf.Size(), ok: true}
}

func (r *Reactor) handleEvent(ev monitor.Event) {
	r.mu.Lock()
	conn, ok := r.fdToConn[ev.Fd]
	r.mu.Unlock()
	if !ok || conn.state != stateOpen {
		return
	}

	if ev.Readable || ev.PeerClosed {
		r.handleReadable(conn)
	}
	if conn.state == stateOpen && (ev.Writable || ev.Error) {
		r.handleWritable(conn)
	}
	if conn.state == stateOpen && ev.Error {
		r.closeConnection(conn, api.NewNetworkError(api.ErrSyscallFailure, "descriptor reported an error condition", nil))
	}
}

func (r *Reactor) handleReadable(conn *connection) {
	buf := make([]byte, r.readChunkSize)
	for {
		n, err := unix.Read(conn.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
				return
			}
			r.closeConnection(conn, mapReadError(err))
			return
		}
		if n == 0 {
			r.closeConnection(conn, nil) // orderly close: Disconnected, no Error
			return
		}

		if err := conn.decoder.Feed(buf[:n]); err != nil {
			r.closeConnection(conn, api.NewNetworkError(api.ErrProtocolViolation, err.Error(), err))
			return
		}
		r.drainDecodedMessages(conn)
	}
}

// drainDecodedMessages pulls completed messages off the connection's
// decoder and delivers one Data event per reassembled message: the frame
// codec lives above the raw byte stream, so the only payload a Worker or
// direct callback ever observes is a fully reassembled message, never a
// partial socket read. Stream events (no reassembly) stay in the decoder's
// queue and are not delivered: the decoder is private to the connection
// record and the NetworkEvent union carries no stream-specific variant.
func (r *Reactor) drainDecodedMessages(conn *connection) {
	for {
		msg, ok := conn.decoder.GetMessage()
		if !ok {
			break
		}
		r.deliver(api.NetworkEvent{
			Type:         api.EventData,
			ConnectionID: conn.connID,
			Payload:      msg.Data,
		})
	}
}

func (r *Reactor) handleWritable(conn *connection) {
	n, err := conn.sendBuf.SendToSocket(conn.fd)
	if err != nil {
		r.closeConnection(conn, mapWriteError(err))
		return
	}
	if n == 0 && conn.sendBuf.IsEmpty() && conn.writeArmed {
		if err := r.mon.DisarmWrite(conn.fd); err == nil {
			conn.writeArmed = false
		}
	}
}

func (r *Reactor) closeConnection(conn *connection, networkErr *api.NetworkError) {
	if conn.state == stateClosed || conn.state == stateClosing {
		return
	}
	conn.state = stateClosing
	r.mon.StopMonitor(conn.fd)
	unix.Close(conn.fd)
	conn.state = stateClosed

	r.mu.Lock()
	delete(r.connections, conn.connID)
	delete(r.fdToConn, conn.fd)
	r.mu.Unlock()

	if networkErr != nil {
		r.deliver(api.NetworkEvent{Type: api.EventError, ConnectionID: conn.connID, Err: networkErr})
	} else {
		r.deliver(api.NetworkEvent{Type: api.EventDisconnected, ConnectionID: conn.connID})
	}
}

func (r *Reactor) closeAll() {
	r.mu.Lock()
	conns := make([]*connection, 0, len(r.connections))
	for _, c := range r.connections {
		conns = append(conns, c)
	}
	r.mu.Unlock()
	for _, c := range conns {
		r.closeConnection(c, nil)
	}
}

// closeAllWithError closes every still-open connection with a terminal
// Error event (the monitor itself has failed, so every connection shares the
// same cause). Each connection_id gets exactly one terminal event: Error
// here, never a trailing Disconnected for the same id.
func (r *Reactor) closeAllWithError(cause error) {
	r.mu.Lock()
	conns := make([]*connection, 0, len(r.connections))
	for _, c := range r.connections {
		conns = append(conns, c)
	}
	r.mu.Unlock()
	networkErr := api.NewNetworkError(api.ErrSyscallFailure, "reactor monitor failed", cause)
	for _, c := range conns {
		r.closeConnection(c, networkErr)
	}
}

func (r *Reactor) deliver(ev api.NetworkEvent) {
	if r.pool != nil {
		r.pool.SubmitEvent(ev)
		return
	}
	if r.direct != nil {
		r.direct(ev)
	}
}

func mapReadError(err error) *api.NetworkError {
	code := api.ClassifySyscallError(err, false)
	return api.NewNetworkError(code, "read failed", err)
}

func mapWriteError(err error) *api.NetworkError {
	code := api.ClassifySyscallError(err, false)
	return api.NewNetworkError(code, "write failed", err)
}
