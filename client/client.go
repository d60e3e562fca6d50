// File: client/client.go
// Author: momentics <momentics@gmail.com>
//
// Client is the library surface for a single outbound connection: one
// reactor with no worker pool (direct callback, per spec.md §6.1), its own
// frame encoder/decoder, and the connect/send/disconnect contract.
package client

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rs/zerolog"

	"github.com/hioload/netrt/acceptor"
	"github.com/hioload/netrt/api"
	"github.com/hioload/netrt/config"
	"github.com/hioload/netrt/frame"
	"github.com/hioload/netrt/reactor"
)

// Client drives exactly one connection through a single-reactor pipeline.
type Client struct {
	cfg *config.Config
	log zerolog.Logger

	r       *reactor.Reactor
	encoder *frame.Encoder

	messageID atomic.Uint64

	mu           sync.Mutex
	connID       uint64
	connected    bool
	shuttingDown bool
	onConnected  func(api.ConnectionInformation)
	onMessage    func([]byte)
	onDisconnect func()
	onError      func(*api.NetworkError, string)
}

// Option configures a Client before any Connect* call.
type Option func(*Client)

// WithConfig overrides config.DefaultConfig().
func WithConfig(cfg *config.Config) Option {
	return func(c *Client) {
		if cfg != nil {
			c.cfg = cfg
		}
	}
}

// WithLogger attaches a logger; zerolog.Nop() is used otherwise.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New constructs a Client. A Connect* call must follow before SendData.
func New(opts ...Option) *Client {
	c := &Client{
		cfg:     config.DefaultConfig(),
		log:     zerolog.Nop(),
		encoder: frame.NewEncoder(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetOnConnected, SetOnMessage, SetOnDisconnected and SetOnConnectionError
// mirror the server's callback setters, minus the connection id (a Client
// only ever has one connection).
func (c *Client) SetOnConnected(fn func(api.ConnectionInformation)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnected = fn
}

func (c *Client) SetOnMessage(fn func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

func (c *Client) SetOnDisconnected(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = fn
}

func (c *Client) SetOnConnectionError(fn func(*api.NetworkError, string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

func (c *Client) dispatch(ev api.NetworkEvent) {
	c.mu.Lock()
	onConnected := c.onConnected
	onMessage := c.onMessage
	onDisconnect := c.onDisconnect
	onError := c.onError
	c.mu.Unlock()

	switch ev.Type {
	case api.EventConnected:
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		if onConnected != nil {
			onConnected(ev.Info)
		}
	case api.EventData:
		if onMessage != nil {
			onMessage(ev.Payload)
		}
	case api.EventDisconnected:
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		if onDisconnect != nil {
			onDisconnect()
		}
	case api.EventError:
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		if onError != nil {
			onError(ev.Err, ev.Err.Error())
		}
	}
}

func (c *Client) ensureReactor() error {
	if c.r != nil {
		return nil
	}
	r, err := reactor.New(
		0,
		reactor.WithDirectCallback(c.dispatch),
		reactor.WithLogger(c.log),
		reactor.WithReadChunkSize(c.cfg.ReadChunkSize),
		reactor.WithPollTimeoutMs(c.cfg.MonitorPollTimeoutMs),
		reactor.WithSendBufferLimits(c.cfg.SendBufferHighWater, c.cfg.SendBufferLowWater, c.cfg.SendBufferMaxCapacity),
		reactor.WithReassemblyTimeout(time.Duration(c.cfg.ReassemblyTimeoutMs)*time.Millisecond),
	)
	if err != nil {
		return err
	}
	r.Start()
	c.r = r
	return nil
}

func (c *Client) connectFd(fd int, peerAddress string, peerPort uint16, isUnixDomain bool) bool {
	if err := c.ensureReactor(); err != nil {
		c.log.Error().Err(err).Msg("client: failed to construct reactor")
		return false
	}
	connID := c.r.AddConnection(fd, peerAddress, peerPort, isUnixDomain)
	c.mu.Lock()
	c.connID = connID
	c.mu.Unlock()
	return true
}

// ConnectIPv4 dials an IPv4 TCP peer.
func (c *Client) ConnectIPv4(host string, port int) bool {
	fd, peerAddr, peerPort, err := dialTCP(unix.AF_INET, host, port)
	if err != nil {
		c.log.Error().Err(err).Msg("client: ConnectIPv4 failed")
		return false
	}
	return c.connectFd(fd, peerAddr, peerPort, false)
}

// ConnectIPv6 dials an IPv6 TCP peer.
func (c *Client) ConnectIPv6(host string, port int) bool {
	fd, peerAddr, peerPort, err := dialTCP(unix.AF_INET6, host, port)
	if err != nil {
		c.log.Error().Err(err).Msg("client: ConnectIPv6 failed")
		return false
	}
	return c.connectFd(fd, peerAddr, peerPort, false)
}

// ConnectUnixDomain dials a Unix-domain stream peer at path.
func (c *Client) ConnectUnixDomain(path string) bool {
	fd, err := dialUnix(path)
	if err != nil {
		c.log.Error().Err(err).Msg("client: ConnectUnixDomain failed")
		return false
	}
	return c.connectFd(fd, path, 0, true)
}

// IsConnected reports whether the connection is currently open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// GetSendBufferSize reports the number of bytes currently queued on the
// connection's send buffer, or 0 once the connection is closed or unknown.
func (c *Client) GetSendBufferSize() int {
	c.mu.Lock()
	connID := c.connID
	r := c.r
	c.mu.Unlock()
	if r == nil {
		return 0
	}
	size, ok := r.SendBufferSize(connID)
	if !ok {
		return 0
	}
	return size
}

// SendData frames data and enqueues it on the connection's send buffer.
// timeoutMs is accepted for interface compatibility with spec.md §6.1; the
// underlying enqueue never blocks (timeout_ms=0 means non-blocking enqueue,
// the only mode this runtime implements). Returns false once
// GracefulShutdown has begun, since new sends are no longer accepted.
func (c *Client) SendData(data []byte, timeoutMs int) bool {
	c.mu.Lock()
	connID := c.connID
	shuttingDown := c.shuttingDown
	c.mu.Unlock()
	if shuttingDown {
		return false
	}
	frames, err := c.encoder.EncodeMessage(c.messageID.Add(1), data, c.cfg.CRCEnabled)
	if err != nil {
		c.log.Error().Err(err).Msg("client: failed to encode message")
		return false
	}
	var wire []byte
	for _, b := range c.encoder.SerializeFrames(frames) {
		wire = append(wire, b...)
	}
	return c.r.SendData(connID, wire)
}

// SendAsync frames and enqueues data, then invokes callback with the
// enqueue result and the number of user bytes submitted.
func (c *Client) SendAsync(data []byte, callback func(ok bool, sizeSent int)) {
	ok := c.SendData(data, 0)
	sent := 0
	if ok {
		sent = len(data)
	}
	if callback != nil {
		callback(ok, sent)
	}
}

// Disconnect closes the connection immediately, discarding any unsent
// buffered bytes.
func (c *Client) Disconnect() {
	c.mu.Lock()
	connID := c.connID
	c.mu.Unlock()
	if c.r != nil {
		c.r.RemoveConnection(connID)
	}
}

// GracefulShutdown stops accepting new sends, waits up to timeoutMs for the
// send buffer to actually drain to the socket, then closes. Bytes still
// queued when timeoutMs elapses are discarded, same as an ungraceful
// Disconnect.
func (c *Client) GracefulShutdown(timeoutMs int) {
	c.mu.Lock()
	c.shuttingDown = true
	r := c.r
	connID := c.connID
	c.mu.Unlock()

	if r != nil {
		deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
		for time.Now().Before(deadline) {
			size, ok := r.SendBufferSize(connID)
			if !ok || size == 0 {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	c.Disconnect()
	if r != nil {
		r.Stop()
	}
}

func dialTCP(family int, host string, port int) (fd int, peerAddr string, peerPort uint16, err error) {
	fd, err = unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, "", 0, fmt.Errorf("client: socket: %w", err)
	}
	var sa unix.Sockaddr
	switch family {
	case unix.AF_INET:
		var addr [4]byte
		if err := parseIPv4Into(host, &addr); err != nil {
			unix.Close(fd)
			return -1, "", 0, err
		}
		sa = &unix.SockaddrInet4{Port: port, Addr: addr}
	case unix.AF_INET6:
		var addr [16]byte
		if err := parseIPv6Into(host, &addr); err != nil {
			unix.Close(fd)
			return -1, "", 0, err
		}
		sa = &unix.SockaddrInet6{Port: port, Addr: addr}
	}
	if err := unix.Connect(fd, sa); err != nil {
		unix.Close(fd)
		return -1, "", 0, fmt.Errorf("client: connect: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, "", 0, fmt.Errorf("client: set non-blocking: %w", err)
	}
	return fd, host, uint16(port), nil
}

func dialUnix(path string) (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("client: socket: %w", err)
	}
	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("client: connect: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("client: set non-blocking: %w", err)
	}
	return fd, nil
}

func parseIPv4Into(host string, out *[4]byte) error {
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		return fmt.Errorf("client: %q is not a dotted-quad IPv4 address", host)
	}
	copy(out[:], ip.To4())
	return nil
}

func parseIPv6Into(host string, out *[16]byte) error {
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() != nil {
		return fmt.Errorf("client: %q is not an RFC 4291 IPv6 address", host)
	}
	copy(out[:], ip.To16())
	return nil
}

var _ acceptor.ReactorTarget = (*reactor.Reactor)(nil) // compile-time contract check
