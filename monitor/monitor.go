// File: monitor/monitor.go
// Author: momentics <momentics@gmail.com>
//
// Package monitor provides the thin, platform-abstracting I/O readiness
// facade each reactor drives from its own loop goroutine. One Monitor
// instance is never touched from more than one goroutine at a time.
package monitor

// Event reports one descriptor's readiness after a Wait call.
type Event struct {
	Fd         int
	Readable   bool
	Writable   bool
	PeerClosed bool
	Error      bool
}

// Monitor registers descriptors for readiness notifications and blocks on
// Wait until one or more are ready, the timeout elapses, or a retriable
// signal interrupts the wait.
type Monitor interface {
	// StartReadMonitor registers fd for read-readiness. Level-triggered
	// semantics are assumed; edge-triggered is not required.
	StartReadMonitor(fd int) error

	// ArmWrite enables write-readiness notifications for fd in addition to
	// read-readiness; DisarmWrite reverts to read-only interest.
	ArmWrite(fd int) error
	DisarmWrite(fd int) error

	// StopMonitor deregisters fd. It is safe to call on an fd that was
	// never registered.
	StopMonitor(fd int) error

	// Wait blocks up to timeoutMs for readiness, filling eventsOut (reused
	// across calls by the caller) and returning the number of ready
	// descriptors. A return of (0, ErrInterrupted) signals a retriable
	// signal interruption the caller should treat as a no-op iteration,
	// distinct from a fatal error.
	Wait(eventsOut []Event, timeoutMs int) (int, error)

	// Close releases the underlying readiness queue descriptor.
	Close() error
}

// ErrInterrupted marks a Wait call that returned early due to a retriable
// signal interruption (EINTR), not a fatal failure.
var ErrInterrupted = interruptedError{}

type interruptedError struct{}

func (interruptedError) Error() string { return "monitor: wait interrupted" }
