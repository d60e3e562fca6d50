// File: sendbuffer/buffer.go
// Author: momentics <momentics@gmail.com>
//
// SendBuffer is a per-connection linear outbound byte buffer that decouples
// producers (SendData callers) from the socket and exposes high/low
// watermarks for backpressure. It never blocks; draining is driven by the
// reactor's write-readiness events.

package sendbuffer

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	initialCapacity = 4 * 1024        // 4 KiB initial allocation
	highWaterMark   = 8 * 1024 * 1024 // 8 MiB
	lowWaterMark    = 4 * 1024 * 1024 // 4 MiB
	maxCapacity     = 32 * 1024 * 1024
)

// Buffer is a linear read/write-pointer buffer. It is private to the
// connection that owns it and must only be touched from that connection's
// owning reactor goroutine.
type Buffer struct {
	data     []byte
	readPos  int
	writePos int

	highWater int
	lowWater  int
	maxCap    int
}

// New allocates a Buffer with the default watermarks and 32 MiB ceiling.
func New() *Buffer {
	return NewWithLimits(highWaterMark, lowWaterMark, maxCapacity)
}

// NewWithLimits allocates a Buffer with caller-supplied watermarks and
// ceiling, e.g. as loaded from config.Config. Any non-positive value falls
// back to the package default.
func NewWithLimits(highWater, lowWater, maxCap int) *Buffer {
	if highWater <= 0 {
		highWater = highWaterMark
	}
	if lowWater <= 0 {
		lowWater = lowWaterMark
	}
	if maxCap <= 0 {
		maxCap = maxCapacity
	}
	return &Buffer{
		data:      make([]byte, initialCapacity),
		highWater: highWater,
		lowWater:  lowWater,
		maxCap:    maxCap,
	}
}

// Size returns the number of readable bytes currently buffered.
func (b *Buffer) Size() int { return b.writePos - b.readPos }

// IsEmpty reports whether the readable region is empty.
func (b *Buffer) IsEmpty() bool { return b.readPos == b.writePos }

// Capacity returns the buffer's current total allocation.
func (b *Buffer) Capacity() int { return len(b.data) }

// IsHighWaterMark reports whether the buffered size has crossed the
// high-water threshold; producers should stop enqueueing large writes.
func (b *Buffer) IsHighWaterMark() bool { return b.Size() >= b.highWater }

// IsLowWaterMark reports whether the buffered size has fallen to or below
// the low-water threshold; producers may resume.
func (b *Buffer) IsLowWaterMark() bool { return b.Size() <= b.lowWater }

// Clear resets the buffer to empty without releasing its allocation.
func (b *Buffer) Clear() {
	b.readPos = 0
	b.writePos = 0
}

// Write appends data to the buffer, growing (by doubling, up to the 32 MiB
// ceiling) and compacting as needed. It returns false iff the required
// capacity would exceed the ceiling; it never blocks.
func (b *Buffer) Write(p []byte) bool {
	if len(p) == 0 {
		return true
	}
	if !b.ensureWritable(len(p)) {
		return false
	}
	b.writePos += copy(b.data[b.writePos:], p)
	return true
}

// ensureWritable grows and/or compacts so that at least `need` contiguous
// bytes are writable at writePos. Returns false if that would require
// exceeding maxCapacity.
func (b *Buffer) ensureWritable(need int) bool {
	if len(b.data)-b.writePos >= need {
		return true
	}

	// Compacting alone may free enough room without growing.
	if b.readPos > 0 {
		b.compact()
		if len(b.data)-b.writePos >= need {
			return true
		}
	}

	required := b.writePos + need
	if required > b.maxCap {
		return false
	}

	newCap := len(b.data)
	if newCap == 0 {
		newCap = initialCapacity
	}
	for newCap < required {
		newCap *= 2
		if newCap > b.maxCap {
			newCap = b.maxCap
			break
		}
	}
	grown := make([]byte, newCap)
	copy(grown, b.data[:b.writePos])
	b.data = grown
	return len(b.data)-b.writePos >= need
}

// compact moves the readable region to offset 0, reclaiming the space
// consumed by already-sent bytes.
func (b *Buffer) compact() {
	if b.readPos == 0 {
		return
	}
	n := copy(b.data, b.data[b.readPos:b.writePos])
	b.readPos = 0
	b.writePos = n
}

// maybeCompact triggers compaction once the read pointer has consumed more
// than half the buffer's capacity, per the data-model invariant.
func (b *Buffer) maybeCompact() {
	if b.readPos > len(b.data)/2 {
		b.compact()
	}
}

// SendToSocket attempts a single non-blocking write of the readable region
// to fd. Returns the number of bytes sent (>0), 0 on would-block, or an
// error on a fatal write failure. On partial success it advances readPos;
// once fully drained both positions reset to 0, otherwise it compacts when
// warranted.
func (b *Buffer) SendToSocket(fd int) (int, error) {
	if b.IsEmpty() {
		return 0, nil
	}
	n, err := unix.Write(fd, b.data[b.readPos:b.writePos])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return 0, nil
		}
		return -1, fmt.Errorf("send_buffer: write fd=%d: %w", fd, err)
	}
	if n <= 0 {
		return 0, nil
	}
	b.readPos += n
	if b.readPos == b.writePos {
		b.Clear()
	} else {
		b.maybeCompact()
	}
	return n, nil
}
