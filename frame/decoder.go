// File: frame/decoder.go
// Author: momentics <momentics@gmail.com>

package frame

import (
	"encoding/binary"
	"hash/crc32"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultReassemblyTimeout is how long a partial message may sit in the
// reassembly table before CleanupTimeoutMessages drops it.
const DefaultReassemblyTimeout = 30 * time.Second

// MessageComplete is a fully reassembled logical message.
type MessageComplete struct {
	MessageID uint64
	Data      []byte
}

// StreamEvent is a StreamStart/Chunk/End surfaced without reassembly.
type StreamEvent struct {
	Type      FrameType
	StreamID  uint64
	TotalSize uint64 // StreamStart only
	Offset    uint64 // StreamChunk only
	Data      []byte // StreamChunk only
	CRC32     uint32 // StreamEnd only
}

// Stats are the Decoder's read-only counters.
type Stats struct {
	FramesReceived     uint64
	MessagesCompleted  uint64
	StreamEvents       uint64
	BytesReceived      uint64
	CRCErrors          uint64
	TimeoutCleanups    uint64
	PendingReassembly  int
	BufferSize         int
}

// reassemblyEntry tracks the in-progress slices of one message_id. Slots in
// Slices are nil until that sequence's frame has arrived.
type reassemblyEntry struct {
	totalSlices   uint16
	slices        [][]byte
	receivedCount int
	firstSeen     time.Time
}

// Decoder turns a byte stream back into messages and stream events. It owns
// no goroutine and no clock-driven timer: CleanupTimeoutMessages must be
// invoked periodically by the caller. The reactor does not call it, so on a
// reactor-owned connection a partial message stays in the table until the
// connection closes.
type Decoder struct {
	mu sync.Mutex

	buf []byte

	reassembly *gocache.Cache // message_id (decimal string) -> *reassemblyEntry
	timeout    time.Duration

	messages     []MessageComplete
	streamEvents []StreamEvent

	stats Stats
}

// NewDecoder creates a Decoder with the given reassembly timeout. The
// underlying table runs no background janitor goroutine: entries are only
// ever removed by CleanupTimeoutMessages or Reset.
func NewDecoder(reassemblyTimeout time.Duration) *Decoder {
	if reassemblyTimeout <= 0 {
		reassemblyTimeout = DefaultReassemblyTimeout
	}
	return &Decoder{
		reassembly: gocache.New(gocache.NoExpiration, 0),
		timeout:    reassemblyTimeout,
	}
}

// Feed appends data to the rolling input buffer and drains as many complete
// frames as are available. It returns a *ProtocolError only for irrecoverable
// framing violations; CRC failures and short buffers are not errors.
func (d *Decoder) Feed(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.buf = append(d.buf, data...)
	d.stats.BytesReceived += uint64(len(data))

	for {
		if len(d.buf) < HeaderSize {
			break
		}
		if d.buf[0] != magic1 || d.buf[1] != magic2 {
			return &ProtocolError{Reason: "bad magic"}
		}
		if d.buf[2] != version {
			return &ProtocolError{Reason: "unsupported version"}
		}
		payloadLen := binary.LittleEndian.Uint32(d.buf[6:10])
		if payloadLen > MaxFramePayload {
			return &ProtocolError{Reason: "payload_len exceeds maximum"}
		}
		total := HeaderSize + int(payloadLen)
		if len(d.buf) < total {
			break // incomplete trailing frame; wait for more bytes
		}

		hdr := Header{
			Type:       FrameType(d.buf[3]),
			Flags:      binary.LittleEndian.Uint16(d.buf[4:6]),
			PayloadLen: payloadLen,
		}
		if !hdr.Type.valid() {
			return &ProtocolError{Reason: "unknown frame type"}
		}
		payload := make([]byte, payloadLen)
		copy(payload, d.buf[HeaderSize:total])
		d.buf = d.buf[total:]
		d.stats.FramesReceived++

		if hdr.HasCRC() && len(payload) >= crcSize {
			body := payload[:len(payload)-crcSize]
			want := binary.LittleEndian.Uint32(payload[len(payload)-crcSize:])
			if crc32.ChecksumIEEE(body) != want {
				d.stats.CRCErrors++
				continue // silently drop the corrupt frame
			}
			payload = body
		}

		d.dispatch(hdr.Type, payload)
	}

	d.stats.BufferSize = len(d.buf)
	return nil
}

func (d *Decoder) dispatch(t FrameType, payload []byte) {
	switch t {
	case TypeMessage:
		d.dispatchMessage(payload)
	case TypeStreamStart:
		if len(payload) < 16 {
			return
		}
		d.streamEvents = append(d.streamEvents, StreamEvent{
			Type:      TypeStreamStart,
			StreamID:  binary.LittleEndian.Uint64(payload[0:8]),
			TotalSize: binary.LittleEndian.Uint64(payload[8:16]),
		})
		d.stats.StreamEvents++
	case TypeStreamChunk:
		if len(payload) < 16 {
			return
		}
		chunk := make([]byte, len(payload)-16)
		copy(chunk, payload[16:])
		d.streamEvents = append(d.streamEvents, StreamEvent{
			Type:     TypeStreamChunk,
			StreamID: binary.LittleEndian.Uint64(payload[0:8]),
			Offset:   binary.LittleEndian.Uint64(payload[8:16]),
			Data:     chunk,
		})
		d.stats.StreamEvents++
	case TypeStreamEnd:
		if len(payload) < 12 {
			return
		}
		d.streamEvents = append(d.streamEvents, StreamEvent{
			Type:     TypeStreamEnd,
			StreamID: binary.LittleEndian.Uint64(payload[0:8]),
			CRC32:    binary.LittleEndian.Uint32(payload[8:12]),
		})
		d.stats.StreamEvents++
	}
}

func (d *Decoder) dispatchMessage(payload []byte) {
	if len(payload) < messageHeaderSize {
		return
	}
	messageID := binary.LittleEndian.Uint64(payload[0:8])
	totalSlices := binary.LittleEndian.Uint16(payload[8:10])
	seq := binary.LittleEndian.Uint16(payload[10:12])
	userBytes := payload[messageHeaderSize:]

	key := strconv.FormatUint(messageID, 10)

	var entry *reassemblyEntry
	if cached, ok := d.reassembly.Get(key); ok {
		entry = cached.(*reassemblyEntry)
	} else {
		entry = &reassemblyEntry{
			totalSlices: totalSlices,
			slices:      make([][]byte, totalSlices),
			firstSeen:   time.Now(),
		}
		d.reassembly.Set(key, entry, gocache.NoExpiration)
	}

	if int(seq) >= len(entry.slices) || entry.slices[seq] != nil {
		return // out-of-range or duplicate slice
	}
	data := make([]byte, len(userBytes))
	copy(data, userBytes)
	entry.slices[seq] = data
	entry.receivedCount++

	if entry.receivedCount == int(entry.totalSlices) {
		full := make([]byte, 0, len(userBytes)*int(entry.totalSlices))
		for _, s := range entry.slices {
			full = append(full, s...)
		}
		d.messages = append(d.messages, MessageComplete{MessageID: messageID, Data: full})
		d.stats.MessagesCompleted++
		d.reassembly.Delete(key)
	}
}

// GetMessage pops the oldest completed message, if any.
func (d *Decoder) GetMessage() (MessageComplete, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.messages) == 0 {
		return MessageComplete{}, false
	}
	m := d.messages[0]
	d.messages = d.messages[1:]
	return m, true
}

// GetStreamEvent pops the oldest pending stream event, if any.
func (d *Decoder) GetStreamEvent() (StreamEvent, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streamEvents) == 0 {
		return StreamEvent{}, false
	}
	e := d.streamEvents[0]
	d.streamEvents = d.streamEvents[1:]
	return e, true
}

// CleanupTimeoutMessages scans the reassembly table and drops entries older
// than the configured timeout, incrementing the timeout counter once per
// dropped entry. The Decoder never schedules this itself; callers should
// invoke it periodically (e.g. whenever a Feed drains nothing new).
func (d *Decoder) CleanupTimeoutMessages() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	dropped := 0
	for key, item := range d.reassembly.Items() {
		entry := item.Object.(*reassemblyEntry)
		if now.Sub(entry.firstSeen) > d.timeout {
			d.reassembly.Delete(key)
			d.stats.TimeoutCleanups++
			dropped++
		}
	}
	return dropped
}

// Reset clears all Decoder state: buffer, reassembly table, pending queues,
// and statistics.
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf = nil
	d.reassembly.Flush()
	d.messages = nil
	d.streamEvents = nil
	d.stats = Stats{}
}

// Stats returns a snapshot of the Decoder's counters.
func (d *Decoder) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.PendingReassembly = d.reassembly.ItemCount()
	s.BufferSize = len(d.buf)
	return s
}
