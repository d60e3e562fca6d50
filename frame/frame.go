// File: frame/frame.go
// Author: momentics <momentics@gmail.com>
//
// Package frame implements the wire framing above the raw byte stream:
// fixed 16-byte headers, message fragmentation/reassembly, stream events,
// and optional CRC-32 integrity. It replaces the WebSocket-specific framing
// this module started from with a bespoke, length-prefixed binary format.
package frame

import "fmt"

// FrameType identifies the kind of payload a frame carries.
type FrameType uint8

const (
	TypeMessage     FrameType = 0x01
	TypeStreamStart FrameType = 0x02
	TypeStreamChunk FrameType = 0x03
	TypeStreamEnd   FrameType = 0x04
)

func (t FrameType) valid() bool {
	switch t {
	case TypeMessage, TypeStreamStart, TypeStreamChunk, TypeStreamEnd:
		return true
	default:
		return false
	}
}

func (t FrameType) String() string {
	switch t {
	case TypeMessage:
		return "Message"
	case TypeStreamStart:
		return "StreamStart"
	case TypeStreamChunk:
		return "StreamChunk"
	case TypeStreamEnd:
		return "StreamEnd"
	default:
		return fmt.Sprintf("FrameType(%#02x)", uint8(t))
	}
}

const (
	magic1  = 0x5A
	magic2  = 0x5C
	version = 0x01

	// FlagCRC32Present marks that the last 4 bytes of the payload are a
	// CRC-32 checksum over the preceding payload bytes.
	FlagCRC32Present uint16 = 1 << 0

	// HeaderSize is the fixed on-wire header length.
	HeaderSize = 16

	// MaxFramePayload is the largest payload a single frame may carry.
	MaxFramePayload = 262144

	// MaxMessageSlices bounds how many frames one logical message may split into.
	MaxMessageSlices = 65535

	crcSize = 4
)

// Header is the fixed-size frame header, exactly HeaderSize bytes on the wire.
type Header struct {
	Type       FrameType
	Flags      uint16
	PayloadLen uint32
}

// Frame is a decoded header paired with its payload bytes.
type Frame struct {
	Header  Header
	Payload []byte
}

// HasCRC reports whether the frame's flags mark a trailing CRC-32.
func (h Header) HasCRC() bool { return h.Flags&FlagCRC32Present != 0 }

// ProtocolError marks an irrecoverable framing violation (bad magic,
// version, or an impossible declared length). It is fatal for the
// connection that produced it, never for the Decoder's caller's process.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "frame: protocol error: " + e.Reason }
