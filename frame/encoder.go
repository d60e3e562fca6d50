// File: frame/encoder.go
// Author: momentics <momentics@gmail.com>

package frame

import (
	"encoding/binary"
	"hash/crc32"
)

// messageHeaderSize is the fixed prefix of a Message frame's payload:
// u64 message_id | u16 total_slices | u16 sequence.
const messageHeaderSize = 8 + 2 + 2

// maxSlicePayload is the largest user-byte slice a single Message frame can
// carry once its fixed prefix and optional CRC trailer are accounted for.
func maxSlicePayload(crc bool) int {
	n := MaxFramePayload - messageHeaderSize
	if crc {
		n -= crcSize
	}
	return n
}

// Encoder serializes messages and stream events into wire frames.
type Encoder struct{}

// NewEncoder returns a stateless Encoder. It is safe for concurrent use.
func NewEncoder() *Encoder { return &Encoder{} }

// EncodeMessage splits data into one or more Message frames, each carrying
// at most maxSlicePayload(crc) user bytes, sequentially numbered. It fails
// with a ProtocolError if the required slice count would exceed
// MaxMessageSlices.
func (e *Encoder) EncodeMessage(messageID uint64, data []byte, crc bool) ([]Frame, error) {
	sliceCap := maxSlicePayload(crc)
	total := (len(data) + sliceCap - 1) / sliceCap
	if total == 0 {
		total = 1 // an empty message still yields one (empty) slice
	}
	if total > MaxMessageSlices {
		return nil, &ProtocolError{Reason: "encode_message: slice count exceeds 65535"}
	}

	frames := make([]Frame, 0, total)
	for seq := 0; seq < total; seq++ {
		start := seq * sliceCap
		end := start + sliceCap
		if end > len(data) {
			end = len(data)
		}
		payload := make([]byte, messageHeaderSize, messageHeaderSize+end-start+crcSize)
		binary.LittleEndian.PutUint64(payload[0:8], messageID)
		binary.LittleEndian.PutUint16(payload[8:10], uint16(total))
		binary.LittleEndian.PutUint16(payload[10:12], uint16(seq))
		payload = append(payload, data[start:end]...)

		frames = append(frames, e.build(TypeMessage, payload, crc))
	}
	return frames, nil
}

// EncodeStreamStart builds a StreamStart frame. totalSize of 0 means unknown.
func (e *Encoder) EncodeStreamStart(streamID uint64, totalSize uint64) Frame {
	payload := make([]byte, 16)
	binary.LittleEndian.PutUint64(payload[0:8], streamID)
	binary.LittleEndian.PutUint64(payload[8:16], totalSize)
	return e.build(TypeStreamStart, payload, false)
}

// EncodeStreamChunk builds a StreamChunk frame carrying bytes at offset.
// It fails if the resulting frame payload would exceed MaxFramePayload.
func (e *Encoder) EncodeStreamChunk(streamID uint64, offset uint64, data []byte) (Frame, error) {
	if 16+len(data) > MaxFramePayload {
		return Frame{}, &ProtocolError{Reason: "encode_stream_chunk: payload exceeds ceiling"}
	}
	payload := make([]byte, 16, 16+len(data))
	binary.LittleEndian.PutUint64(payload[0:8], streamID)
	binary.LittleEndian.PutUint64(payload[8:16], offset)
	payload = append(payload, data...)
	return e.build(TypeStreamChunk, payload, false), nil
}

// EncodeStreamEnd builds a StreamEnd frame. crc32Value of 0 means "not
// validated"; pass the stream's accumulated checksum otherwise.
func (e *Encoder) EncodeStreamEnd(streamID uint64, crc32Value uint32) Frame {
	payload := make([]byte, 12)
	binary.LittleEndian.PutUint64(payload[0:8], streamID)
	binary.LittleEndian.PutUint32(payload[8:12], crc32Value)
	return e.build(TypeStreamEnd, payload, false)
}

// build assembles a Frame from a type and payload, optionally appending a
// trailing CRC-32 over the payload bytes built so far.
func (e *Encoder) build(t FrameType, payload []byte, crc bool) Frame {
	flags := uint16(0)
	if crc {
		sum := crc32.ChecksumIEEE(payload)
		var crcBytes [crcSize]byte
		binary.LittleEndian.PutUint32(crcBytes[:], sum)
		payload = append(payload, crcBytes[:]...)
		flags |= FlagCRC32Present
	}
	return Frame{
		Header: Header{
			Type:       t,
			Flags:      flags,
			PayloadLen: uint32(len(payload)),
		},
		Payload: payload,
	}
}

// SerializeFrames renders each Frame to its on-wire byte representation, in
// order, for caller-driven transmission (e.g. via sendbuffer.Buffer.Write).
func (e *Encoder) SerializeFrames(frames []Frame) [][]byte {
	out := make([][]byte, len(frames))
	for i, f := range frames {
		out[i] = serializeOne(f)
	}
	return out
}

func serializeOne(f Frame) []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	buf[0] = magic1
	buf[1] = magic2
	buf[2] = version
	buf[3] = byte(f.Header.Type)
	binary.LittleEndian.PutUint16(buf[4:6], f.Header.Flags)
	binary.LittleEndian.PutUint32(buf[6:10], f.Header.PayloadLen)
	// bytes 10..14 and 14..16 are reserved, left zero.
	copy(buf[HeaderSize:], f.Payload)
	return buf
}
