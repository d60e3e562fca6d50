// File: connid/connid.go
// Author: momentics <momentics@gmail.com>
//
// Generation and parsing of the opaque 64-bit connection identifier that
// crosses thread boundaries. Layout: [24 bits YYMMDD | 8 bits reactor-id |
// 16 bits fd-hint | 16 bits sequence]. Callers must treat the value as
// opaque except for ReactorID, which is used to route a cross-thread
// SendData call to the connection's owning reactor.
package connid

import "time"

// Generate builds a connection id for the current date, given the owning
// reactor's id, a hint derived from the connection's file descriptor, and a
// monotonic per-(date,reactor) sequence number. Ids are unique within one
// (date, reactor) pair as long as the caller increments seq for every
// accepted/connected descriptor; seq is 16 bits, so it wraps after 65536
// connections.
func Generate(reactorID uint8, fdHint uint16, seq uint16) uint64 {
	date := uint64(currentDate() & 0xFFFFFF)
	return (date << 40) |
		(uint64(reactorID) << 32) |
		(uint64(fdHint) << 16) |
		uint64(seq)
}

// Parse decomposes a connection id into its constituent fields.
func Parse(id uint64) (date uint32, reactorID uint8, fdHint uint16, seq uint16) {
	date = uint32((id >> 40) & 0xFFFFFF)
	reactorID = uint8((id >> 32) & 0xFF)
	fdHint = uint16((id >> 16) & 0xFFFF)
	seq = uint16(id & 0xFFFF)
	return
}

// ReactorID extracts the owning reactor's id from a connection id, used for
// routing SendData calls made from a foreign thread.
func ReactorID(id uint64) uint8 {
	return uint8((id >> 32) & 0xFF)
}

// currentDate returns today's date packed as YYMMDD (e.g. 2026-08-02 -> 260802).
func currentDate() uint32 {
	now := time.Now()
	return uint32((now.Year()%100)*10000 + int(now.Month())*100 + now.Day())
}
