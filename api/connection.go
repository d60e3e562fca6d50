// File: api/connection.go
// Author: momentics <momentics@gmail.com>
//
// ConnectionInformation is the external, immutable counterpart of the
// internal (reactor-owned) connection. It never contains the file
// descriptor and is safe to share freely with worker threads and user code.

package api

import "time"

// ConnectionInformation describes a connection without exposing its fd.
type ConnectionInformation struct {
	ConnectionID uint64
	PeerAddress  string
	PeerPort     uint16
	IsUnixDomain bool
	ConnectedAt  time.Time
}
