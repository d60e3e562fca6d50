// File: api/events.go
// Author: momentics <momentics@gmail.com>
//
// NetworkEvent is the only type shared across the Reactor<->Worker boundary.

package api

// NetworkEventType tags the union carried by NetworkEvent.
type NetworkEventType int

const (
	EventConnected NetworkEventType = iota
	EventData
	EventDisconnected
	EventError
)

// String renders a human-readable event type name, used in log fields.
func (t NetworkEventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventData:
		return "data"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// NetworkEvent is the tagged union produced by a Reactor and consumed by a
// WorkerPool (or, for the Client façade, invoked directly on the reactor's
// loop thread). At most one of Payload/Info/Err is meaningful, depending on
// Type; EventDisconnected carries none of them.
type NetworkEvent struct {
	Type         NetworkEventType
	ConnectionID uint64
	Payload      []byte                // EventData
	Info         ConnectionInformation // EventConnected
	Err          *NetworkError         // EventError
}
