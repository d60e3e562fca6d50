// File: api/handler.go
// Author: momentics <momentics@gmail.com>
//
// EventHandler is the callback signature invoked by a WorkerPool (or,
// absent a pool, inline on a Reactor's loop thread) for each NetworkEvent.

package api

// EventHandler processes a single NetworkEvent. Implementations that block
// meaningfully stall the worker (or reactor, for the direct-callback path)
// that owns the connection's shard, and with it every other connection
// routed to that worker or reactor; connections elsewhere are not blocked.
type EventHandler func(NetworkEvent)
