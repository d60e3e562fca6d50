// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package api defines the types shared across the reactor, worker pool,
// connection registry and façades: the network event union, the structured network
// error, and the connection-information DTO that is safe to hand to worker
// threads and user callbacks.
package api
