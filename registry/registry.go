// File: registry/registry.go
// Author: momentics <momentics@gmail.com>
//
// ConnectionRegistry is the façade-level map from connection_id to
// ConnectionInformation, populated on Connected and removed on
// Disconnected/Error. It is bounded so a misbehaving peer cannot grow it
// without limit; eviction favors least-recently-used entries.
package registry

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/hioload/netrt/api"
)

// DefaultCapacity bounds the registry when New is given a non-positive
// capacity; the server façade always uses it.
const DefaultCapacity = 65536

// ConnectionRegistry maps connection_id to ConnectionInformation. Safe for
// concurrent use; the underlying LRU cache is internally synchronized.
type ConnectionRegistry struct {
	cache *lru.Cache
}

// New creates a ConnectionRegistry bounded at capacity entries (DefaultCapacity
// if capacity <= 0).
func New(capacity int) *ConnectionRegistry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, err := lru.New(capacity)
	if err != nil {
		// lru.New only fails for a non-positive size, which is excluded above.
		panic(err)
	}
	return &ConnectionRegistry{cache: cache}
}

// Put records or updates a connection's information.
func (r *ConnectionRegistry) Put(info api.ConnectionInformation) {
	r.cache.Add(info.ConnectionID, info)
}

// Get retrieves a connection's information, if still tracked.
func (r *ConnectionRegistry) Get(connectionID uint64) (api.ConnectionInformation, bool) {
	v, ok := r.cache.Get(connectionID)
	if !ok {
		return api.ConnectionInformation{}, false
	}
	return v.(api.ConnectionInformation), true
}

// Remove drops a connection's information, e.g. on Disconnected or Error.
func (r *ConnectionRegistry) Remove(connectionID uint64) {
	r.cache.Remove(connectionID)
}

// Len reports the number of tracked connections.
func (r *ConnectionRegistry) Len() int { return r.cache.Len() }
