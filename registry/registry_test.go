package registry_test

import (
	"testing"
	"time"

	"github.com/hioload/netrt/api"
	"github.com/hioload/netrt/registry"
)

func TestPutGetRemove(t *testing.T) {
	r := registry.New(4)
	info := api.ConnectionInformation{
		ConnectionID: 1,
		PeerAddress:  "127.0.0.1",
		PeerPort:     9000,
		ConnectedAt:  time.Now(),
	}
	r.Put(info)

	got, ok := r.Get(1)
	if !ok || got.PeerAddress != "127.0.0.1" {
		t.Fatalf("got %+v, ok=%v", got, ok)
	}

	r.Remove(1)
	if _, ok := r.Get(1); ok {
		t.Fatal("expected entry to be gone after Remove")
	}
}

func TestCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	r := registry.New(2)
	r.Put(api.ConnectionInformation{ConnectionID: 1})
	r.Put(api.ConnectionInformation{ConnectionID: 2})
	r.Put(api.ConnectionInformation{ConnectionID: 3}) // evicts 1

	if _, ok := r.Get(1); ok {
		t.Fatal("expected connection 1 to be evicted")
	}
	if _, ok := r.Get(2); !ok {
		t.Fatal("expected connection 2 to remain")
	}
	if _, ok := r.Get(3); !ok {
		t.Fatal("expected connection 3 to remain")
	}
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
}
