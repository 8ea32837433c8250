// Package host implements the host side of the preimage oracle protocol:
// an in-memory key-value store, the wire-level server over the two byte
// streams, and a hint-driven prefetcher that stages preimages from chain
// sources. It backs tests and local runs; production hosts plug their own
// sources into the same prefetcher.
package host

import (
	"errors"
	"sync"

	"github.com/okx/fault-proof-client/preimage"
)

// ErrNotFound is returned when a key has no preimage in the store.
var ErrNotFound = errors.New("preimage not found in kv store")

// KV is the host's preimage store.
type KV interface {
	Put(key preimage.Key, value []byte) error
	Get(key preimage.Key) ([]byte, error)
}

// MemKV is an in-memory KV safe for concurrent use: the server goroutines
// for the two channels share it.
type MemKV struct {
	mu sync.RWMutex
	m  map[preimage.Key][]byte
}

// NewMemKV creates an empty store.
func NewMemKV() *MemKV {
	return &MemKV{m: make(map[preimage.Key][]byte)}
}

// Put implements KV.
func (kv *MemKV) Put(key preimage.Key, value []byte) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.m[key] = append([]byte(nil), value...)
	return nil
}

// Get implements KV.
func (kv *MemKV) Get(key preimage.Key) ([]byte, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	v, ok := kv.m[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// All returns a copy of the full store, usable as a prebuilt preimage map.
func (kv *MemKV) All() map[preimage.Key][]byte {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	out := make(map[preimage.Key][]byte, len(kv.m))
	for k, v := range kv.m {
		out[k] = append([]byte(nil), v...)
	}
	return out
}
