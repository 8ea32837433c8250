package preimage

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Oracle is a content-addressed read-only view of the host's preimage store.
// Every byte stream returned by Get has been verified against the key's
// hashing discipline before it is exposed to the caller.
type Oracle interface {
	// Get returns the preimage for the given key.
	Get(key Key) ([]byte, error)
	// GetExact reads the preimage for the given key into buf and errors if
	// the preimage size differs from len(buf).
	GetExact(key Key, buf []byte) error
}

// OracleClient reads preimages over the host read channel: it writes the
// 32-byte key and reads back an 8-byte big-endian length followed by the
// preimage bytes.
type OracleClient struct {
	rw io.ReadWriter
}

// NewOracleClient creates an OracleClient over the given host channel.
func NewOracleClient(rw io.ReadWriter) *OracleClient {
	return &OracleClient{rw: rw}
}

// Get implements Oracle.
func (o *OracleClient) Get(key Key) ([]byte, error) {
	if _, err := o.rw.Write(key[:]); err != nil {
		return nil, fmt.Errorf("write preimage key: %w", err)
	}
	var lenBuf [8]byte
	if _, err := io.ReadFull(o.rw, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("read preimage length: %w", err)
	}
	length := binary.BigEndian.Uint64(lenBuf[:])
	data := make([]byte, length)
	if _, err := io.ReadFull(o.rw, data); err != nil {
		return nil, fmt.Errorf("read preimage data: %w", err)
	}
	if err := key.Verify(data); err != nil {
		return nil, fmt.Errorf("preimage for key %x: %w", key, err)
	}
	return data, nil
}

// GetExact implements Oracle.
func (o *OracleClient) GetExact(key Key, buf []byte) error {
	data, err := o.Get(key)
	if err != nil {
		return err
	}
	if len(data) != len(buf) {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrWrongSize, len(data), len(buf))
	}
	copy(buf, data)
	return nil
}

// CachingOracle wraps an Oracle with an in-memory cache. A call is served
// from cache if present; otherwise it is fetched, verified, inserted and
// returned. The cache may be seeded at construction with a prebuilt preimage
// map, for hosts that can supply the full working set up front.
//
// Returned slices are copies: cache inserts never invalidate bytes already
// handed to callers.
type CachingOracle struct {
	inner Oracle
	cache map[Key][]byte
}

// NewCachingOracle creates a CachingOracle over the inner oracle, optionally
// seeded with prebuilt preimages. Seeded entries are verified on insert.
func NewCachingOracle(inner Oracle, prebuilt map[Key][]byte) (*CachingOracle, error) {
	cache := make(map[Key][]byte, len(prebuilt))
	for k, v := range prebuilt {
		if err := k.Verify(v); err != nil {
			return nil, fmt.Errorf("prebuilt preimage for key %x: %w", k, err)
		}
		cache[k] = append([]byte(nil), v...)
	}
	return &CachingOracle{inner: inner, cache: cache}, nil
}

// Get implements Oracle.
func (o *CachingOracle) Get(key Key) ([]byte, error) {
	if data, ok := o.cache[key]; ok {
		return append([]byte(nil), data...), nil
	}
	data, err := o.inner.Get(key)
	if err != nil {
		return nil, err
	}
	o.cache[key] = data
	return append([]byte(nil), data...), nil
}

// GetExact implements Oracle.
func (o *CachingOracle) GetExact(key Key, buf []byte) error {
	data, err := o.Get(key)
	if err != nil {
		return err
	}
	if len(data) != len(buf) {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrWrongSize, len(data), len(buf))
	}
	copy(buf, data)
	return nil
}
