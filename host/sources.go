package host

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/okx/fault-proof-client/eth"
)

// ErrSourceMiss is returned when a chain source has no data for a request.
var ErrSourceMiss = errors.New("not found in chain source")

// L1Source supplies L1 data to the prefetcher.
type L1Source interface {
	HeaderRLP(hash common.Hash) ([]byte, error)
	// Transactions returns the block's opaque transaction envelopes.
	Transactions(hash common.Hash) ([][]byte, error)
	// Receipts returns the block's consensus receipt encodings.
	Receipts(hash common.Hash) ([][]byte, error)
	// Blob returns the commitment and blob for a versioned hash and index.
	Blob(versionedHash common.Hash, index uint64) ([]byte, *eth.Blob, error)
}

// L2Source supplies L2 data to the prefetcher.
type L2Source interface {
	HeaderRLP(hash common.Hash) ([]byte, error)
	Transactions(hash common.Hash) ([][]byte, error)
	// Output returns the output-root preimage for an output root.
	Output(root common.Hash) ([]byte, error)
	// StateNodes returns the full state node store, keyed by node hash.
	StateNodes() map[common.Hash][]byte
	// Code returns contract code by code hash.
	Code(hash common.Hash) ([]byte, error)
}

// StaticChain is an in-memory L1Source and L2Source fed by tests and local
// runs.
type StaticChain struct {
	mu       sync.RWMutex
	headers  map[common.Hash][]byte
	txs      map[common.Hash][][]byte
	receipts map[common.Hash][][]byte
	blobs    map[common.Hash]map[uint64]staticBlob
	outputs  map[common.Hash][]byte
	nodes    map[common.Hash][]byte
	codes    map[common.Hash][]byte
}

type staticBlob struct {
	commitment []byte
	blob       *eth.Blob
}

// NewStaticChain creates an empty chain source.
func NewStaticChain() *StaticChain {
	return &StaticChain{
		headers:  make(map[common.Hash][]byte),
		txs:      make(map[common.Hash][][]byte),
		receipts: make(map[common.Hash][][]byte),
		blobs:    make(map[common.Hash]map[uint64]staticBlob),
		outputs:  make(map[common.Hash][]byte),
		nodes:    make(map[common.Hash][]byte),
		codes:    make(map[common.Hash][]byte),
	}
}

// AddHeader stores a header's RLP under its hash.
func (c *StaticChain) AddHeader(hash common.Hash, headerRLP []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[hash] = headerRLP
}

// AddTransactions stores a block's opaque transactions.
func (c *StaticChain) AddTransactions(hash common.Hash, txs [][]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txs[hash] = txs
}

// AddReceipts stores a block's receipt encodings.
func (c *StaticChain) AddReceipts(hash common.Hash, receipts [][]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts[hash] = receipts
}

// AddBlob stores a blob and its commitment under a versioned hash and index.
func (c *StaticChain) AddBlob(versionedHash common.Hash, index uint64, commitment []byte, blob *eth.Blob) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.blobs[versionedHash] == nil {
		c.blobs[versionedHash] = make(map[uint64]staticBlob)
	}
	c.blobs[versionedHash][index] = staticBlob{commitment: commitment, blob: blob}
}

// AddOutput stores an output-root preimage.
func (c *StaticChain) AddOutput(root common.Hash, preimage []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs[root] = preimage
}

// AddStateNodes merges trie nodes into the state node store.
func (c *StaticChain) AddStateNodes(nodes map[common.Hash][]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for h, n := range nodes {
		c.nodes[h] = n
	}
}

// AddCode stores contract code under its hash.
func (c *StaticChain) AddCode(hash common.Hash, code []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[hash] = code
}

// HeaderRLP implements L1Source and L2Source.
func (c *StaticChain) HeaderRLP(hash common.Hash) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.headers[hash]
	if !ok {
		return nil, ErrSourceMiss
	}
	return h, nil
}

// Transactions implements L1Source and L2Source.
func (c *StaticChain) Transactions(hash common.Hash) ([][]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	txs, ok := c.txs[hash]
	if !ok {
		return nil, ErrSourceMiss
	}
	return txs, nil
}

// Receipts implements L1Source.
func (c *StaticChain) Receipts(hash common.Hash) ([][]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.receipts[hash]
	if !ok {
		return nil, ErrSourceMiss
	}
	return r, nil
}

// Blob implements L1Source.
func (c *StaticChain) Blob(versionedHash common.Hash, index uint64) ([]byte, *eth.Blob, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.blobs[versionedHash][index]
	if !ok {
		return nil, nil, ErrSourceMiss
	}
	return b.commitment, b.blob, nil
}

// Output implements L2Source.
func (c *StaticChain) Output(root common.Hash) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.outputs[root]
	if !ok {
		return nil, ErrSourceMiss
	}
	return o, nil
}

// StateNodes implements L2Source.
func (c *StaticChain) StateNodes() map[common.Hash][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[common.Hash][]byte, len(c.nodes))
	for h, n := range c.nodes {
		out[h] = n
	}
	return out
}

// Code implements L2Source.
func (c *StaticChain) Code(hash common.Hash) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	code, ok := c.codes[hash]
	if !ok {
		return nil, ErrSourceMiss
	}
	return code, nil
}
