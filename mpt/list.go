package mpt

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// Ordered list tries commit to transaction and receipt lists: entry i is
// stored under rlp(i). WriteTrie builds the trie and returns its node set so
// a host can hand the list to the client preimage by preimage; ReadTrie
// walks it back out of an oracle.

// WriteTrie builds an ordered list trie over the opaque values and returns
// the root with the encodings of all nodes.
func WriteTrie(values [][]byte) (common.Hash, map[common.Hash][]byte, error) {
	t := New(EmptyRoot, nil)
	for i, value := range values {
		key, err := rlp.EncodeToBytes(uint64(i))
		if err != nil {
			return common.Hash{}, nil, err
		}
		if err := t.Update(key, value); err != nil {
			return common.Hash{}, nil, fmt.Errorf("insert list entry %d: %w", i, err)
		}
	}
	return t.Commit()
}

// ListRoot computes the root of an ordered list trie over the opaque values.
func ListRoot(values [][]byte) (common.Hash, error) {
	root, _, err := WriteTrie(values)
	return root, err
}

// ReadTrie walks an ordered list trie from its root, resolving nodes through
// the fetcher, and returns the values in list order.
func ReadTrie(root common.Hash, fetch NodeFetcher) ([][]byte, error) {
	if root == EmptyRoot || root == (common.Hash{}) {
		return nil, nil
	}
	t := New(root, fetch)
	var values [][]byte
	for i := uint64(0); ; i++ {
		key, err := rlp.EncodeToBytes(i)
		if err != nil {
			return nil, err
		}
		value, err := t.Get(key)
		if err != nil {
			return nil, fmt.Errorf("read list entry %d: %w", i, err)
		}
		if value == nil {
			break
		}
		values = append(values, value)
	}
	return values, nil
}
