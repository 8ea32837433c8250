package mpt

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// EmptyRoot is the root hash of an empty trie:
// keccak256(rlp("")).
var EmptyRoot = common.HexToHash("0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")

var (
	// ErrNodeMismatch is returned when a fetched node does not hash to the
	// requested hash.
	ErrNodeMismatch = errors.New("trie node does not match hash")

	// ErrMissingNode is returned when a node preimage is unavailable. This
	// is fatal for the client.
	ErrMissingNode = errors.New("missing trie node")
)

// NodeFetcher resolves a trie node's RLP encoding by the keccak256 of that
// encoding.
type NodeFetcher func(hash common.Hash) ([]byte, error)

// Trie is a Merkle Patricia Trie whose unresolved nodes are fetched on
// demand through a NodeFetcher. Writes build up in memory; Commit re-hashes
// the touched branches bottom-up and yields the new root together with the
// encodings of every new node.
type Trie struct {
	root  node
	fetch NodeFetcher
	// committed holds node encodings produced by Commit, so reads keep
	// working after children collapse to hash references.
	committed map[common.Hash][]byte
}

// New opens a trie at the given root. An EmptyRoot (or zero) root starts an
// empty trie.
func New(root common.Hash, fetch NodeFetcher) *Trie {
	t := &Trie{fetch: fetch}
	if root != (common.Hash{}) && root != EmptyRoot {
		t.root = hashNode(root.Bytes())
	}
	return t
}

// Get returns the value stored under key, or nil if absent.
func (t *Trie) Get(key []byte) ([]byte, error) {
	return t.get(t.root, keyToNibbles(key))
}

func (t *Trie) get(n node, nibbles []byte) ([]byte, error) {
	switch n := n.(type) {
	case nil:
		return nil, nil
	case valueNode:
		return n, nil
	case hashNode:
		resolved, err := t.resolve(n)
		if err != nil {
			return nil, err
		}
		return t.get(resolved, nibbles)
	case rawNode:
		decoded, err := decodeNode(n)
		if err != nil {
			return nil, err
		}
		return t.get(decoded, nibbles)
	case *shortNode:
		if hasTerminator(n.Key) {
			if bytes.Equal(n.Key, nibbles) {
				return n.Val.(valueNode), nil
			}
			return nil, nil
		}
		if len(nibbles) < len(n.Key) || !bytes.Equal(nibbles[:len(n.Key)], n.Key) {
			return nil, nil
		}
		return t.get(n.Val, nibbles[len(n.Key):])
	case *fullNode:
		if len(nibbles) == 0 {
			return nil, nil
		}
		if nibbles[0] == terminator {
			if v, ok := n.Children[16].(valueNode); ok {
				return v, nil
			}
			return nil, nil
		}
		return t.get(n.Children[nibbles[0]], nibbles[1:])
	default:
		return nil, fmt.Errorf("unknown node type %T", n)
	}
}

// Update stores value under key. Empty values are not supported; the
// executor never deletes accounts.
func (t *Trie) Update(key, value []byte) error {
	if len(value) == 0 {
		return errors.New("empty values are not supported")
	}
	newRoot, err := t.insert(t.root, keyToNibbles(key), valueNode(value))
	if err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

func (t *Trie) insert(n node, nibbles []byte, value valueNode) (node, error) {
	switch n := n.(type) {
	case nil:
		return &shortNode{Key: nibbles, Val: value}, nil
	case hashNode:
		resolved, err := t.resolve(n)
		if err != nil {
			return nil, err
		}
		return t.insert(resolved, nibbles, value)
	case rawNode:
		decoded, err := decodeNode(n)
		if err != nil {
			return nil, err
		}
		return t.insert(decoded, nibbles, value)
	case *shortNode:
		matchlen := prefixLen(n.Key, nibbles)
		// Full key match replaces the value or recurses into the child.
		if matchlen == len(n.Key) {
			if hasTerminator(n.Key) {
				if bytes.Equal(n.Key, nibbles) {
					return &shortNode{Key: n.Key, Val: value}, nil
				}
			} else {
				child, err := t.insert(n.Val, nibbles[matchlen:], value)
				if err != nil {
					return nil, err
				}
				return &shortNode{Key: n.Key, Val: child}, nil
			}
		}
		// Split: branch at the divergence point.
		branch := &fullNode{}
		t.attach(branch, n.Key[matchlen:], n.Val)
		t.attach(branch, nibbles[matchlen:], value)
		if matchlen == 0 {
			return branch, nil
		}
		return &shortNode{Key: nibbles[:matchlen], Val: branch}, nil
	case *fullNode:
		if len(nibbles) == 0 || nibbles[0] == terminator {
			n.Children[16] = value
			return n, nil
		}
		child, err := t.insert(n.Children[nibbles[0]], nibbles[1:], value)
		if err != nil {
			return nil, err
		}
		n.Children[nibbles[0]] = child
		return n, nil
	default:
		return nil, fmt.Errorf("unknown node type %T", n)
	}
}

// attach hangs the remainder of a short node (or a value) off a branch.
func (t *Trie) attach(branch *fullNode, nibbles []byte, val node) {
	if len(nibbles) == 0 || nibbles[0] == terminator {
		branch.Children[16] = val
		return
	}
	idx := nibbles[0]
	rest := nibbles[1:]
	if len(rest) == 0 {
		// An extension with an empty key collapses to its child.
		branch.Children[idx] = val
		return
	}
	branch.Children[idx] = &shortNode{Key: rest, Val: val}
}

// Hash computes the current root hash without keeping the node set.
func (t *Trie) Hash() (common.Hash, error) {
	root, _, err := t.commit()
	return root, err
}

// Commit re-encodes every dirty branch bottom-up and returns the new root
// hash together with the encodings of all nodes reachable without fetching.
func (t *Trie) Commit() (common.Hash, map[common.Hash][]byte, error) {
	return t.commit()
}

func (t *Trie) commit() (common.Hash, map[common.Hash][]byte, error) {
	if t.root == nil {
		return EmptyRoot, nil, nil
	}
	if h, ok := t.root.(hashNode); ok {
		return common.BytesToHash(h), nil, nil
	}
	nodes := make(map[common.Hash][]byte)
	enc, err := t.encodeCollect(t.root, nodes)
	if err != nil {
		return common.Hash{}, nil, err
	}
	root := crypto.Keccak256Hash(enc)
	nodes[root] = enc
	if t.committed == nil {
		t.committed = make(map[common.Hash][]byte)
	}
	for h, n := range nodes {
		t.committed[h] = n
	}
	return root, nodes, nil
}

// encodeCollect encodes a node, recording every >=32-byte encoding by hash.
func (t *Trie) encodeCollect(n node, nodes map[common.Hash][]byte) ([]byte, error) {
	switch n := n.(type) {
	case *fullNode:
		for i := 0; i < 16; i++ {
			child := n.Children[i]
			if child == nil {
				continue
			}
			if _, ok := child.(hashNode); ok {
				continue
			}
			enc, err := t.encodeCollect(child, nodes)
			if err != nil {
				return nil, err
			}
			if len(enc) >= 32 {
				h := crypto.Keccak256Hash(enc)
				nodes[h] = enc
				n.Children[i] = hashNode(h.Bytes())
			} else {
				n.Children[i] = rawNode(enc)
			}
		}
		return encodeNode(n)
	case *shortNode:
		switch n.Val.(type) {
		case valueNode, hashNode, nil:
		default:
			enc, err := t.encodeCollect(n.Val, nodes)
			if err != nil {
				return nil, err
			}
			if len(enc) >= 32 {
				h := crypto.Keccak256Hash(enc)
				nodes[h] = enc
				n.Val = hashNode(h.Bytes())
			} else {
				n.Val = rawNode(enc)
			}
		}
		return encodeNode(n)
	case rawNode:
		return n, nil
	default:
		return nil, fmt.Errorf("cannot commit node of type %T", n)
	}
}

// resolve fetches and verifies a referenced node.
func (t *Trie) resolve(h hashNode) (node, error) {
	hash := common.BytesToHash(h)
	if data, ok := t.committed[hash]; ok {
		return decodeNode(data)
	}
	if t.fetch == nil {
		return nil, fmt.Errorf("%w: %x", ErrMissingNode, []byte(h))
	}
	data, err := t.fetch(hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingNode, hash, err)
	}
	if crypto.Keccak256Hash(data) != hash {
		return nil, fmt.Errorf("%w: %s", ErrNodeMismatch, hash)
	}
	return decodeNode(data)
}

// SecureKey hashes a raw key the way Ethereum state tries do.
func SecureKey(key []byte) []byte {
	return crypto.Keccak256(key)
}
