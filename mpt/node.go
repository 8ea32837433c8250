// Package mpt implements the hash-addressed Merkle Patricia Trie used for
// stateless execution: nodes are canonical Ethereum trie RLP, addressed by
// the keccak256 of their encoding, and resolved on demand from the preimage
// oracle.
package mpt

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// node is a trie node in its expanded form.
type node interface{}

// fullNode is a 17-item branch: one child per hex nibble plus a value slot.
type fullNode struct {
	Children [17]node
}

// shortNode is a leaf or extension: a hex-nibble key segment and either a
// value (leaf, key carries the terminator) or a child (extension).
type shortNode struct {
	Key []byte
	Val node
}

// hashNode references an unresolved child by the keccak256 of its encoding.
type hashNode []byte

// valueNode is a stored value.
type valueNode []byte

// rawNode is an already-encoded node embedded in its parent because its
// encoding is shorter than 32 bytes.
type rawNode []byte

const terminator = 16

// keyToNibbles expands a byte key to hex nibbles with a terminator.
func keyToNibbles(key []byte) []byte {
	nibbles := make([]byte, len(key)*2+1)
	for i, b := range key {
		nibbles[i*2] = b >> 4
		nibbles[i*2+1] = b & 0x0f
	}
	nibbles[len(nibbles)-1] = terminator
	return nibbles
}

// hasTerminator reports whether the nibble key ends in the terminator.
func hasTerminator(nibbles []byte) bool {
	return len(nibbles) > 0 && nibbles[len(nibbles)-1] == terminator
}

// hexToCompact applies the hex-prefix encoding to a nibble key.
func hexToCompact(hex []byte) []byte {
	term := byte(0)
	if hasTerminator(hex) {
		term = 1
		hex = hex[:len(hex)-1]
	}
	buf := make([]byte, len(hex)/2+1)
	buf[0] = term << 5
	if len(hex)&1 == 1 {
		buf[0] |= 1 << 4
		buf[0] |= hex[0]
		hex = hex[1:]
	}
	for i := 0; i < len(hex); i += 2 {
		buf[i/2+1] = hex[i]<<4 | hex[i+1]
	}
	return buf
}

// compactToHex reverses the hex-prefix encoding.
func compactToHex(compact []byte) []byte {
	if len(compact) == 0 {
		return nil
	}
	base := make([]byte, 0, len(compact)*2)
	for _, b := range compact {
		base = append(base, b>>4, b&0x0f)
	}
	// The flag nibble encodes the terminator and odd-length bits.
	flags := base[0]
	hex := base[2:]
	if flags&1 == 1 {
		hex = base[1:]
	}
	if flags&2 == 2 {
		hex = append(hex, terminator)
	}
	return hex
}

// prefixLen returns the length of the common prefix of a and b.
func prefixLen(a, b []byte) int {
	length := len(a)
	if len(b) < length {
		length = len(b)
	}
	for i := 0; i < length; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return length
}

// encodeNode encodes a node to its canonical RLP.
func encodeNode(n node) ([]byte, error) {
	switch n := n.(type) {
	case *fullNode:
		items := make([]rlp.RawValue, 17)
		for i := 0; i < 16; i++ {
			collapsed, err := collapseChild(n.Children[i])
			if err != nil {
				return nil, err
			}
			items[i] = collapsed
		}
		if v, ok := n.Children[16].(valueNode); ok {
			enc, err := rlp.EncodeToBytes([]byte(v))
			if err != nil {
				return nil, err
			}
			items[16] = enc
		} else {
			items[16] = emptyString
		}
		return rlp.EncodeToBytes(items)
	case *shortNode:
		var items [2]rlp.RawValue
		keyEnc, err := rlp.EncodeToBytes(hexToCompact(n.Key))
		if err != nil {
			return nil, err
		}
		items[0] = keyEnc
		if v, ok := n.Val.(valueNode); ok {
			enc, err := rlp.EncodeToBytes([]byte(v))
			if err != nil {
				return nil, err
			}
			items[1] = enc
		} else {
			collapsed, err := collapseChild(n.Val)
			if err != nil {
				return nil, err
			}
			items[1] = collapsed
		}
		return rlp.EncodeToBytes(items[:])
	default:
		return nil, fmt.Errorf("cannot encode node of type %T", n)
	}
}

// emptyString is the RLP of an empty byte string.
var emptyString = rlp.RawValue{0x80}

// collapseChild encodes a child reference: empty children collapse to an
// empty string, short encodings embed in place, everything else is a hash
// reference.
func collapseChild(child node) (rlp.RawValue, error) {
	switch c := child.(type) {
	case nil:
		return emptyString, nil
	case hashNode:
		return rlp.EncodeToBytes([]byte(c))
	case rawNode:
		return rlp.RawValue(c), nil
	default:
		enc, err := encodeNode(c)
		if err != nil {
			return nil, err
		}
		if len(enc) < 32 {
			return rlp.RawValue(enc), nil
		}
		return rlp.EncodeToBytes(crypto.Keccak256(enc))
	}
}

// decodeNode expands a canonical RLP node encoding.
func decodeNode(buf []byte) (node, error) {
	elems, _, err := rlp.SplitList(buf)
	if err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	switch c, _ := rlp.CountValues(elems); c {
	case 2:
		return decodeShort(elems)
	case 17:
		return decodeFull(elems)
	default:
		return nil, fmt.Errorf("decode node: invalid number of list elements: %v", c)
	}
}

func decodeShort(elems []byte) (node, error) {
	kbuf, rest, err := rlp.SplitString(elems)
	if err != nil {
		return nil, err
	}
	key := compactToHex(kbuf)
	if hasTerminator(key) {
		// Leaf node.
		val, _, err := rlp.SplitString(rest)
		if err != nil {
			return nil, err
		}
		return &shortNode{Key: key, Val: valueNode(val)}, nil
	}
	child, _, err := decodeRef(rest)
	if err != nil {
		return nil, err
	}
	return &shortNode{Key: key, Val: child}, nil
}

func decodeFull(elems []byte) (node, error) {
	n := &fullNode{}
	var err error
	for i := 0; i < 16; i++ {
		n.Children[i], elems, err = decodeRef(elems)
		if err != nil {
			return nil, err
		}
	}
	val, _, err := rlp.SplitString(elems)
	if err != nil {
		return nil, err
	}
	if len(val) > 0 {
		n.Children[16] = valueNode(val)
	}
	return n, nil
}

// decodeRef decodes a child reference: an embedded node, a 32-byte hash, or
// an empty string.
func decodeRef(buf []byte) (node, []byte, error) {
	kind, val, rest, err := rlp.Split(buf)
	if err != nil {
		return nil, nil, err
	}
	switch {
	case kind == rlp.List:
		// Embedded node; re-slice the full encoding including the header.
		size := len(buf) - len(rest)
		embedded, err := decodeNode(buf[:size])
		if err != nil {
			return nil, nil, err
		}
		return embedded, rest, nil
	case kind == rlp.String && len(val) == 0:
		return nil, rest, nil
	case kind == rlp.String && len(val) == 32:
		return hashNode(val), rest, nil
	default:
		return nil, nil, fmt.Errorf("invalid node reference of length %d", len(val))
	}
}
