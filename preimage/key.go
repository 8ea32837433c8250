// Package preimage implements the client side of the preimage oracle
// protocol: typed content-addressed keys, the wire-level oracle reader,
// an in-memory caching layer, and the hint side channel.
package preimage

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyType identifies the hashing discipline of a preimage key.
// It occupies the high byte of every 32-byte key.
type KeyType byte

const (
	// LocalKeyType keys address boot slots. They are authenticated by the
	// host environment, not by hashing.
	LocalKeyType KeyType = 1
	// Keccak256KeyType keys hold the truncated keccak256 of the preimage.
	Keccak256KeyType KeyType = 2
	// GlobalGenericKeyType keys are host-defined global data.
	GlobalGenericKeyType KeyType = 3
	// Sha256KeyType keys hold the truncated sha256 of the preimage.
	Sha256KeyType KeyType = 4
	// BlobKeyType keys locate a blob by keccak256(commitment || index).
	BlobKeyType KeyType = 5
	// PrecompileKeyType keys locate an oracle-accelerated precompile result
	// by keccak256(address || input).
	PrecompileKeyType KeyType = 6
)

// Key is a 32-byte preimage oracle key. The first byte is the KeyType, the
// remaining 31 bytes are the content hash (truncated) or a structured
// locator.
type Key [32]byte

// Type returns the key's type tag.
func (k Key) Type() KeyType {
	return KeyType(k[0])
}

// Bytes returns the key as a byte slice.
func (k Key) Bytes() []byte {
	return k[:]
}

// Hash returns the key as a common.Hash.
func (k Key) Hash() common.Hash {
	return common.Hash(k)
}

// KeyFromBytes decodes a 32-byte encoding back into a Key.
func KeyFromBytes(b []byte) (Key, error) {
	if len(b) != 32 {
		return Key{}, ErrInvalidKeyLength
	}
	var k Key
	copy(k[:], b)
	return k, nil
}

// LocalKey builds a Local key for the given boot slot. The slot id occupies
// the leading bytes of the 31-byte locator as a little-endian u64.
func LocalKey(ident uint64) Key {
	var k Key
	k[0] = byte(LocalKeyType)
	binary.LittleEndian.PutUint64(k[1:9], ident)
	return k
}

// Keccak256Key builds a Keccak256 key from the full hash of the preimage.
func Keccak256Key(h common.Hash) Key {
	k := Key(h)
	k[0] = byte(Keccak256KeyType)
	return k
}

// Sha256Key builds a Sha256 key from the full hash of the preimage.
func Sha256Key(h common.Hash) Key {
	k := Key(h)
	k[0] = byte(Sha256KeyType)
	return k
}

// BlobKey builds a Blob key from keccak256(commitment || index).
func BlobKey(h common.Hash) Key {
	k := Key(h)
	k[0] = byte(BlobKeyType)
	return k
}

// PrecompileKey builds a Precompile key from keccak256(address || input).
func PrecompileKey(h common.Hash) Key {
	k := Key(h)
	k[0] = byte(PrecompileKeyType)
	return k
}

// Verify checks the returned preimage bytes against the key's hashing
// discipline. Local and GlobalGeneric keys are authenticated by the host and
// always pass. Blob and Precompile keys commit to the request tuple rather
// than the response, so the hash check applies to the locator preimage that
// produced them and is performed by the caller that constructed the key.
func (k Key) Verify(data []byte) error {
	switch k.Type() {
	case LocalKeyType, GlobalGenericKeyType, BlobKeyType, PrecompileKeyType:
		return nil
	case Keccak256KeyType:
		h := crypto.Keccak256Hash(data)
		if !truncatedEqual(k, h) {
			return ErrKeyMismatch
		}
		return nil
	case Sha256KeyType:
		h := common.Hash(sha256.Sum256(data))
		if !truncatedEqual(k, h) {
			return ErrKeyMismatch
		}
		return nil
	default:
		return ErrInvalidKeyType
	}
}

// truncatedEqual compares the 31 locator bytes of the key against the hash.
func truncatedEqual(k Key, h common.Hash) bool {
	for i := 1; i < 32; i++ {
		if k[i] != h[i] {
			return false
		}
	}
	return true
}
