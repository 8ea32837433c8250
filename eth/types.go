// Package eth holds the Ethereum-family chain types shared by the providers,
// the derivation pipeline and the executor: block references, sealed headers,
// blob references and the rollup deposit transaction envelope.
package eth

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// BlockID identifies a block by hash and number.
type BlockID struct {
	Hash   common.Hash `json:"hash"`
	Number uint64      `json:"number"`
}

// BlockInfo is the minimal view of a block used across the pipeline.
type BlockInfo struct {
	Hash       common.Hash `json:"hash"`
	Number     uint64      `json:"number"`
	ParentHash common.Hash `json:"parentHash"`
	Time       uint64      `json:"timestamp"`
}

// ID returns the block's BlockID.
func (b BlockInfo) ID() BlockID {
	return BlockID{Hash: b.Hash, Number: b.Number}
}

// HeaderBlockInfo extracts a BlockInfo from a sealed header.
func HeaderBlockInfo(h SealedHeader) BlockInfo {
	return BlockInfo{
		Hash:       h.Hash,
		Number:     h.Number.Uint64(),
		ParentHash: h.ParentHash,
		Time:       h.Time,
	}
}

// L2BlockInfo is a BlockInfo annotated with the L1 origin the block was
// derived from and its position within that epoch.
type L2BlockInfo struct {
	BlockInfo
	L1Origin       BlockID `json:"l1origin"`
	SequenceNumber uint64  `json:"sequenceNumber"`
}

// SealedHeader pairs a header with its precomputed hash.
type SealedHeader struct {
	*types.Header
	Hash common.Hash
}

// SealHeader seals a header by hashing its RLP encoding.
func SealHeader(h *types.Header) SealedHeader {
	return SealedHeader{Header: h, Hash: h.Hash()}
}

// DecodeSealedHeader decodes an RLP header and seals it, verifying the
// encoding hashes back to the expected hash.
func DecodeSealedHeader(expected common.Hash, data []byte) (SealedHeader, error) {
	var h types.Header
	if err := rlp.DecodeBytes(data, &h); err != nil {
		return SealedHeader{}, err
	}
	sealed := SealHeader(&h)
	if sealed.Hash != expected {
		return SealedHeader{}, ErrHeaderHashMismatch
	}
	return sealed, nil
}

// IndexedBlobHash is a versioned blob hash with its index in the block's
// blob-hash list.
type IndexedBlobHash struct {
	Index uint64
	Hash  common.Hash
}

// Blob is an EIP-4844 blob: 4096 field elements of 32 bytes each.
type Blob [BlobSize]byte

const (
	// BlobSize is the size of an EIP-4844 blob in bytes.
	BlobSize = 4096 * 32
	// BlobCommitmentVersionKZG is the version byte of a KZG versioned hash.
	BlobCommitmentVersionKZG = 0x01
)

// OutputVersionV0 is the version byte of the v0 output root commitment.
var OutputVersionV0 = common.Hash{}

// OutputRootV0 commits to an L2 block: keccak256 of the version, the state
// root, the message-passer storage root and the block hash, tightly packed.
func OutputRootV0(stateRoot, storageRoot, blockHash common.Hash) common.Hash {
	return crypto.Keccak256Hash(OutputVersionV0[:], stateRoot[:], storageRoot[:], blockHash[:])
}

// OutputV0 is the decoded form of a v0 output-root preimage.
type OutputV0 struct {
	StateRoot                common.Hash
	MessagePasserStorageRoot common.Hash
	BlockHash                common.Hash
}

// Marshal encodes the output preimage: version || stateRoot || storageRoot ||
// blockHash.
func (o OutputV0) Marshal() []byte {
	buf := make([]byte, 0, 128)
	buf = append(buf, OutputVersionV0[:]...)
	buf = append(buf, o.StateRoot[:]...)
	buf = append(buf, o.MessagePasserStorageRoot[:]...)
	buf = append(buf, o.BlockHash[:]...)
	return buf
}

// Root returns the output root of the encoded output.
func (o OutputV0) Root() common.Hash {
	return crypto.Keccak256Hash(o.Marshal())
}

// UnmarshalOutputV0 decodes a v0 output-root preimage.
func UnmarshalOutputV0(data []byte) (OutputV0, error) {
	if len(data) != 128 {
		return OutputV0{}, ErrInvalidOutput
	}
	if common.BytesToHash(data[:32]) != OutputVersionV0 {
		return OutputV0{}, ErrInvalidOutputVersion
	}
	var o OutputV0
	copy(o.StateRoot[:], data[32:64])
	copy(o.MessagePasserStorageRoot[:], data[64:96])
	copy(o.BlockHash[:], data[96:128])
	return o, nil
}
