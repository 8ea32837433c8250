package l1

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	gokzg4844 "github.com/crate-crypto/go-kzg-4844"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/okx/fault-proof-client/eth"
	"github.com/okx/fault-proof-client/preimage"
)

var (
	// ErrBlobCommitmentMismatch is returned when a blob does not match the
	// KZG commitment its versioned hash commits to.
	ErrBlobCommitmentMismatch = errors.New("blob does not match KZG commitment")

	// ErrInvalidVersionedHash is returned when a commitment does not hash to
	// the requested versioned hash.
	ErrInvalidVersionedHash = errors.New("commitment does not match versioned hash")
)

// kzgCtx verifies blob-to-commitment bindings. The trusted setup is embedded
// in the library.
var kzgCtx *gokzg4844.Context

func init() {
	ctx, err := gokzg4844.NewContext4096Secure()
	if err != nil {
		panic(fmt.Errorf("load KZG trusted setup: %w", err))
	}
	kzgCtx = ctx
}

// OracleBlobProvider serves EIP-4844 blobs from the preimage oracle and
// verifies every blob against the KZG commitment embedded in its key.
type OracleBlobProvider struct {
	oracle preimage.Oracle
	hinter preimage.Hinter
}

// NewOracleBlobProvider creates a blob provider over the oracle.
func NewOracleBlobProvider(oracle preimage.Oracle, hinter preimage.Hinter) *OracleBlobProvider {
	return &OracleBlobProvider{oracle: oracle, hinter: hinter}
}

// GetBlobs returns the blobs referenced by the indexed versioned hashes
// within the given L1 block.
func (p *OracleBlobProvider) GetBlobs(ref eth.BlockInfo, hashes []eth.IndexedBlobHash) ([]*eth.Blob, error) {
	blobs := make([]*eth.Blob, len(hashes))
	for i, h := range hashes {
		blob, err := p.getBlob(ref, h)
		if err != nil {
			return nil, fmt.Errorf("blob %s (index %d) in L1 block %s: %w", h.Hash, h.Index, ref.Hash, err)
		}
		blobs[i] = blob
	}
	return blobs, nil
}

func (p *OracleBlobProvider) getBlob(ref eth.BlockInfo, h eth.IndexedBlobHash) (*eth.Blob, error) {
	// The hint carries the versioned hash, the blob index and the block
	// timestamp so the host can locate the sidecar in the beacon chain.
	hintData := make([]byte, 32+8+8)
	copy(hintData[:32], h.Hash[:])
	binary.BigEndian.PutUint64(hintData[32:40], h.Index)
	binary.BigEndian.PutUint64(hintData[40:48], ref.Time)
	if err := p.hinter.Hint(preimage.NewHint(preimage.HintL1Blob, hintData)); err != nil {
		return nil, err
	}

	// The commitment is keyed by the sha256 of the versioned hash's
	// preimage, which is the commitment itself.
	commitmentBytes, err := p.oracle.Get(preimage.Sha256Key(h.Hash))
	if err != nil {
		return nil, fmt.Errorf("fetch KZG commitment: %w", err)
	}
	if len(commitmentBytes) != 48 {
		return nil, fmt.Errorf("invalid KZG commitment length %d", len(commitmentBytes))
	}
	if VersionedHash(commitmentBytes) != h.Hash {
		return nil, ErrInvalidVersionedHash
	}

	// The blob itself is keyed by keccak256(commitment || index).
	var indexBytes [8]byte
	binary.BigEndian.PutUint64(indexBytes[:], h.Index)
	blobKey := preimage.BlobKey(crypto.Keccak256Hash(commitmentBytes, indexBytes[:]))
	var blob eth.Blob
	if err := p.oracle.GetExact(blobKey, blob[:]); err != nil {
		return nil, fmt.Errorf("fetch blob: %w", err)
	}

	// Bind the returned bytes to the commitment.
	var commitment gokzg4844.KZGCommitment
	copy(commitment[:], commitmentBytes)
	computed, err := kzgCtx.BlobToKZGCommitment(gokzg4844.Blob(blob), 0)
	if err != nil {
		return nil, fmt.Errorf("compute blob commitment: %w", err)
	}
	if computed != commitment {
		return nil, ErrBlobCommitmentMismatch
	}
	return &blob, nil
}

// VersionedHash computes the EIP-4844 versioned hash of a KZG commitment.
func VersionedHash(commitment []byte) common.Hash {
	h := sha256.Sum256(commitment)
	h[0] = eth.BlobCommitmentVersionKZG
	return h
}
