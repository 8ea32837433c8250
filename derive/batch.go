package derive

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/okx/fault-proof-client/eth"
	"github.com/okx/fault-proof-client/rollup"
)

// BatchVersion0 is the singular-batch version byte.
const BatchVersion0 = 0

// SingularBatch describes one L2 block as submitted by the sequencer.
type SingularBatch struct {
	ParentHash common.Hash
	// EpochNum and EpochHash name the L1 origin block of the batch.
	EpochNum  uint64
	EpochHash common.Hash
	Timestamp uint64
	// Transactions are opaque L2 transaction envelopes. Deposits are never
	// batched; a batch carrying one is invalid.
	Transactions [][]byte
}

// Epoch returns the batch's L1 origin reference.
func (b *SingularBatch) Epoch() eth.BlockID {
	return eth.BlockID{Hash: b.EpochHash, Number: b.EpochNum}
}

// EncodeBatch encodes a batch with its version byte.
func EncodeBatch(b *SingularBatch) ([]byte, error) {
	content, err := rlp.EncodeToBytes(b)
	if err != nil {
		return nil, err
	}
	return append([]byte{BatchVersion0}, content...), nil
}

// DecodeBatch decodes a versioned batch.
func DecodeBatch(data []byte) (*SingularBatch, error) {
	if len(data) == 0 {
		return nil, errors.New("batch data must not be empty")
	}
	if data[0] != BatchVersion0 {
		return nil, fmt.Errorf("unknown batch version: %d", data[0])
	}
	var b SingularBatch
	if err := rlp.DecodeBytes(data[1:], &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// BatchWithL1InclusionBlock pairs a batch with the L1 block its channel
// completed in, for sequencing-window accounting.
type BatchWithL1InclusionBlock struct {
	Batch            *SingularBatch
	L1InclusionBlock eth.BlockInfo
}

// BatchValidity is the outcome of validating a batch against the safe head.
type BatchValidity uint8

const (
	// BatchAccept marks the batch as the next one to build.
	BatchAccept BatchValidity = iota
	// BatchDrop discards the batch permanently.
	BatchDrop
	// BatchUndecided keeps the batch until more L1 data is available.
	BatchUndecided
	// BatchFuture keeps the batch for a later safe head.
	BatchFuture
)

// CheckBatch validates a batch against the current L2 safe head. l1Blocks is
// the contiguous window of known origins starting at the safe head's epoch.
func CheckBatch(logger log.Logger, cfg *rollup.Config, l1Blocks []eth.BlockInfo, l2SafeHead eth.L2BlockInfo, b *BatchWithL1InclusionBlock) BatchValidity {
	if len(l1Blocks) == 0 {
		return BatchUndecided
	}
	epoch := l1Blocks[0]
	batch := b.Batch

	nextTimestamp := l2SafeHead.Time + cfg.BlockTime
	if batch.Timestamp > nextTimestamp {
		return BatchFuture
	}
	if batch.Timestamp < nextTimestamp {
		logger.Warn("Dropping batch with old timestamp", "timestamp", batch.Timestamp, "next", nextTimestamp)
		return BatchDrop
	}
	if batch.ParentHash != l2SafeHead.Hash {
		logger.Warn("Dropping batch with mismatching parent hash", "parent", batch.ParentHash, "safe_head", l2SafeHead.Hash)
		return BatchDrop
	}

	// The batch's epoch is the safe head's origin or its immediate successor.
	if batch.EpochNum < epoch.Number {
		logger.Warn("Dropping batch with expired epoch", "epoch", batch.EpochNum, "current", epoch.Number)
		return BatchDrop
	}
	if batch.EpochNum > epoch.Number+1 {
		logger.Warn("Dropping batch that skips epochs", "epoch", batch.EpochNum, "current", epoch.Number)
		return BatchDrop
	}
	// The sequencing window bounds how long a batch may trail its epoch.
	if batch.EpochNum+cfg.SeqWindowSize < b.L1InclusionBlock.Number {
		logger.Warn("Dropping batch past its sequencing window", "epoch", batch.EpochNum, "inclusion", b.L1InclusionBlock.Number)
		return BatchDrop
	}
	idx := int(batch.EpochNum - epoch.Number)
	if idx >= len(l1Blocks) {
		// The referenced origin has not been traversed yet.
		return BatchUndecided
	}
	batchOrigin := l1Blocks[idx]
	if batch.EpochHash != batchOrigin.Hash {
		logger.Warn("Dropping batch with mismatching epoch hash", "epoch_hash", batch.EpochHash, "origin", batchOrigin.Hash)
		return BatchDrop
	}
	if batch.Timestamp < batchOrigin.Time {
		logger.Warn("Dropping batch older than its L1 origin", "timestamp", batch.Timestamp, "origin_time", batchOrigin.Time)
		return BatchDrop
	}
	if batch.Timestamp > batchOrigin.Time+cfg.MaxSequencerDrift {
		logger.Warn("Dropping batch past max sequencer drift", "timestamp", batch.Timestamp, "origin_time", batchOrigin.Time)
		return BatchDrop
	}
	// Deposits are derived from L1, never batched.
	for i, txData := range batch.Transactions {
		if len(txData) == 0 {
			logger.Warn("Dropping batch with empty transaction", "index", i)
			return BatchDrop
		}
		if eth.IsDepositTx(txData) {
			logger.Warn("Dropping batch with deposit transaction", "index", i)
			return BatchDrop
		}
	}
	return BatchAccept
}
