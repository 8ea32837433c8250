package derive

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/okx/fault-proof-client/eth"
	"github.com/okx/fault-proof-client/rollup"
)

// BatchQueue buffers batches across L1 blocks, validates them against the
// L2 safe head, drops invalid ones and fills epoch gaps with empty batches
// once the sequencing window elapses.
type BatchQueue struct {
	log  log.Logger
	cfg  *rollup.Config
	prev NextBatchProvider

	origin eth.BlockInfo
	// l1Blocks is the contiguous origin window starting at the safe head's
	// epoch.
	l1Blocks []eth.BlockInfo
	batches  []*BatchWithL1InclusionBlock
}

// NewBatchQueue creates the batch queue stage.
func NewBatchQueue(logger log.Logger, cfg *rollup.Config, prev NextBatchProvider) *BatchQueue {
	return &BatchQueue{log: logger, cfg: cfg, prev: prev}
}

// NextBatch returns the next batch to build on the safe head. ErrEof asks
// the driver to advance the L1 origin; ErrNotEnoughData asks it to step
// again.
func (q *BatchQueue) NextBatch(l2SafeHead eth.L2BlockInfo) (*SingularBatch, error) {
	// The window only tracks origins at or past the safe head's epoch.
	originBehind := q.prev.Origin().Number < l2SafeHead.L1Origin.Number

	// Advance the local origin view when the upstream stages moved on.
	if q.origin != q.prev.Origin() {
		q.origin = q.prev.Origin()
		if !originBehind {
			q.l1Blocks = append(q.l1Blocks, q.origin)
		} else {
			// A reset is underway; the window restarts once caught up.
			q.l1Blocks = q.l1Blocks[:0]
		}
		q.log.Trace("Batch queue advanced origin", "origin", q.origin.Number)
	}
	// Drop front origins the safe head has moved past.
	for len(q.l1Blocks) > 0 && l2SafeHead.L1Origin.Number > q.l1Blocks[0].Number {
		q.l1Blocks = q.l1Blocks[1:]
	}

	// Pull one batch from the channel reader, if any.
	outOfData := false
	if batch, err := q.prev.NextBatch(); err == nil {
		if !originBehind {
			q.batches = append(q.batches, batch)
		} else {
			q.log.Warn("Dropping batch: origin is behind the safe head", "origin", q.origin.Number)
		}
	} else if errors.Is(err, ErrEof) {
		outOfData = true
	} else if !errors.Is(err, ErrNotEnoughData) {
		return nil, err
	}

	if originBehind {
		if outOfData {
			return nil, ErrEof
		}
		return nil, ErrNotEnoughData
	}
	batch, err := q.deriveNextBatch(l2SafeHead, outOfData)
	if err != nil && outOfData && errors.Is(err, ErrNotEnoughData) {
		return nil, ErrEof
	}
	return batch, err
}

// deriveNextBatch selects the next valid batch from the buffer, or emits an
// empty batch once the epoch's sequencing window has elapsed.
func (q *BatchQueue) deriveNextBatch(l2SafeHead eth.L2BlockInfo, outOfData bool) (*SingularBatch, error) {
	if len(q.l1Blocks) == 0 {
		return nil, NewResetError(errors.New("batch queue has no origin window"))
	}
	epoch := q.l1Blocks[0]
	if l2SafeHead.L1Origin.Hash != epoch.Hash {
		return nil, NewResetError(fmt.Errorf("safe head origin %s does not match window epoch %s", l2SafeHead.L1Origin.Hash, epoch.Hash))
	}
	nextTimestamp := l2SafeHead.Time + q.cfg.BlockTime

	// Validate buffered batches; first accepted one wins. Ties between
	// batches are broken by buffer order, which follows L1 position.
	var remaining []*BatchWithL1InclusionBlock
	var next *SingularBatch
	for i, b := range q.batches {
		switch CheckBatch(q.log, q.cfg, q.l1Blocks, l2SafeHead, b) {
		case BatchDrop:
			continue
		case BatchAccept:
			next = b.Batch
			remaining = append(remaining, q.batches[i+1:]...)
			q.batches = remaining
			return next, nil
		case BatchUndecided:
			return nil, ErrEof
		default: // BatchFuture
			remaining = append(remaining, b)
		}
	}
	q.batches = remaining

	// No batch for this timestamp. Once the epoch's sequencing window has
	// elapsed on L1, the gap is filled with an empty, deposits-only batch.
	expired := epoch.Number+q.cfg.SeqWindowSize < q.origin.Number
	if !expired {
		return nil, ErrNotEnoughData
	}
	if len(q.l1Blocks) < 2 {
		// The next epoch must be known to decide whether to advance.
		return nil, ErrEof
	}
	nextEpoch := q.l1Blocks[1]
	if nextTimestamp < nextEpoch.Time {
		// Fill the current epoch with an empty batch.
		q.log.Info("Filling sequencing-window gap with empty batch", "epoch", epoch.Number, "timestamp", nextTimestamp)
		return &SingularBatch{
			ParentHash: l2SafeHead.Hash,
			EpochNum:   epoch.Number,
			EpochHash:  epoch.Hash,
			Timestamp:  nextTimestamp,
		}, nil
	}
	// The next L2 block belongs to the next epoch.
	q.l1Blocks = q.l1Blocks[1:]
	q.log.Info("Advancing epoch for empty batch", "epoch", nextEpoch.Number, "timestamp", nextTimestamp)
	return &SingularBatch{
		ParentHash: l2SafeHead.Hash,
		EpochNum:   nextEpoch.Number,
		EpochHash:  nextEpoch.Hash,
		Timestamp:  nextTimestamp,
	}, nil
}

// Origin implements OriginProvider.
func (q *BatchQueue) Origin() eth.BlockInfo {
	return q.prev.Origin()
}

// Reset implements ResettableStage: the origin window restarts at the base.
func (q *BatchQueue) Reset(base eth.BlockInfo, cfg rollup.SystemConfig) error {
	q.origin = base
	q.l1Blocks = q.l1Blocks[:0]
	q.l1Blocks = append(q.l1Blocks, base)
	q.batches = nil
	return nil
}
