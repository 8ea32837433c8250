package derive

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/okx/fault-proof-client/eth"
	"github.com/okx/fault-proof-client/rollup"
)

// AttributesBuilder turns an accepted batch into full payload attributes:
// the L1 attributes deposit, then the epoch's user deposits, then the
// batch's own transactions.
type AttributesBuilder struct {
	log   log.Logger
	cfg   *rollup.Config
	chain ChainProvider
	l2    L2ChainProvider
}

// NewAttributesBuilder creates a builder over the chain providers.
func NewAttributesBuilder(logger log.Logger, cfg *rollup.Config, chain ChainProvider, l2 L2ChainProvider) *AttributesBuilder {
	return &AttributesBuilder{log: logger, cfg: cfg, chain: chain, l2: l2}
}

// PreparePayloadAttributes builds the payload attributes of the block the
// batch describes on top of the given parent.
func (b *AttributesBuilder) PreparePayloadAttributes(batch *SingularBatch, l2Parent eth.L2BlockInfo) (eth.L2PayloadAttributes, error) {
	var deposits []*eth.DepositTx
	var seqNumber uint64

	sysCfg, err := b.l2.SystemConfigByNumber(l2Parent.Number)
	if err != nil {
		return eth.L2PayloadAttributes{}, NewCriticalError(fmt.Errorf("system config at L2 block %d: %w", l2Parent.Number, err))
	}

	epoch := batch.Epoch()
	if epoch.Number == l2Parent.L1Origin.Number+1 {
		// First block of a new epoch: derive the epoch's user deposits and
		// fold in any system config updates observed at the origin.
		receipts, err := b.chain.ReceiptsByHash(epoch.Hash)
		if err != nil {
			return eth.L2PayloadAttributes{}, NewCriticalError(fmt.Errorf("receipts of epoch %s: %w", epoch.Hash, err))
		}
		deposits, err = eth.UserDeposits(receipts, b.cfg.DepositContractAddress)
		if err != nil {
			return eth.L2PayloadAttributes{}, NewCriticalError(fmt.Errorf("user deposits of epoch %s: %w", epoch.Hash, err))
		}
		if err := rollup.UpdateSystemConfigWithL1Receipts(&sysCfg, receipts, b.cfg); err != nil {
			return eth.L2PayloadAttributes{}, NewCriticalError(fmt.Errorf("system config updates of epoch %s: %w", epoch.Hash, err))
		}
		seqNumber = 0
	} else {
		if epoch.Number != l2Parent.L1Origin.Number {
			return eth.L2PayloadAttributes{}, NewResetError(fmt.Errorf("batch epoch %d is inconsistent with parent origin %d", epoch.Number, l2Parent.L1Origin.Number))
		}
		if epoch.Hash != l2Parent.L1Origin.Hash {
			return eth.L2PayloadAttributes{}, NewResetError(fmt.Errorf("batch epoch hash %s is inconsistent with parent origin %s", epoch.Hash, l2Parent.L1Origin.Hash))
		}
		seqNumber = l2Parent.SequenceNumber + 1
	}

	epochHeader, err := b.chain.HeaderByHash(epoch.Hash)
	if err != nil {
		return eth.L2PayloadAttributes{}, NewCriticalError(fmt.Errorf("header of epoch %s: %w", epoch.Hash, err))
	}

	l1Info := eth.L1InfoDeposit(seqNumber, epochHeader, sysCfg.BatcherAddr, sysCfg.Overhead, sysCfg.Scalar)
	txs := make([][]byte, 0, 1+len(deposits)+len(batch.Transactions))
	enc, err := l1Info.MarshalBinary()
	if err != nil {
		return eth.L2PayloadAttributes{}, NewCriticalError(fmt.Errorf("encode L1 attributes deposit: %w", err))
	}
	txs = append(txs, enc)
	for i, dep := range deposits {
		enc, err := dep.MarshalBinary()
		if err != nil {
			return eth.L2PayloadAttributes{}, NewCriticalError(fmt.Errorf("encode user deposit %d: %w", i, err))
		}
		txs = append(txs, enc)
	}
	txs = append(txs, batch.Transactions...)

	b.log.Debug("Prepared payload attributes",
		"l2_number", l2Parent.Number+1, "timestamp", batch.Timestamp,
		"epoch", epoch.Number, "seq", seqNumber, "deposits", len(deposits), "txs", len(txs))

	return eth.L2PayloadAttributes{
		ParentHash:   batch.ParentHash,
		Timestamp:    batch.Timestamp,
		PrevRandao:   epochHeader.MixDigest,
		FeeRecipient: eth.SequencerFeeVaultAddress,
		GasLimit:     sysCfg.GasLimit,
		Transactions: txs,
		NoTxPool:     true,
	}, nil
}

// AttributesQueue is the last pipeline stage: it pairs each accepted batch
// with its parent. Marking the disputed block is left to DerivationDriver.
type AttributesQueue struct {
	log     log.Logger
	prev    NextValidBatchProvider
	builder *AttributesBuilder

	batch *SingularBatch
}

// NewAttributesQueue creates the attributes stage.
func NewAttributesQueue(logger log.Logger, prev NextValidBatchProvider, builder *AttributesBuilder) *AttributesQueue {
	return &AttributesQueue{log: logger, prev: prev, builder: builder}
}

// NextAttributes returns the payload attributes extending the safe head.
func (q *AttributesQueue) NextAttributes(l2SafeHead eth.L2BlockInfo) (eth.L2AttributesWithParent, error) {
	if q.batch == nil {
		batch, err := q.prev.NextBatch(l2SafeHead)
		if err != nil {
			return eth.L2AttributesWithParent{}, err
		}
		q.batch = batch
	}
	attrs, err := q.builder.PreparePayloadAttributes(q.batch, l2SafeHead)
	if err != nil {
		return eth.L2AttributesWithParent{}, err
	}
	q.batch = nil
	return eth.L2AttributesWithParent{
		Attributes: attrs,
		Parent:     l2SafeHead,
	}, nil
}

// Origin implements OriginProvider.
func (q *AttributesQueue) Origin() eth.BlockInfo {
	return q.prev.Origin()
}

// Reset implements ResettableStage.
func (q *AttributesQueue) Reset(base eth.BlockInfo, cfg rollup.SystemConfig) error {
	q.batch = nil
	return nil
}
