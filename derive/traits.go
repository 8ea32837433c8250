package derive

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/okx/fault-proof-client/eth"
	"github.com/okx/fault-proof-client/rollup"
)

// ChainProvider is the pipeline's view of the L1 chain.
type ChainProvider interface {
	HeaderByHash(hash common.Hash) (eth.SealedHeader, error)
	BlockInfoByNumber(number uint64) (eth.BlockInfo, error)
	ReceiptsByHash(hash common.Hash) ([]*types.Receipt, error)
	BlockInfoAndTransactionsByHash(hash common.Hash) (eth.BlockInfo, types.Transactions, error)
}

// L2ChainProvider is the pipeline's view of the L2 chain.
type L2ChainProvider interface {
	L2BlockInfoByNumber(number uint64) (eth.L2BlockInfo, error)
	SystemConfigByNumber(number uint64) (rollup.SystemConfig, error)
}

// BlobProvider fetches the blobs referenced by an L1 block.
type BlobProvider interface {
	GetBlobs(ref eth.BlockInfo, hashes []eth.IndexedBlobHash) ([]*eth.Blob, error)
}

// DataIter yields the DA payloads of one L1 block. Next returns ErrEof when
// the block is exhausted.
type DataIter interface {
	Next() ([]byte, error)
}

// DataAvailabilityProvider opens the DA payloads of an L1 block: calldata to
// the batch inbox plus blob sidecars referenced by inbox transactions.
type DataAvailabilityProvider interface {
	OpenData(block eth.BlockInfo, batcher common.Address) (DataIter, error)
}

// NextBlockProvider feeds the retrieval stage: sequential L1 blocks and the
// system config valid at the current origin.
type NextBlockProvider interface {
	OriginProvider
	NextL1Block() (eth.BlockInfo, error)
	SystemConfig() rollup.SystemConfig
}

// NextDataProvider feeds the frame queue with raw DA payloads.
type NextDataProvider interface {
	OriginProvider
	NextData() ([]byte, error)
}

// NextFrameProvider feeds the channel bank with parsed frames.
type NextFrameProvider interface {
	OriginProvider
	NextFrame() (Frame, error)
}

// NextChannelProvider feeds the channel reader with complete channel
// payloads.
type NextChannelProvider interface {
	OriginProvider
	NextData() ([]byte, error)
}

// NextBatchProvider feeds the batch queue with decoded batches.
type NextBatchProvider interface {
	OriginProvider
	NextBatch() (*BatchWithL1InclusionBlock, error)
}

// NextValidBatchProvider feeds the attributes queue with validated batches
// extending the safe head.
type NextValidBatchProvider interface {
	OriginProvider
	NextBatch(l2SafeHead eth.L2BlockInfo) (*SingularBatch, error)
}

// ResettableStage is reset to a new (origin, system config) pair when the
// pipeline restarts at the last safe origin.
type ResettableStage interface {
	Reset(base eth.BlockInfo, cfg rollup.SystemConfig) error
}

// OriginProvider exposes the L1 origin a stage is currently working on.
type OriginProvider interface {
	Origin() eth.BlockInfo
}

// OriginAdvancer moves the upstream L1 cursor forward by one block.
type OriginAdvancer interface {
	AdvanceOrigin() error
}
