package derive

import (
	"github.com/ethereum/go-ethereum/log"

	"github.com/okx/fault-proof-client/eth"
	"github.com/okx/fault-proof-client/rollup"
)

// DerivationPipeline chains the stages in producer-to-consumer order:
// traversal, retrieval, frame queue, channel bank, channel reader, batch
// queue, attributes queue. Each stage holds a handle to its upstream
// neighbor only.
type DerivationPipeline struct {
	log log.Logger

	traversal  *L1Traversal
	retrieval  *L1Retrieval
	frames     *FrameQueue
	bank       *ChannelBank
	reader     *ChannelReader
	batchQueue *BatchQueue
	attributes *AttributesQueue

	// stages in reset order, producer first.
	stages []ResettableStage
}

// NewDerivationPipeline wires the full stage chain over the given providers.
func NewDerivationPipeline(logger log.Logger, cfg *rollup.Config, chain ChainProvider, blobs BlobProvider, l2 L2ChainProvider) *DerivationPipeline {
	traversal := NewL1Traversal(logger, chain, cfg)
	dap := NewCalldataAndBlobSource(logger, chain, blobs, cfg)
	retrieval := NewL1Retrieval(logger, traversal, dap)
	frames := NewFrameQueue(logger, retrieval)
	bank := NewChannelBank(logger, cfg, frames)
	reader := NewChannelReader(logger, bank)
	batchQueue := NewBatchQueue(logger, cfg, reader)
	builder := NewAttributesBuilder(logger, cfg, chain, l2)
	attributes := NewAttributesQueue(logger, batchQueue, builder)

	return &DerivationPipeline{
		log:        logger,
		traversal:  traversal,
		retrieval:  retrieval,
		frames:     frames,
		bank:       bank,
		reader:     reader,
		batchQueue: batchQueue,
		attributes: attributes,
		stages:     []ResettableStage{traversal, retrieval, frames, bank, reader, batchQueue, attributes},
	}
}

// NextAttributes steps the full pipeline for the next payload attributes on
// top of the safe head.
func (p *DerivationPipeline) NextAttributes(l2SafeHead eth.L2BlockInfo) (eth.L2AttributesWithParent, error) {
	return p.attributes.NextAttributes(l2SafeHead)
}

// AdvanceOrigin pulls the next L1 block into the pipeline.
func (p *DerivationPipeline) AdvanceOrigin() error {
	return p.traversal.AdvanceOrigin()
}

// Origin returns the pipeline's current L1 origin.
func (p *DerivationPipeline) Origin() eth.BlockInfo {
	return p.traversal.Origin()
}

// Reset atomically seeds every stage with a new (origin, system config).
func (p *DerivationPipeline) Reset(base eth.BlockInfo, sysCfg rollup.SystemConfig) error {
	for _, stage := range p.stages {
		if err := stage.Reset(base, sysCfg); err != nil {
			return err
		}
	}
	p.log.Info("Pipeline reset", "origin", base.Number, "hash", base.Hash)
	return nil
}
