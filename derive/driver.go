package derive

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/okx/fault-proof-client/eth"
	"github.com/okx/fault-proof-client/rollup"
)

// ErrEofBeforeDisputed is returned when the L1 head is exhausted before the
// disputed block's attributes could be produced. Fatal for the scenario.
var ErrEofBeforeDisputed = errors.New("L1 data exhausted before the disputed payload was produced")

// maxResetAttempts bounds how often the driver restarts the pipeline before
// treating the reset loop as fatal.
const maxResetAttempts = 20

// L2Provider is the driver's view of the L2 chain: the pipeline needs plus
// the safe head anchor.
type L2Provider interface {
	L2ChainProvider
	HeaderByNumber(number uint64) (eth.SealedHeader, error)
	SafeHead() eth.SealedHeader
}

// DerivationDriver drives the pipeline until exactly one payload attribute
// set for the disputed block number is produced, tracking the L1 origin the
// batch was read at.
type DerivationDriver struct {
	log log.Logger
	cfg *rollup.Config

	chain    ChainProvider
	l2       L2Provider
	pipeline *DerivationPipeline

	l2SafeHead   eth.L2BlockInfo
	l2SafeHeader eth.SealedHeader
}

// NewDerivationDriver anchors a pipeline at the last safe L2 head: the
// starting L1 origin is the safe head's origin, walked back by the channel
// timeout so partially submitted channels are replayed.
func NewDerivationDriver(logger log.Logger, cfg *rollup.Config, chain ChainProvider, blobs BlobProvider, l2 L2Provider) (*DerivationDriver, error) {
	safeHeader := l2.SafeHead()
	safeHead, err := l2.L2BlockInfoByNumber(safeHeader.Number.Uint64())
	if err != nil {
		return nil, fmt.Errorf("resolve L2 safe head info: %w", err)
	}

	startNum := safeHead.L1Origin.Number
	if startNum > cfg.ChannelTimeout {
		startNum -= cfg.ChannelTimeout
	} else {
		startNum = 0
	}
	if startNum < cfg.Genesis.L1.Number {
		startNum = cfg.Genesis.L1.Number
	}
	origin, err := chain.BlockInfoByNumber(startNum)
	if err != nil {
		return nil, fmt.Errorf("resolve starting L1 origin %d: %w", startNum, err)
	}
	sysCfg, err := l2.SystemConfigByNumber(safeHead.Number)
	if err != nil {
		return nil, fmt.Errorf("system config at safe head %d: %w", safeHead.Number, err)
	}

	pipeline := NewDerivationPipeline(logger, cfg, chain, blobs, l2)
	if err := pipeline.Reset(origin, sysCfg); err != nil {
		return nil, fmt.Errorf("seed pipeline: %w", err)
	}
	logger.Info("Derivation driver started", "l2_safe_head", safeHead.Number, "l1_origin", origin.Number)

	return &DerivationDriver{
		log:          logger,
		cfg:          cfg,
		chain:        chain,
		l2:           l2,
		pipeline:     pipeline,
		l2SafeHead:   safeHead,
		l2SafeHeader: safeHeader,
	}, nil
}

// L1Cursor returns the L1 origin the pipeline currently reads from.
func (d *DerivationDriver) L1Cursor() eth.BlockInfo {
	return d.pipeline.Origin()
}

// L2SafeHead returns the L2 block the next attributes build on.
func (d *DerivationDriver) L2SafeHead() eth.L2BlockInfo {
	return d.l2SafeHead
}

// TakeL2SafeHeadHeader returns the sealed header of the current safe head.
func (d *DerivationDriver) TakeL2SafeHeadHeader() eth.SealedHeader {
	return d.l2SafeHeader
}

// ProduceDisputedPayload steps the pipeline until the attributes of the
// block with the given number are emitted. Attributes for earlier blocks
// advance the safe head through the oracle's known chain.
func (d *DerivationDriver) ProduceDisputedPayload(claimBlockNumber uint64) (eth.L2AttributesWithParent, error) {
	if claimBlockNumber <= d.l2SafeHead.Number {
		return eth.L2AttributesWithParent{}, NewCriticalError(fmt.Errorf("claim block %d is not past the safe head %d", claimBlockNumber, d.l2SafeHead.Number))
	}
	resets := 0
	for {
		attrs, err := d.pipeline.NextAttributes(d.l2SafeHead)
		switch {
		case err == nil:
			produced := d.l2SafeHead.Number + 1
			if produced == claimBlockNumber {
				attrs.IsDisputed = true
				d.log.Info("Produced disputed payload", "l2_number", produced, "l1_cursor", d.L1Cursor().Number)
				return attrs, nil
			}
			// An intermediate block: it is already part of the agreed
			// chain, so move the safe head over it.
			if err := d.advanceSafeHead(produced); err != nil {
				return eth.L2AttributesWithParent{}, err
			}
		case errors.Is(err, ErrNotEnoughData):
			continue
		case errors.Is(err, ErrEof):
			if err := d.pipeline.AdvanceOrigin(); err != nil {
				if errors.Is(err, ErrEof) {
					return eth.L2AttributesWithParent{}, NewCriticalError(ErrEofBeforeDisputed)
				}
				if IsReset(err) {
					if rerr := d.reset(&resets); rerr != nil {
						return eth.L2AttributesWithParent{}, rerr
					}
					continue
				}
				return eth.L2AttributesWithParent{}, err
			}
		case IsReset(err):
			if rerr := d.reset(&resets); rerr != nil {
				return eth.L2AttributesWithParent{}, rerr
			}
		default:
			return eth.L2AttributesWithParent{}, err
		}
	}
}

// advanceSafeHead moves the safe head to the given already-derived block.
func (d *DerivationDriver) advanceSafeHead(number uint64) error {
	header, err := d.l2.HeaderByNumber(number)
	if err != nil {
		return NewCriticalError(fmt.Errorf("advance safe head to %d: %w", number, err))
	}
	info, err := d.l2.L2BlockInfoByNumber(number)
	if err != nil {
		return NewCriticalError(fmt.Errorf("advance safe head to %d: %w", number, err))
	}
	d.l2SafeHeader = header
	d.l2SafeHead = info
	d.log.Debug("Advanced L2 safe head", "number", number, "hash", info.Hash)
	return nil
}

// reset restarts the pipeline at the last safe (origin, system config).
func (d *DerivationDriver) reset(resets *int) error {
	*resets++
	if *resets > maxResetAttempts {
		return NewCriticalError(errors.New("pipeline reset loop"))
	}
	origin, err := d.chain.BlockInfoByNumber(d.l2SafeHead.L1Origin.Number)
	if err != nil {
		return NewCriticalError(fmt.Errorf("resolve reset origin %d: %w", d.l2SafeHead.L1Origin.Number, err))
	}
	if origin.Hash != d.l2SafeHead.L1Origin.Hash {
		return NewCriticalError(fmt.Errorf("reset origin %s does not match safe head origin %s", origin.Hash, d.l2SafeHead.L1Origin.Hash))
	}
	sysCfg, err := d.l2.SystemConfigByNumber(d.l2SafeHead.Number)
	if err != nil {
		return NewCriticalError(fmt.Errorf("system config at safe head %d: %w", d.l2SafeHead.Number, err))
	}
	return d.pipeline.Reset(origin, sysCfg)
}
