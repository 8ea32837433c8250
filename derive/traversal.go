package derive

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/okx/fault-proof-client/eth"
	"github.com/okx/fault-proof-client/l1"
	"github.com/okx/fault-proof-client/rollup"
)

// L1Traversal yields sequential L1 blocks starting at the pipeline origin.
// It owns the pipeline's system-config snapshot, updating it with the
// config-change events observed in each traversed block.
type L1Traversal struct {
	log      log.Logger
	provider ChainProvider
	cfg      *rollup.Config

	block  eth.BlockInfo
	done   bool
	sysCfg rollup.SystemConfig
}

// NewL1Traversal creates the traversal stage.
func NewL1Traversal(logger log.Logger, provider ChainProvider, cfg *rollup.Config) *L1Traversal {
	return &L1Traversal{log: logger, provider: provider, cfg: cfg}
}

// NextL1Block returns the current origin block exactly once, then ErrEof
// until the origin is advanced.
func (t *L1Traversal) NextL1Block() (eth.BlockInfo, error) {
	if t.done {
		return eth.BlockInfo{}, ErrEof
	}
	t.done = true
	return t.block, nil
}

// AdvanceOrigin moves the cursor to the next L1 block and folds its system
// config updates into the snapshot. Past the L1 head it returns ErrEof.
func (t *L1Traversal) AdvanceOrigin() error {
	next, err := t.provider.BlockInfoByNumber(t.block.Number + 1)
	if errors.Is(err, l1.ErrNotFound) {
		return ErrEof
	}
	if err != nil {
		return NewCriticalError(fmt.Errorf("advance L1 origin past %d: %w", t.block.Number, err))
	}
	if next.ParentHash != t.block.Hash {
		return NewResetError(fmt.Errorf("L1 block %d parent %s does not link to origin %s", next.Number, next.ParentHash, t.block.Hash))
	}
	receipts, err := t.provider.ReceiptsByHash(next.Hash)
	if err != nil {
		return NewCriticalError(fmt.Errorf("fetch receipts of L1 block %s: %w", next.Hash, err))
	}
	if err := rollup.UpdateSystemConfigWithL1Receipts(&t.sysCfg, receipts, t.cfg); err != nil {
		return NewCriticalError(fmt.Errorf("apply system config updates of L1 block %s: %w", next.Hash, err))
	}
	t.log.Trace("Advanced L1 origin", "number", next.Number, "hash", next.Hash)
	t.block = next
	t.done = false
	return nil
}

// Origin implements OriginProvider.
func (t *L1Traversal) Origin() eth.BlockInfo {
	return t.block
}

// SystemConfig returns the config snapshot valid at the current origin.
func (t *L1Traversal) SystemConfig() rollup.SystemConfig {
	return t.sysCfg
}

// Reset implements ResettableStage: it atomically seeds a new origin and
// system config.
func (t *L1Traversal) Reset(base eth.BlockInfo, cfg rollup.SystemConfig) error {
	t.block = base
	t.sysCfg = cfg
	t.done = false
	t.log.Debug("Reset L1 traversal", "origin", base.Number, "hash", base.Hash)
	return nil
}
