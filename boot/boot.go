// Package boot reads and validates the client's trusted inputs from the
// preimage oracle's local boot slots.
package boot

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/okx/fault-proof-client/preimage"
	"github.com/okx/fault-proof-client/rollup"
)

// Local boot-slot identifiers.
const (
	L1HeadLocalIndex             = 1
	L2OutputRootLocalIndex       = 2
	L2ClaimLocalIndex            = 3
	L2ClaimBlockNumberLocalIndex = 4
	L2ChainIDLocalIndex          = 5
	L2RollupConfigLocalIndex     = 6
	L1EndNumberLocalIndex        = 7
)

// ErrBootInvalid is returned when a boot input is absent, malformed, or the
// rollup config fails validation.
var ErrBootInvalid = errors.New("invalid boot input")

// BootInfo is the client's trusted input set, loaded from the oracle's local
// slots before derivation starts.
type BootInfo struct {
	// L1Head bounds derivation: no L1 data past this block hash is read.
	L1Head common.Hash
	// L2OutputRoot is the agreed-upon pre-state output root.
	L2OutputRoot common.Hash
	// L2Claim is the disputed post-state output root.
	L2Claim common.Hash
	// L2ClaimBlockNumber is the L2 block number the claim commits to.
	L2ClaimBlockNumber uint64
	// L2ChainID is the L2 chain identifier.
	L2ChainID uint64
	// L1EndNumber is the upper bound of the L1 range. Zero disables the
	// derivation bound check, but the L1 connectivity walk still rejects it.
	L1EndNumber uint64
	// RollupConfig is the chain's rollup configuration.
	RollupConfig *rollup.Config
}

// Load reads every boot slot from the oracle and validates it.
func Load(oracle preimage.Oracle) (*BootInfo, error) {
	l1Head, err := readHash(oracle, L1HeadLocalIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: l1 head: %v", ErrBootInvalid, err)
	}
	outputRoot, err := readHash(oracle, L2OutputRootLocalIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: l2 output root: %v", ErrBootInvalid, err)
	}
	claim, err := readHash(oracle, L2ClaimLocalIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: l2 claim: %v", ErrBootInvalid, err)
	}
	claimBlock, err := readU64(oracle, L2ClaimBlockNumberLocalIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: l2 claim block number: %v", ErrBootInvalid, err)
	}
	chainID, err := readU64(oracle, L2ChainIDLocalIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: l2 chain id: %v", ErrBootInvalid, err)
	}
	l1EndNumber, err := readU64(oracle, L1EndNumberLocalIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: l1 end number: %v", ErrBootInvalid, err)
	}
	cfgData, err := oracle.Get(preimage.LocalKey(L2RollupConfigLocalIndex))
	if err != nil {
		return nil, fmt.Errorf("%w: rollup config: %v", ErrBootInvalid, err)
	}
	cfg, err := rollup.ParseConfig(cfgData)
	if err != nil {
		return nil, fmt.Errorf("%w: rollup config: %v", ErrBootInvalid, err)
	}
	if cfg.L2ChainID != chainID {
		return nil, fmt.Errorf("%w: rollup config chain id %d does not match boot chain id %d", ErrBootInvalid, cfg.L2ChainID, chainID)
	}
	return &BootInfo{
		L1Head:             l1Head,
		L2OutputRoot:       outputRoot,
		L2Claim:            claim,
		L2ClaimBlockNumber: claimBlock,
		L2ChainID:          chainID,
		L1EndNumber:        l1EndNumber,
		RollupConfig:       cfg,
	}, nil
}

func readHash(oracle preimage.Oracle, index uint64) (common.Hash, error) {
	var h common.Hash
	if err := oracle.GetExact(preimage.LocalKey(index), h[:]); err != nil {
		return common.Hash{}, err
	}
	return h, nil
}

func readU64(oracle preimage.Oracle, index uint64) (uint64, error) {
	var buf [8]byte
	if err := oracle.GetExact(preimage.LocalKey(index), buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}
