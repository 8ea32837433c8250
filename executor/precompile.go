package executor

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/okx/fault-proof-client/preimage"
)

// Precompiles whose native execution is too expensive inside the verifiable
// VM. Their results are short-circuited to the oracle, which serves outputs
// authenticated by an externally verified reference implementation.
var (
	// BN256PairingAddress is the alt-bn128 pairing check precompile.
	BN256PairingAddress = common.BytesToAddress([]byte{0x08})
	// KZGPointEvaluationAddress is the EIP-4844 point evaluation precompile.
	KZGPointEvaluationAddress = common.BytesToAddress([]byte{0x0a})
)

// PrecompileOracle resolves accelerated precompile calls through the
// preimage oracle: the call tuple is hinted, then the result is read back by
// the keccak256 of (address || input).
type PrecompileOracle struct {
	oracle preimage.Oracle
	hinter preimage.Hinter
}

// NewPrecompileOracle creates a precompile oracle.
func NewPrecompileOracle(oracle preimage.Oracle, hinter preimage.Hinter) *PrecompileOracle {
	return &PrecompileOracle{oracle: oracle, hinter: hinter}
}

// Accelerated reports whether calls to the address are oracle-backed.
func (p *PrecompileOracle) Accelerated(addr common.Address) bool {
	return addr == BN256PairingAddress || addr == KZGPointEvaluationAddress
}

// Run resolves one precompile call. The returned ok flag reflects the
// precompile's own success; a false ok reverts the calling transaction.
func (p *PrecompileOracle) Run(addr common.Address, input []byte) ([]byte, bool, error) {
	if err := p.hinter.Hint(preimage.NewHint(preimage.HintL1Precompile, addr[:], input)); err != nil {
		return nil, false, err
	}
	key := preimage.PrecompileKey(crypto.Keccak256Hash(addr[:], input))
	result, err := p.oracle.Get(key)
	if err != nil {
		return nil, false, fmt.Errorf("fetch precompile result for %s: %w", addr, err)
	}
	if len(result) == 0 {
		return nil, false, fmt.Errorf("empty precompile result for %s", addr)
	}
	// The first byte is the status, the rest is the output.
	return result[1:], result[0] == 1, nil
}
