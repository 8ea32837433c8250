package eth

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// DepositEventABI is the deposit contract's event signature.
const DepositEventABI = "TransactionDeposited(address,address,uint256,bytes)"

// DepositEventABIHash is topic[0] of deposit events.
var DepositEventABIHash = crypto.Keccak256Hash([]byte(DepositEventABI))

// DepositEventVersion0 is the only opaque-data version currently defined.
var DepositEventVersion0 = common.Hash{}

// UserDeposits decodes the deposit transactions emitted by the deposit
// contract in the given receipts, in L1 log order. Only logs from the
// deposit contract with the TransactionDeposited topic are considered;
// removed (reorged) logs are skipped.
func UserDeposits(receipts []*types.Receipt, depositContract common.Address) ([]*DepositTx, error) {
	var deposits []*DepositTx
	for _, receipt := range receipts {
		if receipt.Status != types.ReceiptStatusSuccessful {
			continue
		}
		for _, l := range receipt.Logs {
			if l.Address != depositContract || len(l.Topics) == 0 || l.Topics[0] != DepositEventABIHash {
				continue
			}
			if l.Removed {
				continue
			}
			dep, err := UnmarshalDepositLogEvent(l)
			if err != nil {
				return nil, fmt.Errorf("deposit log %d in receipt of tx %s: %w", l.Index, l.TxHash, err)
			}
			deposits = append(deposits, dep)
		}
	}
	return deposits, nil
}

// UnmarshalDepositLogEvent decodes a TransactionDeposited log into a deposit
// transaction. The opaque data packs mint, value, gas limit, a creation flag
// and the calldata.
func UnmarshalDepositLogEvent(ev *types.Log) (*DepositTx, error) {
	if len(ev.Topics) != 4 {
		return nil, fmt.Errorf("%w: expected 4 topics, got %d", ErrInvalidDepositLog, len(ev.Topics))
	}
	if ev.Topics[0] != DepositEventABIHash {
		return nil, fmt.Errorf("%w: invalid event signature %s", ErrInvalidDepositLog, ev.Topics[0])
	}
	if ev.Topics[3] != DepositEventVersion0 {
		return nil, fmt.Errorf("%w: unknown opaque data version %s", ErrInvalidDepositLog, ev.Topics[3])
	}
	from := common.BytesToAddress(ev.Topics[1][12:])
	to := common.BytesToAddress(ev.Topics[2][12:])

	// The opaque data is ABI-encoded as a single dynamic bytes argument.
	if len(ev.Data) < 64 {
		return nil, fmt.Errorf("%w: data too short", ErrInvalidDepositLog)
	}
	offset := new(big.Int).SetBytes(ev.Data[:32])
	if !offset.IsUint64() || offset.Uint64() != 32 {
		return nil, fmt.Errorf("%w: invalid data offset", ErrInvalidDepositLog)
	}
	length := new(big.Int).SetBytes(ev.Data[32:64])
	if !length.IsUint64() || length.Uint64() > uint64(len(ev.Data)-64) {
		return nil, fmt.Errorf("%w: invalid data length", ErrInvalidDepositLog)
	}
	opaque := ev.Data[64 : 64+length.Uint64()]
	if len(opaque) < 32+32+8+1 {
		return nil, fmt.Errorf("%w: opaque data too short", ErrInvalidDepositLog)
	}

	mint := new(big.Int).SetBytes(opaque[0:32])
	if mint.Sign() == 0 {
		mint = nil
	}
	value := new(big.Int).SetBytes(opaque[32:64])
	gas := new(big.Int).SetBytes(opaque[64:72])
	isCreation := opaque[72] == 1
	var data []byte
	if len(opaque) > 73 {
		data = opaque[73:]
	}

	dep := &DepositTx{
		SourceHash:          UserDepositSourceHash(ev.BlockHash, uint64(ev.Index)),
		From:                from,
		Mint:                mint,
		Value:               value,
		Gas:                 gas.Uint64(),
		IsSystemTransaction: false,
		Data:                data,
	}
	if !isCreation {
		dep.To = &to
	}
	return dep, nil
}
