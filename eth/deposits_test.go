package eth

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

// depositLog builds a TransactionDeposited log the way the deposit contract
// emits it: mint || value || gasLimit || isCreation || data, ABI-wrapped as
// a single bytes argument.
func depositLog(t *testing.T, contract common.Address, from, to common.Address, mint, value *big.Int, gas uint64, isCreation bool, data []byte) *types.Log {
	t.Helper()
	opaque := make([]byte, 0, 73+len(data))
	opaque = append(opaque, common.BigToHash(mint).Bytes()...)
	opaque = append(opaque, common.BigToHash(value).Bytes()...)
	var gasBytes [8]byte
	for i := 0; i < 8; i++ {
		gasBytes[7-i] = byte(gas >> (8 * i))
	}
	opaque = append(opaque, gasBytes[:]...)
	if isCreation {
		opaque = append(opaque, 1)
	} else {
		opaque = append(opaque, 0)
	}
	opaque = append(opaque, data...)

	payload := make([]byte, 0, 64+len(opaque))
	payload = append(payload, common.BigToHash(big.NewInt(32)).Bytes()...)
	payload = append(payload, common.BigToHash(big.NewInt(int64(len(opaque)))).Bytes()...)
	payload = append(payload, opaque...)

	return &types.Log{
		Address: contract,
		Topics: []common.Hash{
			DepositEventABIHash,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
			DepositEventVersion0,
		},
		Data:      payload,
		BlockHash: common.HexToHash("0xb10c"),
		Index:     5,
	}
}

func TestUnmarshalDepositLogEvent(t *testing.T) {
	contract := common.HexToAddress("0xdead")
	from := common.HexToAddress("0x01")
	to := common.HexToAddress("0x02")
	ev := depositLog(t, contract, from, to, big.NewInt(100), big.NewInt(7), 50_000, false, []byte{0xaa})

	dep, err := UnmarshalDepositLogEvent(ev)
	require.NoError(t, err)
	require.Equal(t, from, dep.From)
	require.Equal(t, to, *dep.To)
	require.Equal(t, 0, dep.Mint.Cmp(big.NewInt(100)))
	require.Equal(t, 0, dep.Value.Cmp(big.NewInt(7)))
	require.Equal(t, uint64(50_000), dep.Gas)
	require.Equal(t, []byte{0xaa}, dep.Data)
	require.Equal(t, UserDepositSourceHash(ev.BlockHash, uint64(ev.Index)), dep.SourceHash)
}

func TestUnmarshalDepositLogEventCreation(t *testing.T) {
	ev := depositLog(t, common.HexToAddress("0xdead"), common.HexToAddress("0x01"), common.Address{}, new(big.Int), new(big.Int), 1000, true, nil)
	dep, err := UnmarshalDepositLogEvent(ev)
	require.NoError(t, err)
	require.Nil(t, dep.To)
	require.Nil(t, dep.Mint)
}

func TestUserDepositsOrderAndFiltering(t *testing.T) {
	contract := common.HexToAddress("0xdead")
	other := common.HexToAddress("0xbeef")
	ev1 := depositLog(t, contract, common.HexToAddress("0x01"), common.HexToAddress("0x02"), new(big.Int), big.NewInt(1), 1000, false, nil)
	ev2 := depositLog(t, other, common.HexToAddress("0x03"), common.HexToAddress("0x04"), new(big.Int), big.NewInt(2), 1000, false, nil)
	ev3 := depositLog(t, contract, common.HexToAddress("0x05"), common.HexToAddress("0x06"), new(big.Int), big.NewInt(3), 1000, false, nil)
	ev3.Index = 9

	receipts := []*types.Receipt{
		{Status: types.ReceiptStatusSuccessful, Logs: []*types.Log{ev1, ev2}},
		{Status: types.ReceiptStatusSuccessful, Logs: []*types.Log{ev3}},
	}
	deps, err := UserDeposits(receipts, contract)
	require.NoError(t, err)
	require.Len(t, deps, 2)
	require.Equal(t, 0, deps[0].Value.Cmp(big.NewInt(1)))
	require.Equal(t, 0, deps[1].Value.Cmp(big.NewInt(3)))
}

func TestUserDepositsSkipFailedReceipts(t *testing.T) {
	contract := common.HexToAddress("0xdead")
	ev := depositLog(t, contract, common.HexToAddress("0x01"), common.HexToAddress("0x02"), new(big.Int), big.NewInt(1), 1000, false, nil)
	receipts := []*types.Receipt{{Status: types.ReceiptStatusFailed, Logs: []*types.Log{ev}}}
	deps, err := UserDeposits(receipts, contract)
	require.NoError(t, err)
	require.Empty(t, deps)
}
