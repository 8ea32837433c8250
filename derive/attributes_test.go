package derive

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/okx/fault-proof-client/eth"
)

// sealedL1Header builds a sealed L1 header consistent with an info block.
func sealedL1Header(number, time uint64) eth.SealedHeader {
	return eth.SealHeader(&types.Header{
		ParentHash: common.BytesToHash([]byte{0x11, byte(number - 1)}),
		Difficulty: new(big.Int),
		Number:     new(big.Int).SetUint64(number),
		GasLimit:   30_000_000,
		Time:       time,
		BaseFee:    big.NewInt(7),
		MixDigest:  common.BytesToHash([]byte{0x99, byte(number)}),
	})
}

func TestPreparePayloadAttributesSameEpoch(t *testing.T) {
	cfg := testConfig()
	chain := newTestChainProvider()
	l2p := newTestL2Provider()

	epochHeader := sealedL1Header(100, 1000)
	epoch := eth.BlockInfo{Hash: epochHeader.Hash, Number: 100, Time: 1000}
	chain.insertBlock(epoch, epochHeader)

	safeHead := eth.L2BlockInfo{
		BlockInfo:      eth.BlockInfo{Hash: common.HexToHash("0x5afe"), Number: 7, Time: 1004},
		L1Origin:       epoch.ID(),
		SequenceNumber: 2,
	}
	l2p.sysCfgs[7] = cfg.Genesis.SystemConfig

	batch := &SingularBatch{
		ParentHash:   safeHead.Hash,
		EpochNum:     epoch.Number,
		EpochHash:    epoch.Hash,
		Timestamp:    1006,
		Transactions: [][]byte{{0x02, 0xaa}},
	}
	builder := NewAttributesBuilder(testLogger(), cfg, chain, l2p)
	attrs, err := builder.PreparePayloadAttributes(batch, safeHead)
	require.NoError(t, err)

	require.Equal(t, safeHead.Hash, attrs.ParentHash)
	require.Equal(t, uint64(1006), attrs.Timestamp)
	require.Equal(t, epochHeader.MixDigest, attrs.PrevRandao)
	require.Equal(t, eth.SequencerFeeVaultAddress, attrs.FeeRecipient)
	require.True(t, attrs.NoTxPool)
	require.Len(t, attrs.Transactions, 2)

	// The first transaction is the L1 attributes deposit with the parent's
	// sequence number advanced.
	dep, err := eth.UnmarshalDepositTx(attrs.Transactions[0])
	require.NoError(t, err)
	info, err := eth.UnmarshalL1BlockInfo(dep.Data)
	require.NoError(t, err)
	require.Equal(t, uint64(3), info.SequenceNumber)
	require.Equal(t, epoch.Number, info.Number)
	require.Equal(t, []byte{0x02, 0xaa}, attrs.Transactions[1])
}

func TestPreparePayloadAttributesNewEpochDeposits(t *testing.T) {
	cfg := testConfig()
	chain := newTestChainProvider()
	l2p := newTestL2Provider()

	oldEpochHeader := sealedL1Header(100, 1000)
	oldEpoch := eth.BlockInfo{Hash: oldEpochHeader.Hash, Number: 100, Time: 1000}
	newEpochHeader := sealedL1Header(101, 1012)
	newEpoch := eth.BlockInfo{Hash: newEpochHeader.Hash, Number: 101, Time: 1012}
	chain.insertBlock(oldEpoch, oldEpochHeader)
	chain.insertBlock(newEpoch, newEpochHeader)

	// One user deposit in the new epoch's receipts.
	depLog := userDepositLog(cfg.DepositContractAddress, newEpochHeader.Hash, 0)
	chain.receipts[newEpochHeader.Hash] = []*types.Receipt{
		{Status: types.ReceiptStatusSuccessful, Logs: []*types.Log{depLog}},
	}

	safeHead := eth.L2BlockInfo{
		BlockInfo:      eth.BlockInfo{Hash: common.HexToHash("0x5afe"), Number: 7, Time: 1010},
		L1Origin:       oldEpoch.ID(),
		SequenceNumber: 5,
	}
	l2p.sysCfgs[7] = cfg.Genesis.SystemConfig

	batch := &SingularBatch{
		ParentHash:   safeHead.Hash,
		EpochNum:     newEpoch.Number,
		EpochHash:    newEpoch.Hash,
		Timestamp:    1012,
		Transactions: [][]byte{{0x02, 0xbb}},
	}
	builder := NewAttributesBuilder(testLogger(), cfg, chain, l2p)
	attrs, err := builder.PreparePayloadAttributes(batch, safeHead)
	require.NoError(t, err)

	// L1 info deposit, then the user deposit, then the batch transaction,
	// in that order.
	require.Len(t, attrs.Transactions, 3)
	require.True(t, eth.IsDepositTx(attrs.Transactions[0]))
	require.True(t, eth.IsDepositTx(attrs.Transactions[1]))
	require.False(t, eth.IsDepositTx(attrs.Transactions[2]))

	info, err := eth.UnmarshalDepositTx(attrs.Transactions[0])
	require.NoError(t, err)
	l1Info, err := eth.UnmarshalL1BlockInfo(info.Data)
	require.NoError(t, err)
	require.Equal(t, uint64(0), l1Info.SequenceNumber, "sequence number resets on a new epoch")

	userDep, err := eth.UnmarshalDepositTx(attrs.Transactions[1])
	require.NoError(t, err)
	require.Equal(t, eth.UserDepositSourceHash(newEpochHeader.Hash, 0), userDep.SourceHash)
}

func TestPreparePayloadAttributesEpochMismatchResets(t *testing.T) {
	cfg := testConfig()
	chain := newTestChainProvider()
	l2p := newTestL2Provider()

	epochHeader := sealedL1Header(100, 1000)
	epoch := eth.BlockInfo{Hash: epochHeader.Hash, Number: 100, Time: 1000}
	chain.insertBlock(epoch, epochHeader)

	safeHead := eth.L2BlockInfo{
		BlockInfo: eth.BlockInfo{Hash: common.HexToHash("0x5afe"), Number: 7, Time: 1004},
		L1Origin:  eth.BlockID{Hash: common.HexToHash("0x07e4"), Number: 104},
	}
	l2p.sysCfgs[7] = cfg.Genesis.SystemConfig

	batch := &SingularBatch{
		ParentHash: safeHead.Hash,
		EpochNum:   100,
		EpochHash:  epoch.Hash,
		Timestamp:  1006,
	}
	builder := NewAttributesBuilder(testLogger(), cfg, chain, l2p)
	_, err := builder.PreparePayloadAttributes(batch, safeHead)
	require.True(t, IsReset(err), "epoch regression must reset the pipeline")
}

// userDepositLog builds a minimal TransactionDeposited log.
func userDepositLog(contract common.Address, blockHash common.Hash, index uint) *types.Log {
	opaque := make([]byte, 73)
	opaque[63] = 1 // value = 1 wei
	opaque[71] = 0x42
	payload := make([]byte, 0, 64+len(opaque))
	payload = append(payload, common.BigToHash(big.NewInt(32)).Bytes()...)
	payload = append(payload, common.BigToHash(big.NewInt(int64(len(opaque)))).Bytes()...)
	payload = append(payload, opaque...)
	return &types.Log{
		Address: contract,
		Topics: []common.Hash{
			eth.DepositEventABIHash,
			common.BytesToHash(common.HexToAddress("0x01").Bytes()),
			common.BytesToHash(common.HexToAddress("0x02").Bytes()),
			eth.DepositEventVersion0,
		},
		Data:      payload,
		BlockHash: blockHash,
		Index:     index,
	}
}
