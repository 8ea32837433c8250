package executor

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/okx/fault-proof-client/eth"
	"github.com/okx/fault-proof-client/mpt"
	"github.com/okx/fault-proof-client/preimage"
	"github.com/okx/fault-proof-client/rollup"
)

// nodeMapFetcher serves trie nodes and code from maps.
type nodeMapFetcher struct {
	nodes map[common.Hash][]byte
	codes map[common.Hash][]byte
}

func (f *nodeMapFetcher) NodeByHash(hash common.Hash) ([]byte, error) {
	n, ok := f.nodes[hash]
	if !ok {
		return nil, fmt.Errorf("missing node %s", hash)
	}
	return n, nil
}

func (f *nodeMapFetcher) CodeByHash(hash common.Hash) ([]byte, error) {
	c, ok := f.codes[hash]
	if !ok {
		return nil, fmt.Errorf("missing code %s", hash)
	}
	return c, nil
}

func emptyFetcher() *nodeMapFetcher {
	return &nodeMapFetcher{nodes: map[common.Hash][]byte{}, codes: map[common.Hash][]byte{}}
}

func execConfig() *rollup.Config {
	return &rollup.Config{
		Genesis: rollup.Genesis{
			L1: eth.BlockID{Hash: common.HexToHash("0x01"), Number: 100},
			L2: eth.BlockID{Hash: common.HexToHash("0x02"), Number: 0},
			SystemConfig: rollup.SystemConfig{
				BatcherAddr: common.HexToAddress("0x42"),
				GasLimit:    30_000_000,
			},
		},
		BlockTime:              2,
		MaxSequencerDrift:      600,
		SeqWindowSize:          10,
		ChannelTimeout:         10,
		L1ChainID:              900,
		L2ChainID:              901,
		BatchInboxAddress:      common.HexToAddress("0xff01"),
		DepositContractAddress: common.HexToAddress("0xdead"),
		L1SystemConfigAddress:  common.HexToAddress("0xbeef"),
	}
}

func parentHeader() eth.SealedHeader {
	return eth.SealHeader(&types.Header{
		ParentHash:  common.HexToHash("0x00"),
		UncleHash:   types.EmptyUncleHash,
		Root:        mpt.EmptyRoot,
		TxHash:      types.EmptyRootHash,
		ReceiptHash: types.EmptyRootHash,
		Difficulty:  new(big.Int),
		Number:      new(big.Int),
		GasLimit:    30_000_000,
		GasUsed:     0,
		Time:        1700000000,
		BaseFee:     big.NewInt(1_000_000_000),
	})
}

// l1InfoTx builds the leading system deposit of a test payload.
func l1InfoTx(t *testing.T) []byte {
	t.Helper()
	l1Header := eth.SealHeader(&types.Header{
		Difficulty: new(big.Int),
		Number:     big.NewInt(101),
		GasLimit:   30_000_000,
		Time:       1700000001,
		BaseFee:    big.NewInt(7_000_000_000),
	})
	dep := eth.L1InfoDeposit(0, l1Header, common.HexToAddress("0x42"), common.Hash{}, common.Hash{})
	enc, err := dep.MarshalBinary()
	require.NoError(t, err)
	return enc
}

func newExecutor(t *testing.T, parent eth.SealedHeader, fetch StateFetcher) *StatelessL2BlockExecutor {
	t.Helper()
	return NewStatelessL2BlockExecutor(log.New(), execConfig(), parent, fetch, preimage.NoopHinter{}, nil)
}

func TestExecuteDepositOnlyBlock(t *testing.T) {
	parent := parentHeader()
	ex := newExecutor(t, parent, emptyFetcher())

	attrs := eth.L2PayloadAttributes{
		ParentHash:   parent.Hash,
		Timestamp:    parent.Time + 2,
		PrevRandao:   common.HexToHash("0x99"),
		FeeRecipient: eth.SequencerFeeVaultAddress,
		GasLimit:     30_000_000,
		Transactions: [][]byte{l1InfoTx(t)},
		NoTxPool:     true,
	}
	header, err := ex.ExecutePayload(attrs)
	require.NoError(t, err)

	require.Equal(t, parent.Hash, header.ParentHash)
	require.Equal(t, parent.Number.Uint64()+1, header.Number.Uint64())
	require.Equal(t, attrs.Timestamp, header.Time)
	require.Equal(t, attrs.PrevRandao, header.MixDigest)
	require.NotEqual(t, mpt.EmptyRoot, header.Root, "the L1 info depositor's nonce changes the state")
	require.Equal(t, header.Hash, header.Header.Hash(), "sealed hash must match a re-hash")
}

func TestExecutePayloadRejectsBadParent(t *testing.T) {
	parent := parentHeader()
	ex := newExecutor(t, parent, emptyFetcher())

	attrs := eth.L2PayloadAttributes{
		ParentHash:   common.HexToHash("0xBAD"),
		Timestamp:    parent.Time + 2,
		Transactions: [][]byte{l1InfoTx(t)},
	}
	_, err := ex.ExecutePayload(attrs)
	require.ErrorIs(t, err, ErrInvalidAttributes)
}

func TestExecutePayloadRequiresLeadingDeposit(t *testing.T) {
	parent := parentHeader()
	ex := newExecutor(t, parent, emptyFetcher())

	attrs := eth.L2PayloadAttributes{
		ParentHash:   parent.Hash,
		Timestamp:    parent.Time + 2,
		Transactions: [][]byte{{0x02, 0x01}},
	}
	_, err := ex.ExecutePayload(attrs)
	require.ErrorIs(t, err, ErrInvalidAttributes)
}

func TestExecuteDepositMintAndTransfer(t *testing.T) {
	parent := parentHeader()
	ex := newExecutor(t, parent, emptyFetcher())

	from := common.HexToAddress("0x0101")
	to := common.HexToAddress("0x0202")
	dep := &eth.DepositTx{
		SourceHash: common.HexToHash("0x5e"),
		From:       from,
		To:         &to,
		Mint:       big.NewInt(1000),
		Value:      big.NewInt(400),
		Gas:        21000,
	}
	enc, err := dep.MarshalBinary()
	require.NoError(t, err)

	attrs := eth.L2PayloadAttributes{
		ParentHash:   parent.Hash,
		Timestamp:    parent.Time + 2,
		Transactions: [][]byte{l1InfoTx(t), enc},
	}
	_, err = ex.ExecutePayload(attrs)
	require.NoError(t, err)

	sender, err := ex.db.GetAccount(from)
	require.NoError(t, err)
	require.Equal(t, 0, sender.Balance.Cmp(uint256.NewInt(600)))
	require.Equal(t, uint64(1), sender.Nonce)
	recipient, err := ex.db.GetAccount(to)
	require.NoError(t, err)
	require.Equal(t, 0, recipient.Balance.Cmp(uint256.NewInt(400)))
}

func TestExecuteFailedDepositRecordedNotFatal(t *testing.T) {
	parent := parentHeader()
	ex := newExecutor(t, parent, emptyFetcher())

	from := common.HexToAddress("0x0303")
	to := common.HexToAddress("0x0404")
	dep := &eth.DepositTx{
		SourceHash: common.HexToHash("0x5f"),
		From:       from,
		To:         &to,
		Value:      big.NewInt(400), // no mint, no balance
		Gas:        50_000,
	}
	enc, err := dep.MarshalBinary()
	require.NoError(t, err)

	attrs := eth.L2PayloadAttributes{
		ParentHash:   parent.Hash,
		Timestamp:    parent.Time + 2,
		Transactions: [][]byte{l1InfoTx(t), enc},
	}
	header, err := ex.ExecutePayload(attrs)
	require.NoError(t, err, "a failing deposit cannot revert the block")
	require.NotZero(t, header.GasUsed)

	sender, err := ex.db.GetAccount(from)
	require.NoError(t, err)
	require.Equal(t, uint64(1), sender.Nonce, "failed deposits still bump the nonce")
}

func TestExecuteInvalidUserTxDropped(t *testing.T) {
	parent := parentHeader()
	ex := newExecutor(t, parent, emptyFetcher())

	// A signed tx from an unfunded account cannot cover its cost.
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := types.LatestSignerForChainID(big.NewInt(901))
	tx := types.MustSignNewTx(key, signer, &types.DynamicFeeTx{
		ChainID:   big.NewInt(901),
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2_000_000_000),
		Gas:       21000,
		To:        &common.Address{0x01},
		Value:     big.NewInt(1),
	})
	txEnc, err := tx.MarshalBinary()
	require.NoError(t, err)

	attrs := eth.L2PayloadAttributes{
		ParentHash:   parent.Hash,
		Timestamp:    parent.Time + 2,
		Transactions: [][]byte{l1InfoTx(t), txEnc},
	}
	header, err := ex.ExecutePayload(attrs)
	require.NoError(t, err)

	// Only the deposit made it into the block.
	root, err := mpt.ListRoot([][]byte{attrs.Transactions[0]})
	require.NoError(t, err)
	require.Equal(t, root, header.TxHash)
}

func TestExecuteFundedUserTransfer(t *testing.T) {
	parent := parentHeader()
	ex := newExecutor(t, parent, emptyFetcher())

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)
	to := common.HexToAddress("0x0505")

	// Fund the sender with a mint deposit, then transfer in the same block.
	fund := &eth.DepositTx{
		SourceHash: common.HexToHash("0x60"),
		From:       from,
		Mint:       new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1_000_000_000_000)),
		Value:      new(big.Int),
		Gas:        21000,
	}
	fundEnc, err := fund.MarshalBinary()
	require.NoError(t, err)

	signer := types.LatestSignerForChainID(big.NewInt(901))
	tx := types.MustSignNewTx(key, signer, &types.DynamicFeeTx{
		ChainID:   big.NewInt(901),
		Nonce:     1, // the deposit consumed nonce 0
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2_000_000_000),
		Gas:       30_000,
		To:        &to,
		Value:     big.NewInt(12345),
	})
	txEnc, err := tx.MarshalBinary()
	require.NoError(t, err)

	attrs := eth.L2PayloadAttributes{
		ParentHash:   parent.Hash,
		Timestamp:    parent.Time + 2,
		FeeRecipient: eth.SequencerFeeVaultAddress,
		Transactions: [][]byte{l1InfoTx(t), fundEnc, txEnc},
	}
	header, err := ex.ExecutePayload(attrs)
	require.NoError(t, err)

	root, err := mpt.ListRoot(attrs.Transactions)
	require.NoError(t, err)
	require.Equal(t, root, header.TxHash, "all three transactions included")

	recipient, err := ex.db.GetAccount(to)
	require.NoError(t, err)
	require.Equal(t, 0, recipient.Balance.Cmp(uint256.NewInt(12345)))
	sender, err := ex.db.GetAccount(from)
	require.NoError(t, err)
	require.Equal(t, uint64(2), sender.Nonce)
}

func TestComputeOutputRootPure(t *testing.T) {
	parent := parentHeader()
	ex := newExecutor(t, parent, emptyFetcher())

	attrs := eth.L2PayloadAttributes{
		ParentHash:   parent.Hash,
		Timestamp:    parent.Time + 2,
		Transactions: [][]byte{l1InfoTx(t)},
	}
	header, err := ex.ExecutePayload(attrs)
	require.NoError(t, err)

	root1, err := ex.ComputeOutputRoot()
	require.NoError(t, err)
	root2, err := ex.ComputeOutputRoot()
	require.NoError(t, err)
	require.Equal(t, root1, root2, "output root is a pure function of the post state")

	storageRoot, err := ex.db.StorageRoot(eth.L2ToL1MessagePasserAddress)
	require.NoError(t, err)
	require.Equal(t, eth.OutputRootV0(header.Root, storageRoot, header.Hash), root1)
}

func TestComputeOutputRootRequiresExecution(t *testing.T) {
	ex := newExecutor(t, parentHeader(), emptyFetcher())
	_, err := ex.ComputeOutputRoot()
	require.ErrorIs(t, err, ErrNoBlockExecuted)
}
