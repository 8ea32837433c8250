package l2

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"

	"github.com/okx/fault-proof-client/eth"
	"github.com/okx/fault-proof-client/mpt"
	"github.com/okx/fault-proof-client/preimage"
	"github.com/okx/fault-proof-client/rollup"
)

type mapOracle map[preimage.Key][]byte

func (m mapOracle) Get(key preimage.Key) ([]byte, error) {
	v, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("no preimage for key %x", key)
	}
	return v, nil
}

func (m mapOracle) GetExact(key preimage.Key, buf []byte) error {
	v, err := m.Get(key)
	if err != nil {
		return err
	}
	if len(v) != len(buf) {
		return preimage.ErrWrongSize
	}
	copy(buf, v)
	return nil
}

func testConfig(genesisL2 eth.BlockID) *rollup.Config {
	return &rollup.Config{
		Genesis: rollup.Genesis{
			L1:     eth.BlockID{Hash: common.HexToHash("0x6101"), Number: 100},
			L2:     genesisL2,
			L2Time: 1700000000,
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

// testWorld builds a two-block L2 chain: the genesis anchor and one derived
// block whose first transaction is an L1 attributes deposit.
type testWorld struct {
	oracle     mapOracle
	cfg        *rollup.Config
	genesis    eth.SealedHeader
	block1     eth.SealedHeader
	outputRoot common.Hash
}

func buildWorld(t *testing.T) *testWorld {
	t.Helper()
	oracle := mapOracle{}

	genesisHeader := &types.Header{
		UncleHash:   types.EmptyUncleHash,
		Root:        mpt.EmptyRoot,
		TxHash:      types.EmptyRootHash,
		ReceiptHash: types.EmptyRootHash,
		Difficulty:  new(big.Int),
		Number:      new(big.Int),
		GasLimit:    30_000_000,
		Time:        1700000000,
		BaseFee:     big.NewInt(1_000_000_000),
	}
	genesis := addHeader(t, oracle, genesisHeader)

	l1Header := eth.SealHeader(&types.Header{
		Difficulty: new(big.Int),
		Number:     big.NewInt(101),
		GasLimit:   30_000_000,
		Time:       1700000001,
		BaseFee:    big.NewInt(7),
	})
	l1Info := eth.L1InfoDeposit(0, l1Header, common.HexToAddress("0x42"), common.Hash{}, common.Hash{})
	l1InfoEnc, err := l1Info.MarshalBinary()
	require.NoError(t, err)
	txRoot := addListTrie(t, oracle, [][]byte{l1InfoEnc})

	block1Header := &types.Header{
		ParentHash:  genesis.Hash,
		UncleHash:   types.EmptyUncleHash,
		Root:        mpt.EmptyRoot,
		TxHash:      txRoot,
		ReceiptHash: types.EmptyRootHash,
		Difficulty:  new(big.Int),
		Number:      big.NewInt(1),
		GasLimit:    28_000_000,
		Time:        1700000002,
		BaseFee:     big.NewInt(900_000_000),
	}
	block1 := addHeader(t, oracle, block1Header)

	output := eth.OutputV0{
		StateRoot:                block1.Root,
		MessagePasserStorageRoot: types.EmptyRootHash,
		BlockHash:                block1.Hash,
	}
	oracle[preimage.Keccak256Key(output.Root())] = output.Marshal()

	return &testWorld{
		oracle:     oracle,
		cfg:        testConfig(eth.BlockID{Hash: genesis.Hash, Number: 0}),
		genesis:    genesis,
		block1:     block1,
		outputRoot: output.Root(),
	}
}

func addHeader(t *testing.T, oracle mapOracle, h *types.Header) eth.SealedHeader {
	t.Helper()
	enc, err := rlp.EncodeToBytes(h)
	require.NoError(t, err)
	sealed := eth.SealHeader(h)
	oracle[preimage.Keccak256Key(sealed.Hash)] = enc
	return sealed
}

func addListTrie(t *testing.T, oracle mapOracle, values [][]byte) common.Hash {
	t.Helper()
	root, nodes, err := mpt.WriteTrie(values)
	require.NoError(t, err)
	for h, n := range nodes {
		oracle[preimage.Keccak256Key(h)] = n
	}
	return root
}

func TestProviderAnchorsAtOutputRoot(t *testing.T) {
	w := buildWorld(t)
	p, err := NewOracleL2ChainProvider(w.outputRoot, w.cfg, w.oracle, preimage.NoopHinter{})
	require.NoError(t, err)
	require.Equal(t, w.block1.Hash, p.SafeHead().Hash)
}

func TestProviderRejectsInconsistentOutput(t *testing.T) {
	w := buildWorld(t)
	// An output whose state root does not match the header's.
	bad := eth.OutputV0{
		StateRoot:                common.HexToHash("0xBAD"),
		MessagePasserStorageRoot: types.EmptyRootHash,
		BlockHash:                w.block1.Hash,
	}
	w.oracle[preimage.Keccak256Key(bad.Root())] = bad.Marshal()
	_, err := NewOracleL2ChainProvider(bad.Root(), w.cfg, w.oracle, preimage.NoopHinter{})
	require.Error(t, err)
}

func TestL2BlockInfoByNumber(t *testing.T) {
	w := buildWorld(t)
	p, err := NewOracleL2ChainProvider(w.outputRoot, w.cfg, w.oracle, preimage.NoopHinter{})
	require.NoError(t, err)

	// The derived block reconstructs its origin from the L1 attributes tx.
	info, err := p.L2BlockInfoByNumber(1)
	require.NoError(t, err)
	require.Equal(t, uint64(101), info.L1Origin.Number)
	require.Equal(t, uint64(0), info.SequenceNumber)

	// The genesis block uses the config anchors.
	genesisInfo, err := p.L2BlockInfoByNumber(0)
	require.NoError(t, err)
	require.Equal(t, w.cfg.Genesis.L1, genesisInfo.L1Origin)
}

func TestL2BlockInfoPastSafeHead(t *testing.T) {
	w := buildWorld(t)
	p, err := NewOracleL2ChainProvider(w.outputRoot, w.cfg, w.oracle, preimage.NoopHinter{})
	require.NoError(t, err)
	_, err = p.L2BlockInfoByNumber(5)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSystemConfigByNumber(t *testing.T) {
	w := buildWorld(t)
	p, err := NewOracleL2ChainProvider(w.outputRoot, w.cfg, w.oracle, preimage.NoopHinter{})
	require.NoError(t, err)

	// Genesis serves the genesis config.
	sysCfg, err := p.SystemConfigByNumber(0)
	require.NoError(t, err)
	require.Equal(t, w.cfg.Genesis.SystemConfig, sysCfg)

	// Later blocks reconstruct from the L1 attributes tx and the header.
	sysCfg, err = p.SystemConfigByNumber(1)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0x42"), sysCfg.BatcherAddr)
	require.Equal(t, uint64(28_000_000), sysCfg.GasLimit)
}
