package derive

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/okx/fault-proof-client/eth"
	"github.com/okx/fault-proof-client/rollup"
)

func testLogger() log.Logger {
	return log.New()
}

func testConfig() *rollup.Config {
	return &rollup.Config{
		Genesis: rollup.Genesis{
			L1:     eth.BlockID{Hash: common.HexToHash("0x6101"), Number: 100},
			L2:     eth.BlockID{Hash: common.HexToHash("0x6201"), Number: 0},
			L2Time: 1700000000,
			SystemConfig: rollup.SystemConfig{
				BatcherAddr: common.HexToAddress("0x42"),
				GasLimit:    30_000_000,
			},
		},
		BlockTime:              2,
		MaxSequencerDrift:      600,
		SeqWindowSize:          5,
		ChannelTimeout:         10,
		L1ChainID:              900,
		L2ChainID:              901,
		BatchInboxAddress:      common.HexToAddress("0xff00000000000000000000000000000000000901"),
		DepositContractAddress: common.HexToAddress("0xdead"),
		L1SystemConfigAddress:  common.HexToAddress("0xbeef"),
	}
}

// testChainProvider is an in-memory ChainProvider.
type testChainProvider struct {
	headers  map[common.Hash]eth.SealedHeader
	blocks   map[uint64]eth.BlockInfo
	receipts map[common.Hash][]*types.Receipt
	txs      map[common.Hash]types.Transactions
}

func newTestChainProvider() *testChainProvider {
	return &testChainProvider{
		headers:  make(map[common.Hash]eth.SealedHeader),
		blocks:   make(map[uint64]eth.BlockInfo),
		receipts: make(map[common.Hash][]*types.Receipt),
		txs:      make(map[common.Hash]types.Transactions),
	}
}

func (p *testChainProvider) insertBlock(info eth.BlockInfo, header eth.SealedHeader) {
	p.blocks[info.Number] = info
	p.headers[info.Hash] = header
}

func (p *testChainProvider) HeaderByHash(hash common.Hash) (eth.SealedHeader, error) {
	h, ok := p.headers[hash]
	if !ok {
		return eth.SealedHeader{}, fmt.Errorf("header %s not found", hash)
	}
	return h, nil
}

func (p *testChainProvider) BlockInfoByNumber(number uint64) (eth.BlockInfo, error) {
	b, ok := p.blocks[number]
	if !ok {
		return eth.BlockInfo{}, fmt.Errorf("block %d not found", number)
	}
	return b, nil
}

func (p *testChainProvider) ReceiptsByHash(hash common.Hash) ([]*types.Receipt, error) {
	return p.receipts[hash], nil
}

func (p *testChainProvider) BlockInfoAndTransactionsByHash(hash common.Hash) (eth.BlockInfo, types.Transactions, error) {
	h, ok := p.headers[hash]
	if !ok {
		return eth.BlockInfo{}, nil, fmt.Errorf("block %s not found", hash)
	}
	return eth.HeaderBlockInfo(h), p.txs[hash], nil
}

// testL2Provider is an in-memory L2ChainProvider.
type testL2Provider struct {
	infos   map[uint64]eth.L2BlockInfo
	sysCfgs map[uint64]rollup.SystemConfig
}

func newTestL2Provider() *testL2Provider {
	return &testL2Provider{
		infos:   make(map[uint64]eth.L2BlockInfo),
		sysCfgs: make(map[uint64]rollup.SystemConfig),
	}
}

func (p *testL2Provider) L2BlockInfoByNumber(number uint64) (eth.L2BlockInfo, error) {
	info, ok := p.infos[number]
	if !ok {
		return eth.L2BlockInfo{}, fmt.Errorf("L2 block %d not found", number)
	}
	return info, nil
}

func (p *testL2Provider) SystemConfigByNumber(number uint64) (rollup.SystemConfig, error) {
	cfg, ok := p.sysCfgs[number]
	if !ok {
		return rollup.SystemConfig{}, fmt.Errorf("system config at %d not found", number)
	}
	return cfg, nil
}

// mockDataProvider feeds a FrameQueue with canned payloads.
type mockDataProvider struct {
	origin eth.BlockInfo
	data   [][]byte
	errs   []error
}

func (m *mockDataProvider) Origin() eth.BlockInfo { return m.origin }

func (m *mockDataProvider) NextData() ([]byte, error) {
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	if len(m.data) == 0 {
		return nil, ErrEof
	}
	d := m.data[0]
	m.data = m.data[1:]
	return d, nil
}

// mockFrameProvider feeds a ChannelBank with canned frames.
type mockFrameProvider struct {
	origin eth.BlockInfo
	frames []Frame
}

func (m *mockFrameProvider) Origin() eth.BlockInfo { return m.origin }

func (m *mockFrameProvider) NextFrame() (Frame, error) {
	if len(m.frames) == 0 {
		return Frame{}, ErrEof
	}
	f := m.frames[0]
	m.frames = m.frames[1:]
	return f, nil
}

// mockChannelProvider feeds a ChannelReader with canned channel payloads.
type mockChannelProvider struct {
	origin eth.BlockInfo
	data   [][]byte
}

func (m *mockChannelProvider) Origin() eth.BlockInfo { return m.origin }

func (m *mockChannelProvider) NextData() ([]byte, error) {
	if len(m.data) == 0 {
		return nil, ErrEof
	}
	d := m.data[0]
	m.data = m.data[1:]
	return d, nil
}

// mockBatchProvider feeds a BatchQueue with canned batches.
type mockBatchProvider struct {
	origin  eth.BlockInfo
	batches []*BatchWithL1InclusionBlock
}

func (m *mockBatchProvider) Origin() eth.BlockInfo { return m.origin }

func (m *mockBatchProvider) NextBatch() (*BatchWithL1InclusionBlock, error) {
	if len(m.batches) == 0 {
		return nil, ErrEof
	}
	b := m.batches[0]
	m.batches = m.batches[1:]
	return b, nil
}

func l1Block(number uint64, time uint64) eth.BlockInfo {
	return eth.BlockInfo{
		Hash:       common.BytesToHash([]byte(fmt.Sprintf("l1-%d", number))),
		Number:     number,
		ParentHash: common.BytesToHash([]byte(fmt.Sprintf("l1-%d", number-1))),
		Time:       time,
	}
}
