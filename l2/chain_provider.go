// Package l2 provides the oracle-backed view of the L2 chain: headers,
// blocks, per-block system configs, state-trie nodes and contract code.
package l2

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/okx/fault-proof-client/eth"
	"github.com/okx/fault-proof-client/mpt"
	"github.com/okx/fault-proof-client/preimage"
	"github.com/okx/fault-proof-client/rollup"
)

// ErrNotFound is returned when a block number lies past the provider's safe
// head anchor.
var ErrNotFound = errors.New("L2 block not found")

const cacheSize = 1000

// OracleL2ChainProvider serves L2 chain data from the preimage oracle,
// anchored at the block the agreed-upon output root commits to.
type OracleL2ChainProvider struct {
	oracle preimage.Oracle
	hinter preimage.Hinter
	cfg    *rollup.Config

	head eth.SealedHeader

	headers *lru.Cache[common.Hash, eth.SealedHeader]
	numbers *lru.Cache[uint64, common.Hash]
	txLists *lru.Cache[common.Hash, [][]byte]
}

// NewOracleL2ChainProvider resolves the agreed output root to its L2 block
// and anchors a provider there.
func NewOracleL2ChainProvider(outputRoot common.Hash, cfg *rollup.Config, oracle preimage.Oracle, hinter preimage.Hinter) (*OracleL2ChainProvider, error) {
	headers, _ := lru.New[common.Hash, eth.SealedHeader](cacheSize)
	numbers, _ := lru.New[uint64, common.Hash](cacheSize)
	txLists, _ := lru.New[common.Hash, [][]byte](cacheSize)
	p := &OracleL2ChainProvider{
		oracle:  oracle,
		hinter:  hinter,
		cfg:     cfg,
		headers: headers,
		numbers: numbers,
		txLists: txLists,
	}
	output, err := p.OutputByRoot(outputRoot)
	if err != nil {
		return nil, err
	}
	head, err := p.HeaderByHash(output.BlockHash)
	if err != nil {
		return nil, fmt.Errorf("resolve safe head %s: %w", output.BlockHash, err)
	}
	if head.Root != output.StateRoot {
		return nil, fmt.Errorf("output state root %s does not match safe head root %s", output.StateRoot, head.Root)
	}
	p.head = head
	return p, nil
}

// SafeHead returns the sealed header the agreed output root commits to.
func (p *OracleL2ChainProvider) SafeHead() eth.SealedHeader {
	return p.head
}

// OutputByRoot fetches and decodes the preimage of an output root.
func (p *OracleL2ChainProvider) OutputByRoot(root common.Hash) (eth.OutputV0, error) {
	if err := p.hinter.Hint(preimage.NewHint(preimage.HintL2OutputRoot, root[:])); err != nil {
		return eth.OutputV0{}, err
	}
	data, err := p.oracle.Get(preimage.Keccak256Key(root))
	if err != nil {
		return eth.OutputV0{}, fmt.Errorf("fetch output root preimage %s: %w", root, err)
	}
	output, err := eth.UnmarshalOutputV0(data)
	if err != nil {
		return eth.OutputV0{}, fmt.Errorf("decode output root preimage %s: %w", root, err)
	}
	return output, nil
}

// HeaderByHash fetches and seals the L2 header with the given hash.
func (p *OracleL2ChainProvider) HeaderByHash(hash common.Hash) (eth.SealedHeader, error) {
	if h, ok := p.headers.Get(hash); ok {
		return h, nil
	}
	if err := p.hinter.Hint(preimage.NewHint(preimage.HintL2BlockHeader, hash[:])); err != nil {
		return eth.SealedHeader{}, err
	}
	data, err := p.oracle.Get(preimage.Keccak256Key(hash))
	if err != nil {
		return eth.SealedHeader{}, fmt.Errorf("fetch L2 header %s: %w", hash, err)
	}
	sealed, err := eth.DecodeSealedHeader(hash, data)
	if err != nil {
		return eth.SealedHeader{}, fmt.Errorf("decode L2 header %s: %w", hash, err)
	}
	p.headers.Add(hash, sealed)
	p.numbers.Add(sealed.Number.Uint64(), hash)
	return sealed, nil
}

// HeaderByNumber walks parent links back from the safe head to the
// requested number.
func (p *OracleL2ChainProvider) HeaderByNumber(number uint64) (eth.SealedHeader, error) {
	if hash, ok := p.numbers.Get(number); ok {
		return p.HeaderByHash(hash)
	}
	if number > p.head.Number.Uint64() {
		return eth.SealedHeader{}, fmt.Errorf("%w: %d is past safe head %d", ErrNotFound, number, p.head.Number.Uint64())
	}
	current := p.head
	for current.Number.Uint64() > number {
		var err error
		current, err = p.HeaderByHash(current.ParentHash)
		if err != nil {
			return eth.SealedHeader{}, err
		}
	}
	return current, nil
}

// TransactionsByBlockHash walks the opaque transaction list of an L2 block
// out of its transactions trie.
func (p *OracleL2ChainProvider) TransactionsByBlockHash(hash common.Hash) ([][]byte, error) {
	if txs, ok := p.txLists.Get(hash); ok {
		return txs, nil
	}
	header, err := p.HeaderByHash(hash)
	if err != nil {
		return nil, err
	}
	if err := p.hinter.Hint(preimage.NewHint(preimage.HintL2Transactions, hash[:])); err != nil {
		return nil, err
	}
	txs, err := mpt.ReadTrie(header.TxHash, func(h common.Hash) ([]byte, error) {
		return p.oracle.Get(preimage.Keccak256Key(h))
	})
	if err != nil {
		return nil, fmt.Errorf("read L2 transactions of %s: %w", hash, err)
	}
	p.txLists.Add(hash, txs)
	return txs, nil
}

// L2BlockInfoByNumber returns the block info of an L2 block together with
// its L1 origin, reconstructed from the block's L1 attributes transaction.
func (p *OracleL2ChainProvider) L2BlockInfoByNumber(number uint64) (eth.L2BlockInfo, error) {
	header, err := p.HeaderByNumber(number)
	if err != nil {
		return eth.L2BlockInfo{}, err
	}
	return p.l2BlockInfo(header)
}

func (p *OracleL2ChainProvider) l2BlockInfo(header eth.SealedHeader) (eth.L2BlockInfo, error) {
	info := eth.L2BlockInfo{BlockInfo: eth.HeaderBlockInfo(header)}
	if header.Number.Uint64() == p.cfg.Genesis.L2.Number {
		if header.Hash != p.cfg.Genesis.L2.Hash {
			return eth.L2BlockInfo{}, fmt.Errorf("genesis block hash %s does not match config %s", header.Hash, p.cfg.Genesis.L2.Hash)
		}
		info.L1Origin = p.cfg.Genesis.L1
		info.SequenceNumber = 0
		return info, nil
	}
	l1Info, err := p.l1InfoOf(header)
	if err != nil {
		return eth.L2BlockInfo{}, err
	}
	info.L1Origin = eth.BlockID{Hash: l1Info.BlockHash, Number: l1Info.Number}
	info.SequenceNumber = l1Info.SequenceNumber
	return info, nil
}

// l1InfoOf decodes the L1 attributes transaction leading an L2 block.
func (p *OracleL2ChainProvider) l1InfoOf(header eth.SealedHeader) (*eth.L1BlockInfo, error) {
	txs, err := p.TransactionsByBlockHash(header.Hash)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, fmt.Errorf("L2 block %s has no L1 attributes transaction", header.Hash)
	}
	dep, err := eth.UnmarshalDepositTx(txs[0])
	if err != nil {
		return nil, fmt.Errorf("first transaction of L2 block %s: %w", header.Hash, err)
	}
	info, err := eth.UnmarshalL1BlockInfo(dep.Data)
	if err != nil {
		return nil, fmt.Errorf("L1 attributes of L2 block %s: %w", header.Hash, err)
	}
	return info, nil
}

// SystemConfigByNumber reconstructs the system config valid at the given L2
// block: the genesis config at genesis, otherwise the batcher and fee
// parameters carried by the block's L1 attributes transaction with the gas
// limit from the header.
func (p *OracleL2ChainProvider) SystemConfigByNumber(number uint64) (rollup.SystemConfig, error) {
	if number == p.cfg.Genesis.L2.Number {
		return p.cfg.Genesis.SystemConfig, nil
	}
	header, err := p.HeaderByNumber(number)
	if err != nil {
		return rollup.SystemConfig{}, err
	}
	l1Info, err := p.l1InfoOf(header)
	if err != nil {
		return rollup.SystemConfig{}, err
	}
	return rollup.SystemConfig{
		BatcherAddr: l1Info.BatcherAddr,
		Overhead:    l1Info.L1FeeOverhead,
		Scalar:      l1Info.L1FeeScalar,
		GasLimit:    header.GasLimit,
	}, nil
}

// NodeByHash fetches an L2 state-trie node by node hash.
func (p *OracleL2ChainProvider) NodeByHash(hash common.Hash) ([]byte, error) {
	if err := p.hinter.Hint(preimage.NewHint(preimage.HintL2StateNode, hash[:])); err != nil {
		return nil, err
	}
	return p.oracle.Get(preimage.Keccak256Key(hash))
}

// CodeByHash fetches contract code by code hash.
func (p *OracleL2ChainProvider) CodeByHash(hash common.Hash) ([]byte, error) {
	if err := p.hinter.Hint(preimage.NewHint(preimage.HintL2Code, hash[:])); err != nil {
		return nil, err
	}
	return p.oracle.Get(preimage.Keccak256Key(hash))
}
