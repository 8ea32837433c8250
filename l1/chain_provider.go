// Package l1 provides the oracle-backed views of the L1 chain: headers,
// blocks, transactions, receipts and blobs.
package l1

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/okx/fault-proof-client/eth"
	"github.com/okx/fault-proof-client/mpt"
	"github.com/okx/fault-proof-client/preimage"
)

// ErrNotFound is returned when a block number lies past the L1 head bound.
// Within the bound the oracle is authoritative and misses are fatal.
var ErrNotFound = errors.New("block not found")

// cacheSize bounds the provider's in-memory caches. The working set of a
// single disputed block fits comfortably.
const cacheSize = 1000

// OracleL1ChainProvider serves L1 chain data from the preimage oracle,
// walking back from the boot L1 head.
type OracleL1ChainProvider struct {
	oracle preimage.Oracle
	hinter preimage.Hinter
	head   common.Hash

	headers  *lru.Cache[common.Hash, eth.SealedHeader]
	numbers  *lru.Cache[uint64, common.Hash]
	receipts *lru.Cache[common.Hash, []*types.Receipt]
	txs      *lru.Cache[common.Hash, types.Transactions]

	// earliest tracks the lowest block reached while walking parent links,
	// so number lookups resume from the closest known block.
	earliest eth.BlockInfo
}

// NewOracleL1ChainProvider creates a provider bounded by the given L1 head.
func NewOracleL1ChainProvider(l1Head common.Hash, oracle preimage.Oracle, hinter preimage.Hinter) *OracleL1ChainProvider {
	headers, _ := lru.New[common.Hash, eth.SealedHeader](cacheSize)
	numbers, _ := lru.New[uint64, common.Hash](cacheSize)
	receipts, _ := lru.New[common.Hash, []*types.Receipt](cacheSize)
	txs, _ := lru.New[common.Hash, types.Transactions](cacheSize)
	return &OracleL1ChainProvider{
		oracle:   oracle,
		hinter:   hinter,
		head:     l1Head,
		headers:  headers,
		numbers:  numbers,
		receipts: receipts,
		txs:      txs,
	}
}

// HeaderByHash fetches and seals the header with the given hash.
func (p *OracleL1ChainProvider) HeaderByHash(hash common.Hash) (eth.SealedHeader, error) {
	if h, ok := p.headers.Get(hash); ok {
		return h, nil
	}
	if err := p.hinter.Hint(preimage.NewHint(preimage.HintL1BlockHeader, hash[:])); err != nil {
		return eth.SealedHeader{}, err
	}
	data, err := p.oracle.Get(preimage.Keccak256Key(hash))
	if err != nil {
		return eth.SealedHeader{}, fmt.Errorf("fetch L1 header %s: %w", hash, err)
	}
	sealed, err := eth.DecodeSealedHeader(hash, data)
	if err != nil {
		return eth.SealedHeader{}, fmt.Errorf("decode L1 header %s: %w", hash, err)
	}
	p.headers.Add(hash, sealed)
	p.numbers.Add(sealed.Number.Uint64(), hash)
	return sealed, nil
}

// BlockInfoByHash returns the block info of the header with the given hash.
func (p *OracleL1ChainProvider) BlockInfoByHash(hash common.Hash) (eth.BlockInfo, error) {
	header, err := p.HeaderByHash(hash)
	if err != nil {
		return eth.BlockInfo{}, err
	}
	return eth.HeaderBlockInfo(header), nil
}

// BlockInfoByNumber walks parent links back from the L1 head until it
// reaches the requested number, caching every traversed header.
func (p *OracleL1ChainProvider) BlockInfoByNumber(number uint64) (eth.BlockInfo, error) {
	if hash, ok := p.numbers.Get(number); ok {
		return p.BlockInfoByHash(hash)
	}
	head, err := p.HeaderByHash(p.head)
	if err != nil {
		return eth.BlockInfo{}, err
	}
	if number > head.Number.Uint64() {
		return eth.BlockInfo{}, fmt.Errorf("%w: %d is past L1 head %d", ErrNotFound, number, head.Number.Uint64())
	}
	current := head
	if p.earliest.Hash != (common.Hash{}) && p.earliest.Number >= number {
		current, err = p.HeaderByHash(p.earliest.Hash)
		if err != nil {
			return eth.BlockInfo{}, err
		}
	}
	for current.Number.Uint64() > number {
		current, err = p.HeaderByHash(current.ParentHash)
		if err != nil {
			return eth.BlockInfo{}, err
		}
		p.earliest = eth.HeaderBlockInfo(current)
	}
	return eth.HeaderBlockInfo(current), nil
}

// BlockInfoAndTransactionsByHash returns the block info together with the
// block's transactions, walked out of the transactions trie.
func (p *OracleL1ChainProvider) BlockInfoAndTransactionsByHash(hash common.Hash) (eth.BlockInfo, types.Transactions, error) {
	header, err := p.HeaderByHash(hash)
	if err != nil {
		return eth.BlockInfo{}, nil, err
	}
	if cached, ok := p.txs.Get(hash); ok {
		return eth.HeaderBlockInfo(header), cached, nil
	}
	if err := p.hinter.Hint(preimage.NewHint(preimage.HintL1Transactions, hash[:])); err != nil {
		return eth.BlockInfo{}, nil, err
	}
	opaque, err := p.readTrie(header.TxHash)
	if err != nil {
		return eth.BlockInfo{}, nil, fmt.Errorf("read L1 transactions of %s: %w", hash, err)
	}
	txs := make(types.Transactions, len(opaque))
	for i, enc := range opaque {
		var tx types.Transaction
		if err := tx.UnmarshalBinary(enc); err != nil {
			return eth.BlockInfo{}, nil, fmt.Errorf("decode L1 transaction %d of %s: %w", i, hash, err)
		}
		txs[i] = &tx
	}
	p.txs.Add(hash, txs)
	return eth.HeaderBlockInfo(header), txs, nil
}

// ReceiptsByHash returns the receipts of the block with the given hash,
// walked out of the receipts trie. Log block hashes and indices are derived
// locally since the consensus encoding does not carry them.
func (p *OracleL1ChainProvider) ReceiptsByHash(hash common.Hash) ([]*types.Receipt, error) {
	if cached, ok := p.receipts.Get(hash); ok {
		return cached, nil
	}
	header, err := p.HeaderByHash(hash)
	if err != nil {
		return nil, err
	}
	if err := p.hinter.Hint(preimage.NewHint(preimage.HintL1Receipts, hash[:])); err != nil {
		return nil, err
	}
	opaque, err := p.readTrie(header.ReceiptHash)
	if err != nil {
		return nil, fmt.Errorf("read L1 receipts of %s: %w", hash, err)
	}
	receipts := make([]*types.Receipt, len(opaque))
	logIndex := uint(0)
	for i, enc := range opaque {
		var r types.Receipt
		if err := r.UnmarshalBinary(enc); err != nil {
			return nil, fmt.Errorf("decode L1 receipt %d of %s: %w", i, hash, err)
		}
		r.BlockHash = hash
		r.BlockNumber = header.Number
		r.TransactionIndex = uint(i)
		for _, l := range r.Logs {
			l.BlockHash = hash
			l.BlockNumber = header.Number.Uint64()
			l.TxIndex = uint(i)
			l.Index = logIndex
			logIndex++
		}
		receipts[i] = &r
	}
	p.receipts.Add(hash, receipts)
	return receipts, nil
}

// readTrie walks an ordered list trie rooted in a header field, resolving
// nodes through the oracle.
func (p *OracleL1ChainProvider) readTrie(root common.Hash) ([][]byte, error) {
	return readListTrie(root, p.oracle)
}

// Head returns the L1 head hash bounding this provider.
func (p *OracleL1ChainProvider) Head() common.Hash {
	return p.head
}

// readListTrie walks an ordered list trie with oracle-resolved nodes.
func readListTrie(root common.Hash, oracle preimage.Oracle) ([][]byte, error) {
	return mpt.ReadTrie(root, func(h common.Hash) ([]byte, error) {
		return oracle.Get(preimage.Keccak256Key(h))
	})
}
