package derive

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/okx/fault-proof-client/eth"
	"github.com/okx/fault-proof-client/rollup"
)

// L1Retrieval yields the candidate DA payloads of each L1 block the
// traversal produces.
type L1Retrieval struct {
	log  log.Logger
	prev NextBlockProvider
	dap  DataAvailabilityProvider

	data DataIter
}

// NewL1Retrieval creates the retrieval stage.
func NewL1Retrieval(logger log.Logger, prev NextBlockProvider, dap DataAvailabilityProvider) *L1Retrieval {
	return &L1Retrieval{log: logger, prev: prev, dap: dap}
}

// NextData returns the next DA payload of the current origin, opening the
// origin's data on first use. ErrEof propagates when the origin has no data
// left and the traversal is exhausted.
func (r *L1Retrieval) NextData() ([]byte, error) {
	if r.data == nil {
		block, err := r.prev.NextL1Block()
		if err != nil {
			return nil, err
		}
		iter, err := r.dap.OpenData(block, r.prev.SystemConfig().BatcherAddr)
		if err != nil {
			return nil, NewCriticalError(fmt.Errorf("open DA data of L1 block %s: %w", block.Hash, err))
		}
		r.data = iter
	}
	data, err := r.data.Next()
	if errors.Is(err, ErrEof) {
		r.data = nil
		return nil, ErrEof
	}
	return data, err
}

// Origin implements OriginProvider.
func (r *L1Retrieval) Origin() eth.BlockInfo {
	return r.prev.Origin()
}

// Reset implements ResettableStage.
func (r *L1Retrieval) Reset(base eth.BlockInfo, cfg rollup.SystemConfig) error {
	r.data = nil
	return nil
}

// CalldataAndBlobSource is the production DataAvailabilityProvider: calldata
// of batcher transactions to the inbox address, plus the blobs referenced by
// inbox blob transactions, in transaction order.
type CalldataAndBlobSource struct {
	log    log.Logger
	chain  ChainProvider
	blobs  BlobProvider
	cfg    *rollup.Config
	signer types.Signer
}

// NewCalldataAndBlobSource creates the production DA source.
func NewCalldataAndBlobSource(logger log.Logger, chain ChainProvider, blobs BlobProvider, cfg *rollup.Config) *CalldataAndBlobSource {
	return &CalldataAndBlobSource{
		log:    logger,
		chain:  chain,
		blobs:  blobs,
		cfg:    cfg,
		signer: types.LatestSignerForChainID(new(big.Int).SetUint64(cfg.L1ChainID)),
	}
}

// OpenData implements DataAvailabilityProvider.
func (s *CalldataAndBlobSource) OpenData(block eth.BlockInfo, batcher common.Address) (DataIter, error) {
	_, txs, err := s.chain.BlockInfoAndTransactionsByHash(block.Hash)
	if err != nil {
		return nil, fmt.Errorf("fetch transactions of L1 block %s: %w", block.Hash, err)
	}
	var payloads [][]byte
	var hashes []eth.IndexedBlobHash
	var blobSlots []int
	blobIndex := uint64(0)
	for _, tx := range txs {
		isInbox := tx.To() != nil && *tx.To() == s.cfg.BatchInboxAddress
		if !isInbox {
			blobIndex += uint64(len(tx.BlobHashes()))
			continue
		}
		from, err := types.Sender(s.signer, tx)
		if err != nil || from != batcher {
			blobIndex += uint64(len(tx.BlobHashes()))
			continue
		}
		if tx.Type() != types.BlobTxType {
			payloads = append(payloads, tx.Data())
			continue
		}
		if len(tx.Data()) > 0 {
			s.log.Warn("Blob batcher tx has calldata, which will be ignored", "tx", tx.Hash())
		}
		for _, h := range tx.BlobHashes() {
			// The payload slot is filled from the blob below.
			blobSlots = append(blobSlots, len(payloads))
			payloads = append(payloads, nil)
			hashes = append(hashes, eth.IndexedBlobHash{Index: blobIndex, Hash: h})
			blobIndex++
		}
	}
	if len(hashes) > 0 {
		blobs, err := s.blobs.GetBlobs(block, hashes)
		if err != nil {
			return nil, fmt.Errorf("fetch blobs of L1 block %s: %w", block.Hash, err)
		}
		for bi, slot := range blobSlots {
			data, err := blobs[bi].ToData()
			if err != nil {
				s.log.Warn("Ignoring undecodable blob", "block", block.Hash, "index", hashes[bi].Index, "err", err)
				continue
			}
			payloads[slot] = data
		}
	}
	// Drop empty slots: undecodable blobs and empty calldata.
	filtered := payloads[:0]
	for _, p := range payloads {
		if len(p) > 0 {
			filtered = append(filtered, p)
		}
	}
	return &dataIter{data: filtered}, nil
}

// dataIter iterates a fixed payload list.
type dataIter struct {
	data [][]byte
	pos  int
}

// Next implements DataIter.
func (it *dataIter) Next() ([]byte, error) {
	if it.pos >= len(it.data) {
		return nil, ErrEof
	}
	d := it.data[it.pos]
	it.pos++
	return d, nil
}
