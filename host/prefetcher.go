package host

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/okx/fault-proof-client/boot"
	"github.com/okx/fault-proof-client/mpt"
	"github.com/okx/fault-proof-client/preimage"
)

// Prefetcher translates hints into KV population from the chain sources, so
// the client's subsequent reads succeed. It keeps only the last hint: the
// client writes a hint immediately before the reads it enables.
type Prefetcher struct {
	log log.Logger
	kv  KV
	l1  L1Source
	l2  L2Source

	lastHint string
}

// NewPrefetcher creates a prefetcher over the given sources.
func NewPrefetcher(logger log.Logger, kv KV, l1 L1Source, l2 L2Source) *Prefetcher {
	return &Prefetcher{log: logger, kv: kv, l1: l1, l2: l2}
}

// Hint implements Hinter.
func (p *Prefetcher) Hint(hint string) error {
	p.log.Trace("Received hint", "hint", hint)
	if _, err := preimage.ParseHint(hint); err != nil {
		// Invalid hints are rejected without advancing any state.
		return err
	}
	p.lastHint = hint
	return nil
}

// GetPreimage implements Getter: on a miss it prefetches the last hint and
// retries once.
func (p *Prefetcher) GetPreimage(key preimage.Key) ([]byte, error) {
	pre, err := p.kv.Get(key)
	if errors.Is(err, ErrNotFound) && p.lastHint != "" {
		hint := p.lastHint
		if err := p.prefetch(hint); err != nil {
			return nil, fmt.Errorf("prefetch for hint %q: %w", hint, err)
		}
		pre, err = p.kv.Get(key)
		if err != nil {
			p.log.Error("Prefetched last hint but key still missing", "hint", hint, "key", key.Hash())
		}
		return pre, err
	}
	return pre, err
}

// prefetch stages the preimages a hint refers to.
func (p *Prefetcher) prefetch(hint string) error {
	h, err := preimage.ParseHint(hint)
	if err != nil {
		return err
	}
	p.log.Debug("Prefetching", "type", h.Type, "bytes", len(h.Data))
	switch h.Type {
	case preimage.HintL1BlockHeader:
		hash, err := hintHash(h)
		if err != nil {
			return err
		}
		header, err := p.l1.HeaderRLP(hash)
		if err != nil {
			return fmt.Errorf("fetch L1 header %s: %w", hash, err)
		}
		return p.kv.Put(preimage.Keccak256Key(hash), header)
	case preimage.HintL1Transactions:
		hash, err := hintHash(h)
		if err != nil {
			return err
		}
		txs, err := p.l1.Transactions(hash)
		if err != nil {
			return fmt.Errorf("fetch L1 transactions of %s: %w", hash, err)
		}
		return p.storeListTrie(txs)
	case preimage.HintL1Receipts:
		hash, err := hintHash(h)
		if err != nil {
			return err
		}
		receipts, err := p.l1.Receipts(hash)
		if err != nil {
			return fmt.Errorf("fetch L1 receipts of %s: %w", hash, err)
		}
		return p.storeListTrie(receipts)
	case preimage.HintL1Blob:
		if len(h.Data) != 48 {
			return fmt.Errorf("invalid blob hint length %d", len(h.Data))
		}
		versionedHash := common.BytesToHash(h.Data[:32])
		index := binary.BigEndian.Uint64(h.Data[32:40])
		commitment, blob, err := p.l1.Blob(versionedHash, index)
		if err != nil {
			return fmt.Errorf("fetch blob %s %d: %w", versionedHash, index, err)
		}
		if err := p.kv.Put(preimage.Sha256Key(versionedHash), commitment); err != nil {
			return err
		}
		var indexBytes [8]byte
		binary.BigEndian.PutUint64(indexBytes[:], index)
		blobKey := preimage.BlobKey(crypto.Keccak256Hash(commitment, indexBytes[:]))
		return p.kv.Put(blobKey, blob[:])
	case preimage.HintL1Precompile:
		if len(h.Data) < 20 {
			return fmt.Errorf("invalid precompile hint length %d", len(h.Data))
		}
		addr := common.BytesToAddress(h.Data[:20])
		input := h.Data[20:]
		contract, ok := vm.PrecompiledContractsCancun[addr]
		if !ok {
			return fmt.Errorf("unknown precompile %s", addr)
		}
		output, err := contract.Run(input)
		result := []byte{1}
		if err != nil {
			result = []byte{0}
		} else {
			result = append(result, output...)
		}
		key := preimage.PrecompileKey(crypto.Keccak256Hash(addr[:], input))
		return p.kv.Put(key, result)
	case preimage.HintL2BlockHeader:
		hash, err := hintHash(h)
		if err != nil {
			return err
		}
		header, err := p.l2.HeaderRLP(hash)
		if err != nil {
			return fmt.Errorf("fetch L2 header %s: %w", hash, err)
		}
		return p.kv.Put(preimage.Keccak256Key(hash), header)
	case preimage.HintL2Transactions:
		hash, err := hintHash(h)
		if err != nil {
			return err
		}
		txs, err := p.l2.Transactions(hash)
		if err != nil {
			return fmt.Errorf("fetch L2 transactions of %s: %w", hash, err)
		}
		return p.storeListTrie(txs)
	case preimage.HintL2OutputRoot, preimage.HintAgreedPreState:
		hash, err := hintHash(h)
		if err != nil {
			return err
		}
		output, err := p.l2.Output(hash)
		if err != nil {
			return fmt.Errorf("fetch output preimage %s: %w", hash, err)
		}
		return p.kv.Put(preimage.Keccak256Key(hash), output)
	case preimage.HintL2StateNode:
		hash, err := hintHash(h)
		if err != nil {
			return err
		}
		node, ok := p.l2.StateNodes()[hash]
		if !ok {
			return fmt.Errorf("unknown state node %s", hash)
		}
		return p.kv.Put(preimage.Keccak256Key(hash), node)
	case preimage.HintL2AccountProof, preimage.HintL2AccountStorageProof, preimage.HintL2PayloadWitness:
		// This host keeps the full node store; proof hints stage all of it.
		for hash, node := range p.l2.StateNodes() {
			if err := p.kv.Put(preimage.Keccak256Key(hash), node); err != nil {
				return err
			}
		}
		return nil
	case preimage.HintL2Code:
		hash, err := hintHash(h)
		if err != nil {
			return err
		}
		code, err := p.l2.Code(hash)
		if err != nil {
			return fmt.Errorf("fetch code %s: %w", hash, err)
		}
		return p.kv.Put(preimage.Keccak256Key(hash), code)
	case preimage.HintL2Receipts:
		// The client never reads L2 receipts during a fault proof run.
		return nil
	default:
		return fmt.Errorf("unknown hint type: %s", h.Type)
	}
}

// storeListTrie stores every node of an ordered list trie.
func (p *Prefetcher) storeListTrie(values [][]byte) error {
	_, nodes, err := mpt.WriteTrie(values)
	if err != nil {
		return err
	}
	for hash, node := range nodes {
		if err := p.kv.Put(preimage.Keccak256Key(hash), node); err != nil {
			return err
		}
	}
	return nil
}

// hintHash extracts the single 32-byte hash payload of a hint.
func hintHash(h preimage.Hint) (common.Hash, error) {
	if len(h.Data) != 32 {
		return common.Hash{}, fmt.Errorf("invalid %s hint length %d", h.Type, len(h.Data))
	}
	return common.BytesToHash(h.Data), nil
}

// WriteBootInfo stages the local boot slots into the store.
func WriteBootInfo(kv KV, info *boot.BootInfo) error {
	cfgJSON, err := json.Marshal(info.RollupConfig)
	if err != nil {
		return err
	}
	puts := []struct {
		index uint64
		data  []byte
	}{
		{boot.L1HeadLocalIndex, info.L1Head[:]},
		{boot.L2OutputRootLocalIndex, info.L2OutputRoot[:]},
		{boot.L2ClaimLocalIndex, info.L2Claim[:]},
		{boot.L2ClaimBlockNumberLocalIndex, u64Bytes(info.L2ClaimBlockNumber)},
		{boot.L2ChainIDLocalIndex, u64Bytes(info.L2ChainID)},
		{boot.L2RollupConfigLocalIndex, cfgJSON},
		{boot.L1EndNumberLocalIndex, u64Bytes(info.L1EndNumber)},
	}
	for _, p := range puts {
		if err := kv.Put(preimage.LocalKey(p.index), p.data); err != nil {
			return err
		}
	}
	return nil
}

func u64Bytes(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}
