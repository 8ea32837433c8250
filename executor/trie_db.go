// Package executor implements the stateless L2 block executor: it applies
// payload attributes to the pre-state trie served by the preimage oracle and
// produces the post-state header and output root.
package executor

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/okx/fault-proof-client/mpt"
	"github.com/okx/fault-proof-client/preimage"
)

// StateFetcher resolves L2 state-trie nodes and contract code from the
// oracle.
type StateFetcher interface {
	NodeByHash(hash common.Hash) ([]byte, error)
	CodeByHash(hash common.Hash) ([]byte, error)
}

// TrieDB serves account and storage reads by walking the state trie from a
// root, fetching nodes on demand. Writes build up in an in-memory overlay;
// Commit folds them back into the trie and produces the post-state root.
type TrieDB struct {
	fetch  StateFetcher
	hinter preimage.Hinter

	stateRoot common.Hash
	state     *mpt.Trie

	// accounts caches resolved accounts; dirty marks the write overlay;
	// hinted tracks per-account proof hints.
	accounts map[common.Address]*types.StateAccount
	dirty    map[common.Address]struct{}
	hinted   map[common.Address]struct{}
}

// NewTrieDB opens the state at the given root.
func NewTrieDB(stateRoot common.Hash, fetch StateFetcher, hinter preimage.Hinter) *TrieDB {
	return &TrieDB{
		fetch:     fetch,
		hinter:    hinter,
		stateRoot: stateRoot,
		state: mpt.New(stateRoot, func(h common.Hash) ([]byte, error) {
			return fetch.NodeByHash(h)
		}),
		accounts: make(map[common.Address]*types.StateAccount),
		dirty:    make(map[common.Address]struct{}),
		hinted:   make(map[common.Address]struct{}),
	}
}

// GetAccount returns the account at addr, or a fresh empty account if it
// does not exist in the trie.
func (db *TrieDB) GetAccount(addr common.Address) (*types.StateAccount, error) {
	if acc, ok := db.accounts[addr]; ok {
		return acc, nil
	}
	if _, ok := db.hinted[addr]; !ok {
		// Ask the host to stage the nodes on the account's trie path.
		if err := db.hinter.Hint(preimage.NewHint(preimage.HintL2AccountProof, db.stateRoot[:], addr[:])); err != nil {
			return nil, err
		}
		db.hinted[addr] = struct{}{}
	}
	enc, err := db.state.Get(mpt.SecureKey(addr[:]))
	if err != nil {
		return nil, fmt.Errorf("read account %s: %w", addr, err)
	}
	acc := &types.StateAccount{
		Balance:  new(uint256.Int),
		Root:     types.EmptyRootHash,
		CodeHash: types.EmptyCodeHash.Bytes(),
	}
	if enc != nil {
		if err := rlp.DecodeBytes(enc, acc); err != nil {
			return nil, fmt.Errorf("decode account %s: %w", addr, err)
		}
	}
	db.accounts[addr] = acc
	return acc, nil
}

// SetAccount records an account mutation in the overlay.
func (db *TrieDB) SetAccount(addr common.Address, acc *types.StateAccount) {
	db.accounts[addr] = acc
	db.dirty[addr] = struct{}{}
}

// StorageAt reads a storage slot of the given account.
func (db *TrieDB) StorageAt(addr common.Address, key common.Hash) (common.Hash, error) {
	acc, err := db.GetAccount(addr)
	if err != nil {
		return common.Hash{}, err
	}
	if acc.Root == types.EmptyRootHash {
		return common.Hash{}, nil
	}
	if err := db.hinter.Hint(preimage.NewHint(preimage.HintL2AccountStorageProof, db.stateRoot[:], addr[:], key[:])); err != nil {
		return common.Hash{}, err
	}
	storage := mpt.New(acc.Root, func(h common.Hash) ([]byte, error) {
		return db.fetch.NodeByHash(h)
	})
	enc, err := storage.Get(mpt.SecureKey(key[:]))
	if err != nil {
		return common.Hash{}, fmt.Errorf("read storage %s of %s: %w", key, addr, err)
	}
	if enc == nil {
		return common.Hash{}, nil
	}
	var value big.Int
	if err := rlp.DecodeBytes(enc, &value); err != nil {
		return common.Hash{}, fmt.Errorf("decode storage %s of %s: %w", key, addr, err)
	}
	return common.BigToHash(&value), nil
}

// StorageRoot returns the storage root of the given account.
func (db *TrieDB) StorageRoot(addr common.Address) (common.Hash, error) {
	acc, err := db.GetAccount(addr)
	if err != nil {
		return common.Hash{}, err
	}
	return acc.Root, nil
}

// CodeAt returns the contract code with the given hash.
func (db *TrieDB) CodeAt(codeHash common.Hash) ([]byte, error) {
	if codeHash == types.EmptyCodeHash {
		return nil, nil
	}
	return db.fetch.CodeByHash(codeHash)
}

// Commit folds the overlay into the state trie and re-hashes the touched
// branches bottom-up, yielding the post-state root.
func (db *TrieDB) Commit() (common.Hash, error) {
	for addr := range db.dirty {
		acc := db.accounts[addr]
		enc, err := rlp.EncodeToBytes(acc)
		if err != nil {
			return common.Hash{}, fmt.Errorf("encode account %s: %w", addr, err)
		}
		if err := db.state.Update(mpt.SecureKey(addr[:]), enc); err != nil {
			return common.Hash{}, fmt.Errorf("update account %s: %w", addr, err)
		}
	}
	root, _, err := db.state.Commit()
	if err != nil {
		return common.Hash{}, fmt.Errorf("commit state trie: %w", err)
	}
	return root, nil
}
