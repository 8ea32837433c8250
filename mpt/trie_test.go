package mpt

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	gethtrie "github.com/ethereum/go-ethereum/trie"
)

func TestTrieEmpty(t *testing.T) {
	trie := New(common.Hash{}, nil)
	root, err := trie.Hash()
	if err != nil {
		t.Fatalf("hash empty trie: %v", err)
	}
	if root != EmptyRoot {
		t.Errorf("empty trie root = %s, want %s", root, EmptyRoot)
	}
}

func TestTrieInsertGet(t *testing.T) {
	trie := New(EmptyRoot, nil)
	testData := map[string]string{
		"apple":  "fruit",
		"banana": "yellow",
		"cherry": "red",
		"app":    "application",
		"apply":  "verb",
	}
	for k, v := range testData {
		if err := trie.Update([]byte(k), []byte(v)); err != nil {
			t.Fatalf("update %s: %v", k, err)
		}
	}
	for k, v := range testData {
		got, err := trie.Get([]byte(k))
		if err != nil {
			t.Fatalf("get %s: %v", k, err)
		}
		if !bytes.Equal(got, []byte(v)) {
			t.Errorf("key %s: got %s, want %s", k, got, v)
		}
	}
	got, err := trie.Get([]byte("notexist"))
	if err != nil {
		t.Fatalf("get missing key: %v", err)
	}
	if got != nil {
		t.Error("missing key should return nil")
	}
}

func TestTrieUpdateReplacesValue(t *testing.T) {
	trie := New(EmptyRoot, nil)
	if err := trie.Update([]byte("key"), []byte("v1")); err != nil {
		t.Fatal(err)
	}
	root1, _ := trie.Hash()
	if err := trie.Update([]byte("key"), []byte("v2")); err != nil {
		t.Fatal(err)
	}
	root2, _ := trie.Hash()
	if root1 == root2 {
		t.Error("root must change when a value changes")
	}
	got, _ := trie.Get([]byte("key"))
	if !bytes.Equal(got, []byte("v2")) {
		t.Errorf("got %s, want v2", got)
	}
}

// TestTrieMatchesGethStackTrie checks the node encoding against go-ethereum
// by comparing ordered-list trie roots with DeriveSha.
func TestTrieMatchesGethStackTrie(t *testing.T) {
	var txs types.Transactions
	for i := 0; i < 10; i++ {
		txs = append(txs, types.NewTransaction(uint64(i), common.BytesToAddress([]byte{byte(i + 1)}), common.Big1, 21000, common.Big257, nil))
	}
	want := types.DeriveSha(txs, gethtrie.NewStackTrie(nil))

	opaque := make([][]byte, len(txs))
	for i, tx := range txs {
		enc, err := tx.MarshalBinary()
		if err != nil {
			t.Fatal(err)
		}
		opaque[i] = enc
	}
	got, err := ListRoot(opaque)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("list root = %s, want %s", got, want)
	}
}

func TestTrieCommitAndReload(t *testing.T) {
	trie := New(EmptyRoot, nil)
	entries := map[string]string{}
	for i := 0; i < 50; i++ {
		k := fmt.Sprintf("key-%d", i)
		v := fmt.Sprintf("value-%d", i)
		entries[k] = v
		if err := trie.Update([]byte(k), []byte(v)); err != nil {
			t.Fatal(err)
		}
	}
	root, nodes, err := trie.Commit()
	if err != nil {
		t.Fatal(err)
	}

	// Every committed node must hash to its key.
	for h, enc := range nodes {
		if crypto.Keccak256Hash(enc) != h {
			t.Fatalf("node %s does not hash to its key", h)
		}
	}

	// Reload the trie purely from the committed node set.
	reloaded := New(root, func(h common.Hash) ([]byte, error) {
		enc, ok := nodes[h]
		if !ok {
			return nil, fmt.Errorf("missing node %s", h)
		}
		return enc, nil
	})
	for k, v := range entries {
		got, err := reloaded.Get([]byte(k))
		if err != nil {
			t.Fatalf("reload get %s: %v", k, err)
		}
		if !bytes.Equal(got, []byte(v)) {
			t.Errorf("reload key %s: got %s, want %s", k, got, v)
		}
	}
}

func TestTrieMissingNodeFatal(t *testing.T) {
	trie := New(EmptyRoot, nil)
	for i := 0; i < 20; i++ {
		if err := trie.Update([]byte(fmt.Sprintf("key-%d", i)), []byte("value")); err != nil {
			t.Fatal(err)
		}
	}
	root, _, err := trie.Commit()
	if err != nil {
		t.Fatal(err)
	}
	broken := New(root, func(h common.Hash) ([]byte, error) {
		return nil, fmt.Errorf("unavailable")
	})
	if _, err := broken.Get([]byte("key-7")); err == nil {
		t.Error("expected an error for an unreachable trie node")
	}
}

func TestTrieNodeHashVerified(t *testing.T) {
	trie := New(EmptyRoot, nil)
	for i := 0; i < 20; i++ {
		if err := trie.Update([]byte(fmt.Sprintf("key-%d", i)), []byte("value")); err != nil {
			t.Fatal(err)
		}
	}
	root, nodes, err := trie.Commit()
	if err != nil {
		t.Fatal(err)
	}
	tampered := New(root, func(h common.Hash) ([]byte, error) {
		enc := nodes[h]
		bad := append([]byte(nil), enc...)
		bad[len(bad)-1] ^= 0xff
		return bad, nil
	})
	if _, err := tampered.Get([]byte("key-7")); err == nil {
		t.Error("expected a node mismatch error for tampered node bytes")
	}
}

func TestListTrieRoundTrip(t *testing.T) {
	var values [][]byte
	for i := 0; i < 30; i++ {
		values = append(values, []byte(fmt.Sprintf("entry-%d", i)))
	}
	root, nodes, err := WriteTrie(values)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ReadTrie(root, func(h common.Hash) ([]byte, error) {
		enc, ok := nodes[h]
		if !ok {
			return nil, fmt.Errorf("missing node %s", h)
		}
		return enc, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(values) {
		t.Fatalf("read %d values, want %d", len(got), len(values))
	}
	for i := range values {
		if !bytes.Equal(got[i], values[i]) {
			t.Errorf("entry %d: got %s, want %s", i, got[i], values[i])
		}
	}
}

func TestListTrieEmpty(t *testing.T) {
	root, err := ListRoot(nil)
	if err != nil {
		t.Fatal(err)
	}
	if root != EmptyRoot {
		t.Errorf("empty list root = %s, want %s", root, EmptyRoot)
	}
	values, err := ReadTrie(EmptyRoot, nil)
	if err != nil {
		t.Fatal(err)
	}
	if values != nil {
		t.Error("empty trie must read back no values")
	}
}
