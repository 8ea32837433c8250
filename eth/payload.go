package eth

import "github.com/ethereum/go-ethereum/common"

// L2PayloadAttributes describes one L2 block to execute: the sealed parent,
// the block environment and the ordered transaction list. Transactions are
// opaque EIP-2718 envelopes; deposits come first.
type L2PayloadAttributes struct {
	ParentHash   common.Hash
	Timestamp    uint64
	PrevRandao   common.Hash
	FeeRecipient common.Address
	GasLimit     uint64
	// Transactions is the full ordered transaction list: the L1 attributes
	// deposit, then any user deposits, then the batch's L2 transactions.
	Transactions [][]byte
	// NoTxPool is set for derived attributes: the block is closed.
	NoTxPool bool
}

// L2AttributesWithParent pairs payload attributes with the parent block they
// extend and marks whether the block is the disputed one.
type L2AttributesWithParent struct {
	Attributes L2PayloadAttributes
	Parent     L2BlockInfo
	IsDisputed bool
}
