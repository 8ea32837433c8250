package eth

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// DepositTxType is the EIP-2718 type byte of rollup deposit transactions.
const DepositTxType = 0x7e

// DepositTx is an L1-originated L2 transaction. Deposits have a mandatory
// inclusion rule and cannot revert the block that contains them.
type DepositTx struct {
	// SourceHash uniquely identifies the L1 origin of the deposit.
	SourceHash common.Hash
	// From is the sender on L2.
	From common.Address
	// To is the recipient, or nil for a contract creation.
	To *common.Address `rlp:"nil"`
	// Mint is minted on L2 and added to From before the value transfer.
	Mint *big.Int
	// Value is transferred from From to To.
	Value *big.Int
	// Gas is the gas limit of the deposit. Deposit gas is prepaid on L1.
	Gas uint64
	// IsSystemTransaction is the deposit's system-transaction flag. The L1
	// attributes transaction built by L1InfoDeposit leaves it false.
	IsSystemTransaction bool
	// Data is the calldata.
	Data []byte
}

// MarshalBinary encodes the deposit as a typed transaction envelope.
func (tx *DepositTx) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(DepositTxType)
	if err := rlp.Encode(&buf, tx); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalDepositTx decodes a typed deposit transaction envelope.
func UnmarshalDepositTx(data []byte) (*DepositTx, error) {
	if len(data) == 0 || data[0] != DepositTxType {
		return nil, ErrNotDepositTx
	}
	var tx DepositTx
	if err := rlp.DecodeBytes(data[1:], &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// IsDepositTx reports whether opaque transaction bytes carry the deposit
// type byte.
func IsDepositTx(opaque []byte) bool {
	return len(opaque) > 0 && opaque[0] == DepositTxType
}

// Deposit source-hash domains. The source hash commits to where on L1 the
// deposit originated, under a domain separator.
const (
	userDepositSourceDomain   = 0
	l1InfoDepositSourceDomain = 1
)

// UserDepositSourceHash computes the source hash of a user deposit:
// keccak256(domain || keccak256(l1BlockHash || logIndex)).
func UserDepositSourceHash(l1BlockHash common.Hash, logIndex uint64) common.Hash {
	return depositSourceHash(userDepositSourceDomain, crypto.Keccak256Hash(l1BlockHash[:], uint64Padded(logIndex)))
}

// L1InfoDepositSourceHash computes the source hash of the L1 attributes
// deposit: keccak256(domain || keccak256(l1BlockHash || seqNumber)).
func L1InfoDepositSourceHash(l1BlockHash common.Hash, seqNumber uint64) common.Hash {
	return depositSourceHash(l1InfoDepositSourceDomain, crypto.Keccak256Hash(l1BlockHash[:], uint64Padded(seqNumber)))
}

func depositSourceHash(domain uint64, inner common.Hash) common.Hash {
	return crypto.Keccak256Hash(uint64Padded(domain), inner[:])
}

// uint64Padded left-pads a u64 to 32 bytes, big-endian.
func uint64Padded(v uint64) []byte {
	var buf [32]byte
	for i := 0; i < 8; i++ {
		buf[31-i] = byte(v >> (8 * i))
	}
	return buf[:]
}
