package eth

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Rollup predeploy and system addresses.
var (
	// L1InfoDepositorAddress is the sender of the L1 attributes transaction.
	L1InfoDepositorAddress = common.HexToAddress("0xDeaDDEaDDeAdDeAdDEAdDEaddeAddEAdDEAd0001")
	// L1BlockAddress is the L1 attributes predeploy.
	L1BlockAddress = common.HexToAddress("0x4200000000000000000000000000000000000015")
	// L2ToL1MessagePasserAddress is the withdrawals predeploy whose storage
	// root is committed in the output root.
	L2ToL1MessagePasserAddress = common.HexToAddress("0x4200000000000000000000000000000000000016")
	// SequencerFeeVaultAddress receives priority fees.
	SequencerFeeVaultAddress = common.HexToAddress("0x4200000000000000000000000000000000000011")
	// BaseFeeVaultAddress receives base fees.
	BaseFeeVaultAddress = common.HexToAddress("0x4200000000000000000000000000000000000019")
	// L1FeeVaultAddress receives the L1 data fee.
	L1FeeVaultAddress = common.HexToAddress("0x420000000000000000000000000000000000001A")
)

// L1InfoFuncSignature is the ABI signature of the L1 attributes setter.
const L1InfoFuncSignature = "setL1BlockValues(uint64,uint64,uint256,bytes32,uint64,bytes32,uint256,uint256)"

// L1InfoFuncSelector is the 4-byte selector of L1InfoFuncSignature.
var L1InfoFuncSelector = []byte{0x01, 0x5d, 0x8e, 0xb9}

// l1InfoLen is the length of the packed setL1BlockValues calldata.
const l1InfoLen = 4 + 32*8

// RegolithSystemTxGas is the gas limit of the L1 attributes transaction.
const RegolithSystemTxGas = 1_000_000

// L1BlockInfo is the decoded form of the L1 attributes calldata.
type L1BlockInfo struct {
	Number         uint64
	Time           uint64
	BaseFee        *big.Int
	BlockHash      common.Hash
	SequenceNumber uint64
	BatcherAddr    common.Address
	L1FeeOverhead  common.Hash
	L1FeeScalar    common.Hash
}

// Marshal packs the L1 attributes calldata: the selector followed by eight
// 32-byte words.
func (info *L1BlockInfo) Marshal() []byte {
	data := make([]byte, 0, l1InfoLen)
	data = append(data, L1InfoFuncSelector...)
	data = append(data, uint64Padded(info.Number)...)
	data = append(data, uint64Padded(info.Time)...)
	baseFee := info.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	data = append(data, common.BigToHash(baseFee).Bytes()...)
	data = append(data, info.BlockHash[:]...)
	data = append(data, uint64Padded(info.SequenceNumber)...)
	data = append(data, common.BytesToHash(info.BatcherAddr[:]).Bytes()...)
	data = append(data, info.L1FeeOverhead[:]...)
	data = append(data, info.L1FeeScalar[:]...)
	return data
}

// UnmarshalL1BlockInfo decodes L1 attributes calldata.
func UnmarshalL1BlockInfo(data []byte) (*L1BlockInfo, error) {
	if len(data) != l1InfoLen {
		return nil, ErrInvalidL1InfoTx
	}
	for i, b := range L1InfoFuncSelector {
		if data[i] != b {
			return nil, ErrInvalidL1InfoTx
		}
	}
	word := func(i int) []byte { return data[4+32*i : 4+32*(i+1)] }
	info := &L1BlockInfo{
		Number:         common.BytesToHash(word(0)).Big().Uint64(),
		Time:           common.BytesToHash(word(1)).Big().Uint64(),
		BaseFee:        new(big.Int).SetBytes(word(2)),
		BlockHash:      common.BytesToHash(word(3)),
		SequenceNumber: common.BytesToHash(word(4)).Big().Uint64(),
		BatcherAddr:    common.BytesToAddress(word(5)),
		L1FeeOverhead:  common.BytesToHash(word(6)),
		L1FeeScalar:    common.BytesToHash(word(7)),
	}
	return info, nil
}

// L1InfoDeposit builds the L1 attributes deposit transaction for an L2 block
// at the given sequence number within the epoch of the L1 block.
func L1InfoDeposit(seqNumber uint64, l1Header SealedHeader, batcher common.Address, overhead, scalar common.Hash) *DepositTx {
	info := &L1BlockInfo{
		Number:         l1Header.Number.Uint64(),
		Time:           l1Header.Time,
		BaseFee:        l1Header.BaseFee,
		BlockHash:      l1Header.Hash,
		SequenceNumber: seqNumber,
		BatcherAddr:    batcher,
		L1FeeOverhead:  overhead,
		L1FeeScalar:    scalar,
	}
	to := L1BlockAddress
	return &DepositTx{
		SourceHash:          L1InfoDepositSourceHash(l1Header.Hash, seqNumber),
		From:                L1InfoDepositorAddress,
		To:                  &to,
		Mint:                nil,
		Value:               new(big.Int),
		Gas:                 RegolithSystemTxGas,
		IsSystemTransaction: false,
		Data:                info.Marshal(),
	}
}
