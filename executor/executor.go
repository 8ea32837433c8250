package executor

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus/misc/eip1559"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"github.com/okx/fault-proof-client/eth"
	"github.com/okx/fault-proof-client/mpt"
	"github.com/okx/fault-proof-client/preimage"
	"github.com/okx/fault-proof-client/rollup"
)

var (
	// ErrInvalidAttributes is returned for payload attributes that cannot
	// form a valid block on the parent.
	ErrInvalidAttributes = errors.New("invalid payload attributes")

	// ErrNoBlockExecuted is returned when the output root is requested
	// before a payload was executed.
	ErrNoBlockExecuted = errors.New("no block executed")
)

// errTxDropped marks a user transaction that is excluded from the block.
var errTxDropped = errors.New("transaction dropped")

// StatelessL2BlockExecutor applies payload attributes to the pre-state trie
// and produces the next sealed header, without any local database.
type StatelessL2BlockExecutor struct {
	log log.Logger
	cfg *rollup.Config

	parent      eth.SealedHeader
	db          *TrieDB
	fetch       StateFetcher
	hinter      preimage.Hinter
	precompiles *PrecompileOracle
	chainCfg    *params.ChainConfig
	signer      types.Signer

	header eth.SealedHeader
}

// NewStatelessL2BlockExecutor creates an executor on top of the given
// sealed parent header.
func NewStatelessL2BlockExecutor(logger log.Logger, cfg *rollup.Config, parent eth.SealedHeader, fetch StateFetcher, hinter preimage.Hinter, precompiles *PrecompileOracle) *StatelessL2BlockExecutor {
	chainID := new(big.Int).SetUint64(cfg.L2ChainID)
	chainCfg := &params.ChainConfig{
		ChainID:     chainID,
		LondonBlock: new(big.Int),
	}
	return &StatelessL2BlockExecutor{
		log:         logger,
		cfg:         cfg,
		parent:      parent,
		db:          NewTrieDB(parent.Root, fetch, hinter),
		fetch:       fetch,
		hinter:      hinter,
		precompiles: precompiles,
		chainCfg:    chainCfg,
		signer:      types.LatestSignerForChainID(chainID),
	}
}

// ExecutePayload applies the attributes to the pre-state and returns the
// sealed post-state header. Deposits cannot revert the block; invalid user
// transactions are dropped.
func (e *StatelessL2BlockExecutor) ExecutePayload(attrs eth.L2PayloadAttributes) (eth.SealedHeader, error) {
	if attrs.ParentHash != e.parent.Hash {
		return eth.SealedHeader{}, fmt.Errorf("%w: parent hash %s does not match %s", ErrInvalidAttributes, attrs.ParentHash, e.parent.Hash)
	}
	if attrs.Timestamp <= e.parent.Time {
		return eth.SealedHeader{}, fmt.Errorf("%w: timestamp %d is not past parent %d", ErrInvalidAttributes, attrs.Timestamp, e.parent.Time)
	}
	if len(attrs.Transactions) == 0 || !eth.IsDepositTx(attrs.Transactions[0]) {
		return eth.SealedHeader{}, fmt.Errorf("%w: first transaction must be the L1 attributes deposit", ErrInvalidAttributes)
	}
	gasLimit := attrs.GasLimit
	if gasLimit == 0 {
		gasLimit = e.parent.GasLimit
	}
	baseFee := eip1559.CalcBaseFee(e.chainCfg, e.parent.Header)

	var (
		l1Info      *eth.L1BlockInfo
		includedTxs [][]byte
		receipts    types.Receipts
		gasUsed     uint64
		depositsEnd = false
	)
	for i, opaque := range attrs.Transactions {
		if eth.IsDepositTx(opaque) {
			if depositsEnd {
				return eth.SealedHeader{}, fmt.Errorf("%w: deposit at index %d after user transactions", ErrInvalidAttributes, i)
			}
			dep, err := eth.UnmarshalDepositTx(opaque)
			if err != nil {
				return eth.SealedHeader{}, fmt.Errorf("%w: decode deposit %d: %v", ErrInvalidAttributes, i, err)
			}
			if i == 0 {
				l1Info, err = eth.UnmarshalL1BlockInfo(dep.Data)
				if err != nil {
					return eth.SealedHeader{}, fmt.Errorf("%w: decode L1 attributes: %v", ErrInvalidAttributes, err)
				}
			}
			receipt, err := e.applyDeposit(dep)
			if err != nil {
				return eth.SealedHeader{}, err
			}
			gasUsed += receipt.GasUsed
			receipt.CumulativeGasUsed = gasUsed
			receipt.Bloom = types.CreateBloom(types.Receipts{receipt})
			includedTxs = append(includedTxs, opaque)
			receipts = append(receipts, receipt)
			continue
		}
		depositsEnd = true
		var tx types.Transaction
		if err := tx.UnmarshalBinary(opaque); err != nil {
			e.log.Warn("Dropping undecodable transaction", "index", i, "err", err)
			continue
		}
		receipt, err := e.applyUserTx(&tx, baseFee, l1Info, gasUsed, gasLimit)
		if errors.Is(err, errTxDropped) {
			e.log.Warn("Dropping invalid transaction", "index", i, "tx", tx.Hash(), "err", err)
			continue
		}
		if err != nil {
			return eth.SealedHeader{}, err
		}
		gasUsed += receipt.GasUsed
		receipt.CumulativeGasUsed = gasUsed
		receipt.Bloom = types.CreateBloom(types.Receipts{receipt})
		includedTxs = append(includedTxs, opaque)
		receipts = append(receipts, receipt)
	}

	stateRoot, err := e.db.Commit()
	if err != nil {
		return eth.SealedHeader{}, fmt.Errorf("commit post-state: %w", err)
	}
	txRoot, err := mpt.ListRoot(includedTxs)
	if err != nil {
		return eth.SealedHeader{}, fmt.Errorf("compute transactions root: %w", err)
	}
	receiptRoot, err := receiptsRoot(receipts)
	if err != nil {
		return eth.SealedHeader{}, fmt.Errorf("compute receipts root: %w", err)
	}
	withdrawalsHash := types.EmptyWithdrawalsHash

	header := &types.Header{
		ParentHash:      e.parent.Hash,
		UncleHash:       types.EmptyUncleHash,
		Coinbase:        attrs.FeeRecipient,
		Root:            stateRoot,
		TxHash:          txRoot,
		ReceiptHash:     receiptRoot,
		Bloom:           types.CreateBloom(receipts),
		Difficulty:      new(big.Int),
		Number:          new(big.Int).Add(e.parent.Number, common.Big1),
		GasLimit:        gasLimit,
		GasUsed:         gasUsed,
		Time:            attrs.Timestamp,
		MixDigest:       attrs.PrevRandao,
		BaseFee:         baseFee,
		WithdrawalsHash: &withdrawalsHash,
	}
	e.header = eth.SealHeader(header)
	e.log.Info("Executed L2 block",
		"number", header.Number, "hash", e.header.Hash,
		"txs", len(includedTxs), "gas_used", gasUsed, "state_root", stateRoot)
	return e.header, nil
}

// applyDeposit applies one deposit transaction. A failing deposit is
// recorded as reverted with its gas limit consumed; it never fails the
// block.
func (e *StatelessL2BlockExecutor) applyDeposit(dep *eth.DepositTx) (*types.Receipt, error) {
	sender, err := e.db.GetAccount(dep.From)
	if err != nil {
		return nil, err
	}
	if dep.Mint != nil {
		sender.Balance = new(uint256.Int).Add(sender.Balance, uint256.MustFromBig(dep.Mint))
	}
	sender.Nonce++
	e.db.SetAccount(dep.From, sender)

	status := types.ReceiptStatusSuccessful
	gasUsed, igErr := core.IntrinsicGas(dep.Data, nil, dep.To == nil, true, true, false)
	if igErr != nil || gasUsed > dep.Gas {
		gasUsed = dep.Gas
	}
	value := dep.Value
	if value == nil {
		value = new(big.Int)
	}
	valueU256 := uint256.MustFromBig(value)
	switch {
	case sender.Balance.Cmp(valueU256) < 0:
		// The mint was kept, the transfer reverts.
		status = types.ReceiptStatusFailed
		gasUsed = dep.Gas
	case dep.To != nil && value.Sign() > 0:
		sender.Balance = new(uint256.Int).Sub(sender.Balance, valueU256)
		recipient, err := e.db.GetAccount(*dep.To)
		if err != nil {
			return nil, err
		}
		recipient.Balance = new(uint256.Int).Add(recipient.Balance, valueU256)
		e.db.SetAccount(*dep.To, recipient)
		e.db.SetAccount(dep.From, sender)
	}
	return &types.Receipt{
		Type:    eth.DepositTxType,
		Status:  status,
		GasUsed: gasUsed,
	}, nil
}

// applyUserTx applies one user transaction. errTxDropped excludes the
// transaction from the block; other errors are fatal.
func (e *StatelessL2BlockExecutor) applyUserTx(tx *types.Transaction, baseFee *big.Int, l1Info *eth.L1BlockInfo, gasUsed, gasLimit uint64) (*types.Receipt, error) {
	from, err := types.Sender(e.signer, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid signature: %v", errTxDropped, err)
	}
	sender, err := e.db.GetAccount(from)
	if err != nil {
		return nil, err
	}
	if tx.Nonce() != sender.Nonce {
		return nil, fmt.Errorf("%w: nonce %d does not match account nonce %d", errTxDropped, tx.Nonce(), sender.Nonce)
	}

	effectivePrice, effectiveTip, err := effectiveGasPrice(tx, baseFee)
	if err != nil {
		return nil, err
	}
	intrinsic, err := core.IntrinsicGas(tx.Data(), tx.AccessList(), tx.To() == nil, true, true, false)
	if err != nil || tx.Gas() < intrinsic {
		return nil, fmt.Errorf("%w: gas limit %d below intrinsic gas", errTxDropped, tx.Gas())
	}
	if gasUsed+tx.Gas() > gasLimit {
		return nil, fmt.Errorf("%w: block gas limit exceeded", errTxDropped)
	}
	l1Cost := l1DataFee(tx, l1Info)

	cost := new(big.Int).Mul(effectivePrice, new(big.Int).SetUint64(tx.Gas()))
	cost.Add(cost, tx.Value())
	cost.Add(cost, l1Cost)
	if sender.Balance.Cmp(uint256.MustFromBig(cost)) < 0 {
		return nil, fmt.Errorf("%w: insufficient balance for cost %s", errTxDropped, cost)
	}

	// Execute. Accelerated precompile targets resolve through the oracle;
	// everything else is a plain transfer at intrinsic gas.
	status := types.ReceiptStatusSuccessful
	used := intrinsic
	if to := tx.To(); to != nil && e.precompiles != nil && e.precompiles.Accelerated(*to) {
		_, ok, err := e.precompiles.Run(*to, tx.Data())
		if err != nil {
			return nil, err
		}
		if !ok {
			status = types.ReceiptStatusFailed
			used = tx.Gas()
		}
	}

	// Charge gas and the L1 data fee.
	charge := new(big.Int).Mul(effectivePrice, new(big.Int).SetUint64(used))
	charge.Add(charge, l1Cost)
	sender.Balance = new(uint256.Int).Sub(sender.Balance, uint256.MustFromBig(charge))
	sender.Nonce++
	e.db.SetAccount(from, sender)

	// The value moves only if execution did not revert.
	if status == types.ReceiptStatusSuccessful && tx.To() != nil && tx.Value().Sign() > 0 {
		valueU256 := uint256.MustFromBig(tx.Value())
		sender.Balance = new(uint256.Int).Sub(sender.Balance, valueU256)
		recipient, err := e.db.GetAccount(*tx.To())
		if err != nil {
			return nil, err
		}
		recipient.Balance = new(uint256.Int).Add(recipient.Balance, valueU256)
		e.db.SetAccount(*tx.To(), recipient)
	}

	// Distribute fees: tip to the sequencer vault, base fee to the base fee
	// vault, L1 data fee to the L1 fee vault.
	usedBig := new(big.Int).SetUint64(used)
	if err := e.credit(eth.SequencerFeeVaultAddress, new(big.Int).Mul(effectiveTip, usedBig)); err != nil {
		return nil, err
	}
	if err := e.credit(eth.BaseFeeVaultAddress, new(big.Int).Mul(baseFee, usedBig)); err != nil {
		return nil, err
	}
	if err := e.credit(eth.L1FeeVaultAddress, l1Cost); err != nil {
		return nil, err
	}

	return &types.Receipt{
		Type:    tx.Type(),
		Status:  status,
		GasUsed: used,
	}, nil
}

// credit adds amount to the account's balance.
func (e *StatelessL2BlockExecutor) credit(addr common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	acc, err := e.db.GetAccount(addr)
	if err != nil {
		return err
	}
	acc.Balance = new(uint256.Int).Add(acc.Balance, uint256.MustFromBig(amount))
	e.db.SetAccount(addr, acc)
	return nil
}

// effectiveGasPrice resolves the gas price and miner tip of a transaction
// against the block base fee.
func effectiveGasPrice(tx *types.Transaction, baseFee *big.Int) (price, tip *big.Int, err error) {
	if tx.Type() == types.DynamicFeeTxType || tx.Type() == types.BlobTxType {
		if tx.GasFeeCap().Cmp(baseFee) < 0 {
			return nil, nil, fmt.Errorf("%w: fee cap %s below base fee %s", errTxDropped, tx.GasFeeCap(), baseFee)
		}
		tip = new(big.Int).Sub(tx.GasFeeCap(), baseFee)
		if tip.Cmp(tx.GasTipCap()) > 0 {
			tip = new(big.Int).Set(tx.GasTipCap())
		}
		return new(big.Int).Add(baseFee, tip), tip, nil
	}
	if tx.GasPrice().Cmp(baseFee) < 0 {
		return nil, nil, fmt.Errorf("%w: gas price %s below base fee %s", errTxDropped, tx.GasPrice(), baseFee)
	}
	return tx.GasPrice(), new(big.Int).Sub(tx.GasPrice(), baseFee), nil
}

// l1DataFee computes the L1 data fee of a transaction from the current L1
// attributes: l1BaseFee * (calldataGas + overhead) * scalar / 1e6.
func l1DataFee(tx *types.Transaction, l1Info *eth.L1BlockInfo) *big.Int {
	if l1Info == nil {
		return new(big.Int)
	}
	data, err := tx.MarshalBinary()
	if err != nil {
		return new(big.Int)
	}
	calldataGas := uint256.NewInt(0)
	for _, b := range data {
		if b == 0 {
			calldataGas.Add(calldataGas, uint256.NewInt(params.TxDataZeroGas))
		} else {
			calldataGas.Add(calldataGas, uint256.NewInt(params.TxDataNonZeroGasEIP2028))
		}
	}
	overhead := new(uint256.Int).SetBytes(l1Info.L1FeeOverhead[:])
	scalar := new(uint256.Int).SetBytes(l1Info.L1FeeScalar[:])
	l1BaseFee, overflow := uint256.FromBig(l1Info.BaseFee)
	if overflow {
		l1BaseFee = uint256.NewInt(0)
	}
	fee := new(uint256.Int).Add(calldataGas, overhead)
	fee.Mul(fee, l1BaseFee)
	fee.Mul(fee, scalar)
	fee.Div(fee, uint256.NewInt(1_000_000))
	return fee.ToBig()
}

// receiptsRoot computes the receipts trie root over the consensus encoding
// of the receipts.
func receiptsRoot(receipts types.Receipts) (common.Hash, error) {
	encoded := make([][]byte, len(receipts))
	for i, r := range receipts {
		enc, err := r.MarshalBinary()
		if err != nil {
			return common.Hash{}, fmt.Errorf("encode receipt %d: %w", i, err)
		}
		encoded[i] = enc
	}
	return mpt.ListRoot(encoded)
}

// ComputeOutputRoot commits to the executed block: the v0 output root over
// the post-state root, the message-passer storage root and the block hash.
// It reads through the executor's own committed trie, so the post-state
// never needs to round-trip through the oracle.
func (e *StatelessL2BlockExecutor) ComputeOutputRoot() (common.Hash, error) {
	if e.header.Header == nil {
		return common.Hash{}, ErrNoBlockExecuted
	}
	storageRoot, err := e.db.StorageRoot(eth.L2ToL1MessagePasserAddress)
	if err != nil {
		return common.Hash{}, fmt.Errorf("message passer storage root: %w", err)
	}
	return eth.OutputRootV0(e.header.Root, storageRoot, e.header.Hash), nil
}

// ComputeOutputRootOf computes the output root of a historical sealed
// header by walking its post-state through the oracle.
func (e *StatelessL2BlockExecutor) ComputeOutputRootOf(header eth.SealedHeader) (common.Hash, error) {
	return e.outputRootAt(header)
}

func (e *StatelessL2BlockExecutor) outputRootAt(header eth.SealedHeader) (common.Hash, error) {
	db := NewTrieDB(header.Root, e.fetch, e.hinter)
	storageRoot, err := db.StorageRoot(eth.L2ToL1MessagePasserAddress)
	if err != nil {
		return common.Hash{}, fmt.Errorf("message passer storage root at %s: %w", header.Hash, err)
	}
	return eth.OutputRootV0(header.Root, storageRoot, header.Hash), nil
}

// Header returns the executed block's sealed header.
func (e *StatelessL2BlockExecutor) Header() eth.SealedHeader {
	return e.header
}
