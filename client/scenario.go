// Package client wires the fault-proof client together: it boots from the
// oracle, derives the disputed payload from L1 data, binds the derivation
// origin to the L1 head, executes the payload and checks the claimed output
// root.
package client

import (
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/okx/fault-proof-client/boot"
	"github.com/okx/fault-proof-client/derive"
	"github.com/okx/fault-proof-client/eth"
	"github.com/okx/fault-proof-client/executor"
	"github.com/okx/fault-proof-client/l1"
	"github.com/okx/fault-proof-client/l2"
	"github.com/okx/fault-proof-client/preimage"
)

var (
	// ErrClaimMismatch is the proof-of-fault terminal: the computed output
	// root does not equal the claim.
	ErrClaimMismatch = errors.New("claim mismatch")

	// ErrL1BoundExceeded is returned when derivation read an L1 block past
	// the boot's L1 end bound.
	ErrL1BoundExceeded = errors.New("derivation exceeded the L1 end bound")
)

// PublicValues is the output triple committed by the VM entrypoint.
type PublicValues struct {
	ParentOutputRoot common.Hash
	OutputRoot       common.Hash
	L1EndBlockHash   common.Hash
}

// Scenario owns the oracle and all providers for one client run.
type Scenario struct {
	log    log.Logger
	oracle *preimage.CachingOracle
	hinter preimage.Hinter

	// Boot holds the trusted inputs.
	Boot *boot.BootInfo

	l1Provider   *l1.OracleL1ChainProvider
	blobProvider *l1.OracleBlobProvider
	l2Provider   *l2.OracleL2ChainProvider

	executor *executor.StatelessL2BlockExecutor
}

// NewScenario runs the prologue over an already-constructed oracle: boot
// loading and provider construction.
func NewScenario(logger log.Logger, oracle *preimage.CachingOracle, hinter preimage.Hinter) (*Scenario, error) {
	bootInfo, err := boot.Load(oracle)
	if err != nil {
		return nil, err
	}
	l1Provider := l1.NewOracleL1ChainProvider(bootInfo.L1Head, oracle, hinter)
	blobProvider := l1.NewOracleBlobProvider(oracle, hinter)
	l2Provider, err := l2.NewOracleL2ChainProvider(bootInfo.L2OutputRoot, bootInfo.RollupConfig, oracle, hinter)
	if err != nil {
		return nil, fmt.Errorf("anchor L2 provider: %w", err)
	}
	logger.Info("Scenario booted",
		"l1_head", bootInfo.L1Head, "l2_output_root", bootInfo.L2OutputRoot,
		"l2_claim", bootInfo.L2Claim, "claim_block", bootInfo.L2ClaimBlockNumber)
	return &Scenario{
		log:          logger,
		oracle:       oracle,
		hinter:       hinter,
		Boot:         bootInfo,
		l1Provider:   l1Provider,
		blobProvider: blobProvider,
		l2Provider:   l2Provider,
	}, nil
}

// NewScenarioFromStreams constructs the oracle over the host's two byte
// streams, optionally seeded with a prebuilt preimage map, and runs the
// prologue.
func NewScenarioFromStreams(logger log.Logger, preimageRW, hintRW io.ReadWriter, prebuilt map[preimage.Key][]byte) (*Scenario, error) {
	oracle, err := preimage.NewCachingOracle(preimage.NewOracleClient(preimageRW), prebuilt)
	if err != nil {
		return nil, err
	}
	var hinter preimage.Hinter = preimage.NoopHinter{}
	if hintRW != nil {
		hinter = preimage.NewHintWriter(hintRW)
	}
	return NewScenario(logger, oracle, hinter)
}

// Derive drives the pipeline until the disputed payload is produced. It
// returns the payload attributes, the sealed L2 safe head they build on and
// the L1 origin the pipeline started from.
func (s *Scenario) Derive() (eth.L2AttributesWithParent, eth.SealedHeader, eth.BlockInfo, error) {
	driver, err := derive.NewDerivationDriver(s.log, s.Boot.RollupConfig, s.l1Provider, s.blobProvider, s.l2Provider)
	if err != nil {
		return eth.L2AttributesWithParent{}, eth.SealedHeader{}, eth.BlockInfo{}, err
	}
	l1Origin := driver.L1Cursor()
	attrs, err := driver.ProduceDisputedPayload(s.Boot.L2ClaimBlockNumber)
	if err != nil {
		return eth.L2AttributesWithParent{}, eth.SealedHeader{}, eth.BlockInfo{}, err
	}
	l1Batch := driver.L1Cursor()
	if s.Boot.L1EndNumber > 0 && l1Batch.Number > s.Boot.L1EndNumber {
		return eth.L2AttributesWithParent{}, eth.SealedHeader{}, eth.BlockInfo{}, fmt.Errorf("%w: batch read at L1 block %d, bound %d", ErrL1BoundExceeded, l1Batch.Number, s.Boot.L1EndNumber)
	}
	return attrs, driver.TakeL2SafeHeadHeader(), l1Origin, nil
}

// CheckL1Connectivity walks parent links from the block at endNum back to
// the origin, asserting every link, and returns the end block hash.
func (s *Scenario) CheckL1Connectivity(originHash common.Hash, originNum, endNum uint64) (common.Hash, error) {
	if endNum == 0 {
		return common.Hash{}, errors.New("L1 end number must not be 0")
	}
	if endNum < originNum {
		return common.Hash{}, fmt.Errorf("L1 end %d is before origin %d", endNum, originNum)
	}
	endInfo, err := s.l1Provider.BlockInfoByNumber(endNum)
	if err != nil {
		return common.Hash{}, fmt.Errorf("resolve L1 end block %d: %w", endNum, err)
	}
	endHeader, err := s.l1Provider.HeaderByHash(endInfo.Hash)
	if err != nil {
		return common.Hash{}, err
	}
	current := endHeader
	for i := uint64(0); i < endNum-originNum; i++ {
		parent, err := s.l1Provider.HeaderByHash(current.ParentHash)
		if err != nil {
			return common.Hash{}, fmt.Errorf("walk L1 chain at %d: %w", current.Number.Uint64()-1, err)
		}
		if parent.Hash != current.ParentHash {
			return common.Hash{}, fmt.Errorf("L1 chain link broken at %d", current.Number.Uint64())
		}
		current = parent
	}
	if current.Hash != originHash || current.Number.Uint64() != originNum {
		return common.Hash{}, fmt.Errorf("L1 chain does not connect to origin %s (%d)", originHash, originNum)
	}
	s.log.Debug("L1 connectivity verified", "origin", originNum, "end", endNum, "end_hash", endHeader.Hash)
	return endHeader.Hash, nil
}

// ExecuteBlock executes the payload attributes on the sealed parent and
// returns the resulting header.
func (s *Scenario) ExecuteBlock(attrs eth.L2PayloadAttributes, parent eth.SealedHeader) (eth.SealedHeader, error) {
	precompiles := executor.NewPrecompileOracle(s.oracle, s.hinter)
	s.executor = executor.NewStatelessL2BlockExecutor(s.log, s.Boot.RollupConfig, parent, s.l2Provider, s.hinter, precompiles)
	return s.executor.ExecutePayload(attrs)
}

// ComputeOutputRoot returns the output root of the executed block.
func (s *Scenario) ComputeOutputRoot() (common.Hash, error) {
	if s.executor == nil {
		return common.Hash{}, executor.ErrNoBlockExecuted
	}
	return s.executor.ComputeOutputRoot()
}

// ComputeOutputRootOf computes the output root of a historical sealed
// header.
func (s *Scenario) ComputeOutputRootOf(header eth.SealedHeader) (common.Hash, error) {
	precompiles := executor.NewPrecompileOracle(s.oracle, s.hinter)
	ex := executor.NewStatelessL2BlockExecutor(s.log, s.Boot.RollupConfig, header, s.l2Provider, s.hinter, precompiles)
	return ex.ComputeOutputRootOf(header)
}

// Run performs the full client flow and returns the committed public
// values. The two terminal outcomes are a confirmed claim or an error;
// ErrClaimMismatch is the proof of fault.
func (s *Scenario) Run() (PublicValues, error) {
	attrs, parentHeader, l1Origin, err := s.Derive()
	if err != nil {
		return PublicValues{}, fmt.Errorf("derivation: %w", err)
	}

	// The connectivity walk always runs; a zero L1 end bound is rejected
	// inside CheckL1Connectivity and aborts the run.
	l1EndBlockHash, err := s.CheckL1Connectivity(l1Origin.Hash, l1Origin.Number, s.Boot.L1EndNumber)
	if err != nil {
		return PublicValues{}, fmt.Errorf("L1 connectivity: %w", err)
	}

	header, err := s.ExecuteBlock(attrs.Attributes, parentHeader)
	if err != nil {
		return PublicValues{}, fmt.Errorf("execution: %w", err)
	}
	if header.Number.Uint64() != s.Boot.L2ClaimBlockNumber {
		return PublicValues{}, fmt.Errorf("%w: executed block %d, claimed %d", ErrClaimMismatch, header.Number.Uint64(), s.Boot.L2ClaimBlockNumber)
	}

	parentOutputRoot, err := s.ComputeOutputRootOf(parentHeader)
	if err != nil {
		return PublicValues{}, fmt.Errorf("parent output root: %w", err)
	}
	outputRoot, err := s.ComputeOutputRoot()
	if err != nil {
		return PublicValues{}, fmt.Errorf("output root: %w", err)
	}
	if outputRoot != s.Boot.L2Claim {
		return PublicValues{}, fmt.Errorf("%w: computed %s, claimed %s", ErrClaimMismatch, outputRoot, s.Boot.L2Claim)
	}
	s.log.Info("Claim confirmed", "output_root", outputRoot, "block", header.Number)
	return PublicValues{
		ParentOutputRoot: parentOutputRoot,
		OutputRoot:       outputRoot,
		L1EndBlockHash:   l1EndBlockHash,
	}, nil
}
