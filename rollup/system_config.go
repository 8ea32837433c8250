package rollup

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// SystemConfig is the rollup configuration that can change over time through
// L1 config-update events. A snapshot is valid at a specific L1 origin.
type SystemConfig struct {
	// BatcherAddr is the only address whose inbox transactions are accepted.
	BatcherAddr common.Address `json:"batcherAddr"`
	// Overhead is the L1 fee overhead, as a 32-byte big-endian value.
	Overhead common.Hash `json:"overhead"`
	// Scalar is the L1 fee scalar, as a 32-byte big-endian value.
	Scalar common.Hash `json:"scalar"`
	// GasLimit is the L2 block gas limit.
	GasLimit uint64 `json:"gasLimit"`
}

// ConfigUpdateEventABI is the system config contract's update event.
const ConfigUpdateEventABI = "ConfigUpdate(uint256,uint8,bytes)"

// ConfigUpdateEventABIHash is topic[0] of config update events.
var ConfigUpdateEventABIHash = crypto.Keccak256Hash([]byte(ConfigUpdateEventABI))

// ConfigUpdateEventVersion0 is the only update event version defined.
var ConfigUpdateEventVersion0 = common.Hash{}

// System config update types, carried in topic[2] of the update event.
const (
	SystemConfigUpdateBatcher   = 0
	SystemConfigUpdateGasConfig = 1
	SystemConfigUpdateGasLimit  = 2
)

// UpdateSystemConfigWithL1Receipts applies every config-update event found in
// the receipts of one L1 block to the system config, in log order.
func UpdateSystemConfigWithL1Receipts(sysCfg *SystemConfig, receipts []*types.Receipt, cfg *Config) error {
	for _, rec := range receipts {
		if rec.Status != types.ReceiptStatusSuccessful {
			continue
		}
		for _, l := range rec.Logs {
			if l.Address != cfg.L1SystemConfigAddress || len(l.Topics) == 0 || l.Topics[0] != ConfigUpdateEventABIHash {
				continue
			}
			if l.Removed {
				continue
			}
			if err := processSystemConfigUpdateLogEvent(sysCfg, l); err != nil {
				return fmt.Errorf("config update log %d of tx %s: %w", l.Index, l.TxHash, err)
			}
		}
	}
	return nil
}

// processSystemConfigUpdateLogEvent decodes one ConfigUpdate event and
// applies it to the config.
func processSystemConfigUpdateLogEvent(sysCfg *SystemConfig, ev *types.Log) error {
	if len(ev.Topics) != 3 {
		return fmt.Errorf("expected 3 event topics, got %d", len(ev.Topics))
	}
	if ev.Topics[1] != ConfigUpdateEventVersion0 {
		return fmt.Errorf("unknown config update version %s", ev.Topics[1])
	}
	updateType := new(big.Int).SetBytes(ev.Topics[2][:])
	if !updateType.IsUint64() {
		return fmt.Errorf("invalid config update type %s", ev.Topics[2])
	}

	// The event data is a single ABI-encoded dynamic bytes argument wrapping
	// the packed update payload.
	if len(ev.Data) < 64 {
		return fmt.Errorf("config update data too short: %d", len(ev.Data))
	}
	length := new(big.Int).SetBytes(ev.Data[32:64])
	if !length.IsUint64() || length.Uint64() > uint64(len(ev.Data)-64) {
		return fmt.Errorf("invalid config update data length")
	}
	payload := ev.Data[64 : 64+length.Uint64()]

	switch updateType.Uint64() {
	case SystemConfigUpdateBatcher:
		if len(payload) != 32 {
			return fmt.Errorf("batcher update payload must be 32 bytes, got %d", len(payload))
		}
		sysCfg.BatcherAddr = common.BytesToAddress(payload[12:])
	case SystemConfigUpdateGasConfig:
		if len(payload) != 64 {
			return fmt.Errorf("gas config update payload must be 64 bytes, got %d", len(payload))
		}
		sysCfg.Overhead = common.BytesToHash(payload[:32])
		sysCfg.Scalar = common.BytesToHash(payload[32:64])
	case SystemConfigUpdateGasLimit:
		if len(payload) != 32 {
			return fmt.Errorf("gas limit update payload must be 32 bytes, got %d", len(payload))
		}
		gasLimit := new(big.Int).SetBytes(payload)
		if !gasLimit.IsUint64() {
			return fmt.Errorf("gas limit overflows u64")
		}
		sysCfg.GasLimit = gasLimit.Uint64()
	default:
		return fmt.Errorf("unknown config update type %d", updateType.Uint64())
	}
	return nil
}
