// Package rollup holds the rollup chain configuration and the derived
// per-block system configuration.
package rollup

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/okx/fault-proof-client/eth"
)

var (
	// ErrInvalidConfig is returned when the rollup configuration fails
	// schema validation.
	ErrInvalidConfig = errors.New("invalid rollup config")
)

// Genesis anchors the L2 chain to its starting point on both chains.
type Genesis struct {
	// L1 is the L1 block the rollup starts after.
	L1 eth.BlockID `json:"l1"`
	// L2 is the first L2 block.
	L2 eth.BlockID `json:"l2"`
	// L2Time is the timestamp of the first L2 block.
	L2Time uint64 `json:"l2_time"`
	// SystemConfig is the system configuration at genesis.
	SystemConfig SystemConfig `json:"system_config"`
}

// Config is the rollup chain configuration, delivered to the client via the
// rollup-config boot slot as JSON.
type Config struct {
	Genesis Genesis `json:"genesis"`

	// BlockTime is the L2 block time in seconds.
	BlockTime uint64 `json:"block_time"`
	// MaxSequencerDrift bounds how far an L2 timestamp may run ahead of its
	// L1 origin.
	MaxSequencerDrift uint64 `json:"max_sequencer_drift"`
	// SeqWindowSize is the number of L1 blocks a batch may trail its epoch.
	SeqWindowSize uint64 `json:"seq_window_size"`
	// ChannelTimeout is the max number of L1 blocks between the first and
	// last frame of a channel.
	ChannelTimeout uint64 `json:"channel_timeout"`

	L1ChainID uint64 `json:"l1_chain_id"`
	L2ChainID uint64 `json:"l2_chain_id"`

	// BatchInboxAddress is the L1 address batcher transactions are sent to.
	BatchInboxAddress common.Address `json:"batch_inbox_address"`
	// DepositContractAddress is the L1 portal emitting deposit events.
	DepositContractAddress common.Address `json:"deposit_contract_address"`
	// L1SystemConfigAddress is the L1 contract emitting config updates.
	L1SystemConfigAddress common.Address `json:"l1_system_config_address"`
}

// Check validates the configuration schema.
func (c *Config) Check() error {
	if c.BlockTime == 0 {
		return fmt.Errorf("%w: block time must not be 0", ErrInvalidConfig)
	}
	if c.SeqWindowSize < 2 {
		return fmt.Errorf("%w: sequencing window size must be at least 2", ErrInvalidConfig)
	}
	if c.ChannelTimeout == 0 {
		return fmt.Errorf("%w: channel timeout must not be 0", ErrInvalidConfig)
	}
	if c.L1ChainID == 0 || c.L2ChainID == 0 {
		return fmt.Errorf("%w: chain ids must not be 0", ErrInvalidConfig)
	}
	if c.Genesis.L1.Hash == (common.Hash{}) || c.Genesis.L2.Hash == (common.Hash{}) {
		return fmt.Errorf("%w: genesis anchors must be set", ErrInvalidConfig)
	}
	if c.BatchInboxAddress == (common.Address{}) {
		return fmt.Errorf("%w: batch inbox address must be set", ErrInvalidConfig)
	}
	if c.DepositContractAddress == (common.Address{}) {
		return fmt.Errorf("%w: deposit contract address must be set", ErrInvalidConfig)
	}
	if c.Genesis.SystemConfig.GasLimit == 0 {
		return fmt.Errorf("%w: genesis gas limit must not be 0", ErrInvalidConfig)
	}
	return nil
}

// ParseConfig decodes and validates a JSON rollup configuration.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NextTimestamp returns the timestamp of the L2 block after one at t.
func (c *Config) NextTimestamp(t uint64) uint64 {
	return t + c.BlockTime
}
