package preimage

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// HintType identifies the kind of data a hint asks the host to prepare.
type HintType string

const (
	HintL1BlockHeader         HintType = "l1-block-header"
	HintL1Transactions        HintType = "l1-transactions"
	HintL1Receipts            HintType = "l1-receipts"
	HintL1Blob                HintType = "l1-blob"
	HintL1Precompile          HintType = "l1-precompile"
	HintL2BlockHeader         HintType = "l2-block-header"
	HintL2Transactions        HintType = "l2-transactions"
	HintL2Receipts            HintType = "l2-receipts"
	HintL2Code                HintType = "l2-code"
	HintAgreedPreState        HintType = "agreed-pre-state"
	HintL2OutputRoot          HintType = "l2-output-root"
	HintL2StateNode           HintType = "l2-state-node"
	HintL2AccountProof        HintType = "l2-account-proof"
	HintL2AccountStorageProof HintType = "l2-account-storage-proof"
	HintL2PayloadWitness      HintType = "l2-payload-witness"
)

// hintTypes is the closed set of valid hint types.
var hintTypes = map[HintType]struct{}{
	HintL1BlockHeader:         {},
	HintL1Transactions:        {},
	HintL1Receipts:            {},
	HintL1Blob:                {},
	HintL1Precompile:          {},
	HintL2BlockHeader:         {},
	HintL2Transactions:        {},
	HintL2Receipts:            {},
	HintL2Code:                {},
	HintAgreedPreState:        {},
	HintL2OutputRoot:          {},
	HintL2StateNode:           {},
	HintL2AccountProof:        {},
	HintL2AccountStorageProof: {},
	HintL2PayloadWitness:      {},
}

// Valid reports whether the hint type is part of the closed set.
func (t HintType) Valid() bool {
	_, ok := hintTypes[t]
	return ok
}

// Hint is a request for the host to ensure a preimage will be available.
// The wire format is "<hint-type> <hex-data>" with exactly one space and
// lowercase hex without a 0x prefix.
type Hint struct {
	Type HintType
	Data []byte
}

// NewHint builds a hint from its type and the concatenation of data parts.
func NewHint(t HintType, data ...[]byte) Hint {
	var buf []byte
	for _, d := range data {
		buf = append(buf, d...)
	}
	return Hint{Type: t, Data: buf}
}

// String encodes the hint in wire format.
func (h Hint) String() string {
	return fmt.Sprintf("%s %s", h.Type, hex.EncodeToString(h.Data))
}

// ParseHint parses a wire-format hint. Invalid hints produce an error
// wrapping ErrHintParsing and do not advance any state.
func ParseHint(s string) (Hint, error) {
	parts := strings.Split(s, " ")
	if len(parts) != 2 {
		return Hint{}, fmt.Errorf("%w: Invalid hint format: %s", ErrHintParsing, s)
	}
	t := HintType(parts[0])
	if !t.Valid() {
		return Hint{}, fmt.Errorf("%w: unknown hint type: %s", ErrHintParsing, parts[0])
	}
	if strings.ToLower(parts[1]) != parts[1] || strings.HasPrefix(parts[1], "0x") {
		return Hint{}, fmt.Errorf("%w: invalid hint data: %s", ErrHintParsing, parts[1])
	}
	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return Hint{}, fmt.Errorf("%w: invalid hint data: %s", ErrHintParsing, parts[1])
	}
	return Hint{Type: t, Data: data}, nil
}

// Hinter writes hints to the host. Hints are advisory: correctness never
// depends on them, only liveness of subsequent oracle reads.
type Hinter interface {
	Hint(h Hint) error
}

// HintWriter sends hints over the hint channel: a 4-byte big-endian length,
// the UTF-8 hint, then a 1-byte ack read back from the host.
type HintWriter struct {
	rw io.ReadWriter
}

// NewHintWriter creates a HintWriter over the given host channel.
func NewHintWriter(rw io.ReadWriter) *HintWriter {
	return &HintWriter{rw: rw}
}

// Hint writes a single hint and waits for the host ack.
func (w *HintWriter) Hint(h Hint) error {
	payload := []byte(h.String())
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)
	if _, err := w.rw.Write(buf); err != nil {
		return fmt.Errorf("write hint: %w", err)
	}
	var ack [1]byte
	if _, err := io.ReadFull(w.rw, ack[:]); err != nil {
		return fmt.Errorf("read hint ack: %w", err)
	}
	return nil
}

// NoopHinter discards hints. Used when the oracle is fully pre-populated.
type NoopHinter struct{}

// Hint implements Hinter.
func (NoopHinter) Hint(Hint) error { return nil }
