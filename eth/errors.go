package eth

import "errors"

var (
	// ErrHeaderHashMismatch is returned when a header's RLP encoding does not
	// hash back to its expected seal.
	ErrHeaderHashMismatch = errors.New("header hash mismatch")

	// ErrInvalidOutput is returned for a malformed output-root preimage.
	ErrInvalidOutput = errors.New("invalid output preimage")

	// ErrInvalidOutputVersion is returned for an unsupported output version.
	ErrInvalidOutputVersion = errors.New("invalid output version")

	// ErrInvalidDepositLog is returned when a TransactionDeposited log cannot
	// be decoded.
	ErrInvalidDepositLog = errors.New("invalid deposit log")

	// ErrInvalidL1InfoTx is returned when an L1 attributes transaction cannot
	// be decoded.
	ErrInvalidL1InfoTx = errors.New("invalid L1 info transaction")

	// ErrNotDepositTx is returned when decoding a deposit envelope from a
	// transaction of a different type.
	ErrNotDepositTx = errors.New("not a deposit transaction")
)
