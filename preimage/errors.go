package preimage

import "errors"

var (
	// ErrKeyMismatch is returned when a preimage fails the key's hash check.
	ErrKeyMismatch = errors.New("preimage does not match key")

	// ErrInvalidKeyType is returned for an unknown key type tag.
	ErrInvalidKeyType = errors.New("invalid preimage key type")

	// ErrInvalidKeyLength is returned when decoding a key of the wrong size.
	ErrInvalidKeyLength = errors.New("invalid preimage key length")

	// ErrWrongSize is returned by GetExact when the preimage length does not
	// match the destination buffer.
	ErrWrongSize = errors.New("preimage has wrong size")

	// ErrNotFound is returned when the host has no preimage for a key.
	ErrNotFound = errors.New("preimage not found")

	// ErrHintParsing is returned for a malformed hint string.
	ErrHintParsing = errors.New("hint parsing error")
)
