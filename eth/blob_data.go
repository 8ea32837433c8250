package eth

import (
	"errors"
	"fmt"
)

// Blob data codec. Rollup data rides in the low 31 bytes of each field
// element so every element stays below the BLS modulus. The first element
// leads with a version byte and a u24 payload length.

const (
	// BlobEncodingVersion0 is the only blob encoding currently defined.
	BlobEncodingVersion0 = 0

	blobFieldElements   = 4096
	blobBytesPerElement = 31
	// MaxBlobDataSize is the payload capacity of one blob.
	MaxBlobDataSize = blobFieldElements*blobBytesPerElement - 4
)

var (
	// ErrBlobInvalidFieldElement is returned when a field element carries
	// data in its high byte.
	ErrBlobInvalidFieldElement = errors.New("invalid blob field element")

	// ErrBlobInvalidEncodingVersion is returned for an unknown blob encoding.
	ErrBlobInvalidEncodingVersion = errors.New("invalid blob encoding version")

	// ErrBlobDataTooLarge is returned when a payload exceeds blob capacity.
	ErrBlobDataTooLarge = errors.New("blob data too large")
)

// FromData encodes a payload into the blob.
func (b *Blob) FromData(data []byte) error {
	if len(data) > MaxBlobDataSize {
		return fmt.Errorf("%w: %d bytes", ErrBlobDataTooLarge, len(data))
	}
	*b = Blob{}
	var header [blobBytesPerElement]byte
	header[0] = BlobEncodingVersion0
	header[1] = byte(len(data) >> 16)
	header[2] = byte(len(data) >> 8)
	header[3] = byte(len(data))
	n := copy(header[4:], data)
	copy(b[1:32], header[:])
	data = data[n:]
	for i := 1; i < blobFieldElements && len(data) > 0; i++ {
		n := copy(b[i*32+1:(i+1)*32], data)
		data = data[n:]
	}
	return nil
}

// ToData decodes the payload carried by the blob.
func (b *Blob) ToData() ([]byte, error) {
	for i := 0; i < blobFieldElements; i++ {
		if b[i*32] != 0 {
			return nil, fmt.Errorf("%w: element %d", ErrBlobInvalidFieldElement, i)
		}
	}
	if b[1] != BlobEncodingVersion0 {
		return nil, fmt.Errorf("%w: %d", ErrBlobInvalidEncodingVersion, b[1])
	}
	length := uint32(b[2])<<16 | uint32(b[3])<<8 | uint32(b[4])
	if length > MaxBlobDataSize {
		return nil, fmt.Errorf("%w: header says %d bytes", ErrBlobDataTooLarge, length)
	}
	data := make([]byte, 0, length)
	data = append(data, b[5:32]...)
	for i := 1; i < blobFieldElements && uint32(len(data)) < length; i++ {
		data = append(data, b[i*32+1:(i+1)*32]...)
	}
	return data[:length], nil
}
