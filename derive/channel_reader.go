package derive

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/okx/fault-proof-client/eth"
	"github.com/okx/fault-proof-client/rollup"
)

// ChannelVersionBrotli marks a brotli-compressed channel payload. Zlib
// payloads are recognized by their CMF byte instead.
const ChannelVersionBrotli = 0x01

// maxDecompressedChannelSize bounds how much a channel may decompress to.
const maxDecompressedChannelSize = 10_000_000

// ChannelReader decompresses complete channels and decodes the batches they
// carry.
type ChannelReader struct {
	log  log.Logger
	prev NextChannelProvider

	batches *rlp.Stream
	raw     io.Reader
}

// NewChannelReader creates the channel reader stage.
func NewChannelReader(logger log.Logger, prev NextChannelProvider) *ChannelReader {
	return &ChannelReader{log: logger, prev: prev}
}

// NextBatch returns the next batch of the current channel, opening the next
// complete channel when the current one is exhausted. Undecodable channels
// are discarded.
func (r *ChannelReader) NextBatch() (*BatchWithL1InclusionBlock, error) {
	if r.batches == nil {
		data, err := r.prev.NextData()
		if err != nil {
			return nil, err
		}
		if err := r.open(data); err != nil {
			r.log.Warn("Discarding undecodable channel", "err", err)
			return nil, ErrNotEnoughData
		}
	}
	var enc []byte
	if err := r.batches.Decode(&enc); err != nil {
		if errors.Is(err, io.EOF) {
			r.batches = nil
			return nil, ErrNotEnoughData
		}
		r.log.Warn("Discarding channel with undecodable batch", "err", err)
		r.batches = nil
		return nil, ErrNotEnoughData
	}
	batch, err := DecodeBatch(enc)
	if err != nil {
		r.log.Warn("Dropping undecodable batch", "err", err)
		return nil, ErrNotEnoughData
	}
	return &BatchWithL1InclusionBlock{
		Batch:            batch,
		L1InclusionBlock: r.prev.Origin(),
	}, nil
}

// open sets up decompression and batch decoding over a channel payload.
func (r *ChannelReader) open(data []byte) error {
	if len(data) == 0 {
		return errors.New("empty channel payload")
	}
	var reader io.Reader
	switch {
	case data[0] == ChannelVersionBrotli:
		reader = brotli.NewReader(bytes.NewReader(data[1:]))
	case data[0]&0x0F == 0x08:
		// Zlib CMF byte: deflate with any window size.
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("open zlib channel: %w", err)
		}
		reader = zr
	default:
		return fmt.Errorf("unknown channel compression format byte: %d", data[0])
	}
	r.raw = io.LimitReader(reader, maxDecompressedChannelSize)
	r.batches = rlp.NewStream(r.raw, maxDecompressedChannelSize)
	return nil
}

// Origin implements OriginProvider.
func (r *ChannelReader) Origin() eth.BlockInfo {
	return r.prev.Origin()
}

// Reset implements ResettableStage.
func (r *ChannelReader) Reset(base eth.BlockInfo, cfg rollup.SystemConfig) error {
	r.batches = nil
	r.raw = nil
	return nil
}
