package host

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/log"

	"github.com/okx/fault-proof-client/preimage"
)

// Hinter handles hints arriving on the hint channel.
type Hinter interface {
	Hint(hint string) error
}

// Getter resolves preimage requests arriving on the read channel.
type Getter interface {
	GetPreimage(key preimage.Key) ([]byte, error)
}

// PreimageServer serves the two oracle channels to a client. It implements
// the wire protocol the client's OracleClient and HintWriter speak.
type PreimageServer struct {
	log    log.Logger
	getter Getter
	hinter Hinter
}

// NewPreimageServer creates a server over the given preimage getter and
// hint handler.
func NewPreimageServer(logger log.Logger, getter Getter, hinter Hinter) *PreimageServer {
	return &PreimageServer{log: logger, getter: getter, hinter: hinter}
}

// ServePreimageRequests reads 32-byte keys and answers each with an 8-byte
// big-endian length followed by the preimage. It returns on EOF.
func (s *PreimageServer) ServePreimageRequests(ctx context.Context, rw io.ReadWriter) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var keyBuf [32]byte
		if _, err := io.ReadFull(rw, keyBuf[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return fmt.Errorf("read preimage key: %w", err)
		}
		key, err := preimage.KeyFromBytes(keyBuf[:])
		if err != nil {
			return err
		}
		value, err := s.getter.GetPreimage(key)
		if err != nil {
			s.log.Warn("Preimage not available", "key", key.Hash(), "err", err)
			value = nil
		}
		var lenBuf [8]byte
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(value)))
		if _, err := rw.Write(lenBuf[:]); err != nil {
			return fmt.Errorf("write preimage length: %w", err)
		}
		if len(value) > 0 {
			if _, err := rw.Write(value); err != nil {
				return fmt.Errorf("write preimage value: %w", err)
			}
		}
	}
}

// ServeHintRequests reads length-prefixed hints, forwards each to the hint
// handler and acks with one byte. It returns on EOF.
func (s *PreimageServer) ServeHintRequests(ctx context.Context, rw io.ReadWriter) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var lenBuf [4]byte
		if _, err := io.ReadFull(rw, lenBuf[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return fmt.Errorf("read hint length: %w", err)
		}
		payload := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
		if _, err := io.ReadFull(rw, payload); err != nil {
			return fmt.Errorf("read hint payload: %w", err)
		}
		if err := s.hinter.Hint(string(payload)); err != nil {
			// Hints are advisory; a failed hint surfaces later as a missing
			// preimage.
			s.log.Warn("Hint handler failed", "hint", string(payload), "err", err)
		}
		if _, err := rw.Write([]byte{0}); err != nil {
			return fmt.Errorf("write hint ack: %w", err)
		}
	}
}
