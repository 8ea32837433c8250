package derive

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/okx/fault-proof-client/eth"
	"github.com/okx/fault-proof-client/rollup"
)

// DerivationVersion0 is the version byte leading every DA payload.
const DerivationVersion0 = 0

// MaxFrameLen bounds a single frame's data length.
const MaxFrameLen = 1_000_000

// ChannelID identifies a channel across its frames.
type ChannelID [16]byte

// String returns the channel id as hex.
func (id ChannelID) String() string {
	return fmt.Sprintf("%x", id[:])
}

// Frame is a channel fragment: channel_id || frame_number || frame_data_length
// || frame_data || is_last.
type Frame struct {
	ID          ChannelID
	FrameNumber uint16
	Data        []byte
	IsLast      bool
}

// MarshalBinary encodes the frame in wire format.
func (f *Frame) MarshalBinary() []byte {
	buf := make([]byte, 0, 16+2+4+len(f.Data)+1)
	buf = append(buf, f.ID[:]...)
	buf = binary.BigEndian.AppendUint16(buf, f.FrameNumber)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Data)))
	buf = append(buf, f.Data...)
	if f.IsLast {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// unmarshalFrame decodes one frame from buf, returning the remainder.
func unmarshalFrame(buf []byte) (Frame, []byte, error) {
	var f Frame
	if len(buf) < 16+2+4 {
		return Frame{}, nil, errors.New("frame too short")
	}
	copy(f.ID[:], buf[:16])
	f.FrameNumber = binary.BigEndian.Uint16(buf[16:18])
	length := binary.BigEndian.Uint32(buf[18:22])
	if length > MaxFrameLen {
		return Frame{}, nil, fmt.Errorf("frame data too large: %d", length)
	}
	buf = buf[22:]
	if uint32(len(buf)) < length+1 {
		return Frame{}, nil, errors.New("frame data truncated")
	}
	f.Data = buf[:length]
	switch buf[length] {
	case 0:
		f.IsLast = false
	case 1:
		f.IsLast = true
	default:
		return Frame{}, nil, errors.New("invalid is_last flag")
	}
	return f, buf[length+1:], nil
}

// ParseFrames decodes a DA payload into its frames. The payload must lead
// with the derivation version byte and contain at least one frame with no
// trailing bytes.
func ParseFrames(data []byte) ([]Frame, error) {
	if len(data) == 0 {
		return nil, errors.New("data array must not be empty")
	}
	if data[0] != DerivationVersion0 {
		return nil, fmt.Errorf("invalid derivation format byte: %d", data[0])
	}
	buf := data[1:]
	var frames []Frame
	for len(buf) > 0 {
		f, rest, err := unmarshalFrame(buf)
		if err != nil {
			return nil, fmt.Errorf("parse frame %d: %w", len(frames), err)
		}
		frames = append(frames, f)
		buf = rest
	}
	if len(frames) == 0 {
		return nil, errors.New("data array must contain at least one frame")
	}
	return frames, nil
}

// FrameQueue parses DA payloads into frames and yields them one at a time.
// Undecodable payloads are skipped: they can never become valid channels.
type FrameQueue struct {
	log    log.Logger
	prev   NextDataProvider
	frames []Frame
}

// NewFrameQueue creates the frame queue stage.
func NewFrameQueue(logger log.Logger, prev NextDataProvider) *FrameQueue {
	return &FrameQueue{log: logger, prev: prev}
}

// NextFrame returns the next frame, pulling DA payloads as needed.
func (q *FrameQueue) NextFrame() (Frame, error) {
	for len(q.frames) == 0 {
		data, err := q.prev.NextData()
		if err != nil {
			return Frame{}, err
		}
		frames, err := ParseFrames(data)
		if err != nil {
			q.log.Warn("Failed to parse frames", "origin", q.prev.Origin().Number, "err", err)
			continue
		}
		q.frames = frames
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	return f, nil
}

// Origin implements OriginProvider.
func (q *FrameQueue) Origin() eth.BlockInfo {
	return q.prev.Origin()
}

// Reset implements ResettableStage.
func (q *FrameQueue) Reset(base eth.BlockInfo, cfg rollup.SystemConfig) error {
	q.frames = nil
	return nil
}
