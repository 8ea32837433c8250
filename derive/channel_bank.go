package derive

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/okx/fault-proof-client/eth"
	"github.com/okx/fault-proof-client/rollup"
)

// Channel assembles the frames of one channel id.
type Channel struct {
	id ChannelID
	// openBlock is the L1 block the first frame was seen in; the channel
	// times out relative to it.
	openBlock eth.BlockInfo

	inputs         map[uint16][]byte
	endFrameNumber uint16
	closed         bool
	size           uint64
}

// NewChannel opens a channel at the L1 block its first frame arrived in.
func NewChannel(id ChannelID, openBlock eth.BlockInfo) *Channel {
	return &Channel{id: id, openBlock: openBlock, inputs: make(map[uint16][]byte)}
}

// AddFrame ingests one frame. Duplicate frame numbers are rejected: the
// first frame wins. Frames past a closing frame are dropped.
func (c *Channel) AddFrame(frame Frame) error {
	if frame.ID != c.id {
		return fmt.Errorf("frame id %s does not match channel %s", frame.ID, c.id)
	}
	if _, ok := c.inputs[frame.FrameNumber]; ok {
		return fmt.Errorf("duplicate frame %d in channel %s", frame.FrameNumber, c.id)
	}
	if c.closed && frame.FrameNumber >= c.endFrameNumber {
		return fmt.Errorf("frame %d past the end of closed channel %s", frame.FrameNumber, c.id)
	}
	if frame.IsLast {
		if c.closed {
			return fmt.Errorf("channel %s already closed", c.id)
		}
		c.closed = true
		c.endFrameNumber = frame.FrameNumber
		// Drop any buffered frames past the end.
		for num := range c.inputs {
			if num > frame.FrameNumber {
				delete(c.inputs, num)
			}
		}
	}
	c.inputs[frame.FrameNumber] = frame.Data
	c.size += uint64(len(frame.Data))
	return nil
}

// IsReady reports whether the channel is closed with a contiguous frame set.
func (c *Channel) IsReady() bool {
	if !c.closed {
		return false
	}
	for i := uint16(0); ; i++ {
		if _, ok := c.inputs[i]; !ok {
			return false
		}
		if i == c.endFrameNumber {
			return true
		}
	}
}

// Reader concatenates the channel's frame data in frame order.
func (c *Channel) Reader() []byte {
	var buf bytes.Buffer
	for i := uint16(0); ; i++ {
		data, ok := c.inputs[i]
		if !ok {
			break
		}
		buf.Write(data)
		if c.closed && i == c.endFrameNumber {
			break
		}
	}
	return buf.Bytes()
}

// OpenBlock returns the L1 block the channel was opened in.
func (c *Channel) OpenBlock() eth.BlockInfo {
	return c.openBlock
}

// ChannelBank buffers channels until they complete, enforcing the channel
// timeout and FIFO ordering by first-frame L1 position.
type ChannelBank struct {
	log  log.Logger
	cfg  *rollup.Config
	prev NextFrameProvider

	channels     map[ChannelID]*Channel
	channelQueue []ChannelID
}

// NewChannelBank creates the channel bank stage.
func NewChannelBank(logger log.Logger, cfg *rollup.Config, prev NextFrameProvider) *ChannelBank {
	return &ChannelBank{
		log:      logger,
		cfg:      cfg,
		prev:     prev,
		channels: make(map[ChannelID]*Channel),
	}
}

// NextData returns the payload of the next complete channel in FIFO order,
// ingesting frames until one completes. Timed-out channels are dropped.
func (b *ChannelBank) NextData() ([]byte, error) {
	origin := b.prev.Origin()

	// Drop timed-out channels from the front of the queue.
	for len(b.channelQueue) > 0 {
		id := b.channelQueue[0]
		ch := b.channels[id]
		if ch.OpenBlock().Number+b.cfg.ChannelTimeout < origin.Number {
			b.log.Warn("Dropping timed-out channel", "channel", id, "open_block", ch.OpenBlock().Number)
			delete(b.channels, id)
			b.channelQueue = b.channelQueue[1:]
			continue
		}
		break
	}

	// FIFO: only the first channel may be read.
	if len(b.channelQueue) > 0 {
		id := b.channelQueue[0]
		ch := b.channels[id]
		if ch.IsReady() {
			data := ch.Reader()
			delete(b.channels, id)
			b.channelQueue = b.channelQueue[1:]
			return data, nil
		}
	}

	// Ingest the next frame.
	frame, err := b.prev.NextFrame()
	if err != nil {
		return nil, err
	}
	b.ingestFrame(frame)
	return nil, ErrNotEnoughData
}

// ingestFrame routes a frame into its channel, opening one if needed.
func (b *ChannelBank) ingestFrame(frame Frame) {
	origin := b.prev.Origin()
	ch, ok := b.channels[frame.ID]
	if !ok {
		ch = NewChannel(frame.ID, origin)
		b.channels[frame.ID] = ch
		b.channelQueue = append(b.channelQueue, frame.ID)
	}
	if ch.OpenBlock().Number+b.cfg.ChannelTimeout < origin.Number {
		b.log.Warn("Ignoring frame of timed-out channel", "channel", frame.ID)
		return
	}
	if err := ch.AddFrame(frame); err != nil {
		b.log.Warn("Failed to ingest frame", "channel", frame.ID, "frame", frame.FrameNumber, "err", err)
	}
}

// Origin implements OriginProvider.
func (b *ChannelBank) Origin() eth.BlockInfo {
	return b.prev.Origin()
}

// Reset implements ResettableStage.
func (b *ChannelBank) Reset(base eth.BlockInfo, cfg rollup.SystemConfig) error {
	b.channels = make(map[ChannelID]*Channel)
	b.channelQueue = nil
	return nil
}
