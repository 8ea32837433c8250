package derive

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// pump steps the bank until it emits data or runs out of input.
func pump(t *testing.T, bank *ChannelBank) ([]byte, error) {
	t.Helper()
	for {
		data, err := bank.NextData()
		if errors.Is(err, ErrNotEnoughData) {
			continue
		}
		return data, err
	}
}

func TestChannelBankAssemblesFrames(t *testing.T) {
	prev := &mockFrameProvider{
		origin: l1Block(100, 1000),
		frames: []Frame{
			{ID: frameID(1), FrameNumber: 0, Data: []byte("hello ")},
			{ID: frameID(1), FrameNumber: 1, Data: []byte("world"), IsLast: true},
		},
	}
	bank := NewChannelBank(testLogger(), testConfig(), prev)

	data, err := pump(t, bank)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), data)
}

func TestChannelBankFirstFrameWins(t *testing.T) {
	prev := &mockFrameProvider{
		origin: l1Block(100, 1000),
		frames: []Frame{
			{ID: frameID(1), FrameNumber: 0, Data: []byte("first")},
			{ID: frameID(1), FrameNumber: 0, Data: []byte("dup")},
			{ID: frameID(1), FrameNumber: 1, Data: []byte("!"), IsLast: true},
		},
	}
	bank := NewChannelBank(testLogger(), testConfig(), prev)

	data, err := pump(t, bank)
	require.NoError(t, err)
	require.Equal(t, []byte("first!"), data)
}

func TestChannelBankFIFOByFirstFrame(t *testing.T) {
	prev := &mockFrameProvider{
		origin: l1Block(100, 1000),
		frames: []Frame{
			// Channel 2 opens first but closes last; it must still be read
			// first.
			{ID: frameID(2), FrameNumber: 0, Data: []byte("two")},
			{ID: frameID(3), FrameNumber: 0, Data: []byte("three"), IsLast: true},
			{ID: frameID(2), FrameNumber: 1, Data: []byte("!"), IsLast: true},
		},
	}
	bank := NewChannelBank(testLogger(), testConfig(), prev)

	first, err := pump(t, bank)
	require.NoError(t, err)
	require.Equal(t, []byte("two!"), first)

	second, err := pump(t, bank)
	require.NoError(t, err)
	require.Equal(t, []byte("three"), second)
}

func TestChannelBankTimeout(t *testing.T) {
	cfg := testConfig()
	prev := &mockFrameProvider{
		origin: l1Block(100, 1000),
		frames: []Frame{
			{ID: frameID(1), FrameNumber: 0, Data: []byte("stale")},
		},
	}
	bank := NewChannelBank(testLogger(), cfg, prev)

	// Open the channel at block 100.
	_, err := bank.NextData()
	require.ErrorIs(t, err, ErrNotEnoughData)

	// Move the origin past the channel timeout; the closing frame arrives
	// too late and the channel is dropped.
	prev.origin = l1Block(100+cfg.ChannelTimeout+1, 2000)
	prev.frames = []Frame{{ID: frameID(1), FrameNumber: 1, Data: []byte("!"), IsLast: true}}
	_, err = pump(t, bank)
	require.ErrorIs(t, err, ErrEof)
}

func TestChannelBankFramePastEndDropped(t *testing.T) {
	prev := &mockFrameProvider{
		origin: l1Block(100, 1000),
		frames: []Frame{
			{ID: frameID(1), FrameNumber: 0, Data: []byte("data"), IsLast: true},
			{ID: frameID(1), FrameNumber: 1, Data: []byte("late")},
		},
	}
	bank := NewChannelBank(testLogger(), testConfig(), prev)

	data, err := pump(t, bank)
	require.NoError(t, err)
	require.Equal(t, []byte("data"), data)
}
