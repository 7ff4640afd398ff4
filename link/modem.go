package link

/*------------------------------------------------------------------
 *
 * Purpose: Modem abstraction — the session loop never touches audio
 *	samples directly, only encoded/decoded byte blocks. This keeps the
 *	chunking/reassembly/retransmission logic (and its tests) entirely
 *	free of sound-card and DSP concerns.
 *
 *------------------------------------------------------------------*/

import "fmt"

// Modem turns outbound payload bytes into a transmittable audio-frame
// block, and exposes whatever it has managed to demodulate from the
// incoming audio stream via Poll. Poll reports ok=false when nothing
// has completed demodulating yet — the caller should treat that as
// "nothing received this tick", not as ErrCorruptInput; the wire-frame
// parser is what raises ErrCorruptInput once bytes are handed to it.
type Modem interface {
	Encode(payload []byte, protocolID int, volume int) ([]byte, error)
	Poll() ([]byte, bool)
}

// LoopbackModem is a test double: Encode wraps payload in a tiny framing
// envelope carrying protocolID, and Decode unwraps it, so a session can
// be exercised end to end with no audio hardware. It drops frames whose
// protocolID doesn't match Filter, approximating a real modem ignoring
// traffic on another protocol id.
type LoopbackModem struct {
	Filter int // 0 means accept any protocol id

	// queue holds encoded blocks waiting to be "received" by Poll; a
	// pair built by NewLoopbackPair shares one queue.
	queue *[][]byte
}

// NewLoopbackModem builds a standalone loopback modem with its own
// internal queue: every Encode is immediately Decode-able by the same
// instance, useful for single-sided unit tests.
func NewLoopbackModem() *LoopbackModem {
	q := make([][]byte, 0)
	return &LoopbackModem{queue: &q}
}

// NewLoopbackPair builds two LoopbackModems sharing a queue, so frames
// encoded on one side are received by Poll on the other, modelling a
// half-duplex acoustic link between two session loops in tests.
func NewLoopbackPair() (a, b *LoopbackModem) {
	q := make([][]byte, 0)
	return &LoopbackModem{queue: &q}, &LoopbackModem{queue: &q}
}

const loopbackEnvelopeLen = 2

// Encode prefixes payload with a 2-byte little-endian protocol id and
// appends it to the shared queue.
func (m *LoopbackModem) Encode(payload []byte, protocolID int, volume int) ([]byte, error) {
	if protocolID < 0 || protocolID > 0xFFFF {
		return nil, fmt.Errorf("%w: protocol id %d out of range", ErrTransportFatal, protocolID)
	}

	block := make([]byte, loopbackEnvelopeLen+len(payload))
	block[0] = byte(protocolID & 0xFF)
	block[1] = byte((protocolID >> 8) & 0xFF)
	copy(block[loopbackEnvelopeLen:], payload)

	*m.queue = append(*m.queue, block)

	return block, nil
}

// Decode pops the oldest queued block, if any, skipping ones that don't
// match Filter. Returns ok=false when the queue is empty.
func (m *LoopbackModem) Decode(block []byte) ([]byte, bool) {
	if len(block) < loopbackEnvelopeLen {
		return nil, false
	}

	protocolID := int(block[0]) | int(block[1])<<8
	if m.Filter != 0 && protocolID != m.Filter {
		return nil, false
	}

	return block[loopbackEnvelopeLen:], true
}

// Poll pops and decodes the next queued block addressed to m.Filter (or
// any protocol id, if Filter is zero), skipping and discarding anything
// that doesn't match.
func (m *LoopbackModem) Poll() ([]byte, bool) {
	q := *m.queue

	for len(q) > 0 {
		block := q[0]
		q = q[1:]
		*m.queue = q

		if payload, ok := m.Decode(block); ok {
			return payload, true
		}
	}

	return nil, false
}
