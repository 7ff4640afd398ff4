package link

/*------------------------------------------------------------------
 *
 * Purpose: Activate an output line for push-to-talk while a block is
 *	being transmitted.
 *
 * Description: This link is half-duplex: the local side must not try
 *	to decode its own transmission, and the far side must not begin
 *	sending while we're keyed up. A GPIO line is the simplest way to
 *	drive a radio or audio-interface PTT input from a single-board
 *	computer; go-gpiocdev talks to the kernel's gpiod character device
 *	interface rather than the legacy sysfs one.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// PTTController keys and unkeys a transmitter around a block send.
type PTTController interface {
	Key() error
	Unkey() error
	Close() error
}

// NullPTT is the default when no GPIO line is configured: a no-op that
// lets the session loop run against a loopback modem or a sound card
// wired in VOX mode.
type NullPTT struct{}

func (NullPTT) Key() error   { return nil }
func (NullPTT) Unkey() error { return nil }
func (NullPTT) Close() error { return nil }

// GPIOPTT drives a single gpiod output line, active-high.
type GPIOPTT struct {
	line *gpiocdev.Line
}

// OpenGPIOPTT requests offset on chip (e.g. "gpiochip0") as an output,
// initially unkeyed (logic low).
func OpenGPIOPTT(chip string, offset int) (*GPIOPTT, error) {
	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("%w: request ptt line %s:%d: %v", ErrTransportFatal, chip, offset, err)
	}

	return &GPIOPTT{line: line}, nil
}

// Key drives the line high.
func (p *GPIOPTT) Key() error {
	if err := p.line.SetValue(1); err != nil {
		return fmt.Errorf("ptt key: %w", err)
	}

	return nil
}

// Unkey drives the line low.
func (p *GPIOPTT) Unkey() error {
	if err := p.line.SetValue(0); err != nil {
		return fmt.Errorf("ptt unkey: %w", err)
	}

	return nil
}

// Close releases the requested line, unkeying first.
func (p *GPIOPTT) Close() error {
	_ = p.line.SetValue(0)
	return p.line.Close()
}
