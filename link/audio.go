package link

/*------------------------------------------------------------------
 *
 * Purpose: Audio I/O — the sound card side of the link, kept behind a
 *	narrow interface so the session loop and its tests never need a
 *	real sound card.
 *
 * Description: Mono float32 samples at 48 kHz. Input is read in small
 *	1024-sample bursts so the session loop can poll the modem often
 *	enough to catch the leading edge of a transmission; output is
 *	written in larger 4096-sample bursts since a keyed transmitter
 *	doesn't need to be serviced as eagerly.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

const (
	SampleRate       = 48000
	InputBufferSize  = 1024
	OutputBufferSize = 4096
)

// AudioIO is the sound card boundary: ReadInput blocks until one burst
// of samples is available, WriteOutput blocks until one burst has been
// queued for playback.
type AudioIO interface {
	ReadInput() ([]float32, error)
	WriteOutput(samples []float32) error
	Close() error
}

// Device describes one enumerated sound card endpoint, for --list.
type Device struct {
	Index          int
	Name           string
	MaxInputChans  int
	MaxOutputChans int
	IsDefaultIn    bool
	IsDefaultOut   bool
}

// ListDevices enumerates the sound cards portaudio can see. It
// initializes the library just long enough to enumerate, then tears it
// back down, so it can be called standalone (e.g. for --list) without
// an open stream.
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	defer portaudio.Terminate()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate audio devices: %w", err)
	}

	defIn, _ := portaudio.DefaultInputDevice()
	defOut, _ := portaudio.DefaultOutputDevice()

	out := make([]Device, 0, len(infos))

	for i, info := range infos {
		d := Device{
			Index:          i,
			Name:           info.Name,
			MaxInputChans:  info.MaxInputChannels,
			MaxOutputChans: info.MaxOutputChannels,
		}

		if defIn != nil && info.Name == defIn.Name {
			d.IsDefaultIn = true
		}

		if defOut != nil && info.Name == defOut.Name {
			d.IsDefaultOut = true
		}

		out = append(out, d)
	}

	return out, nil
}

// PortAudioIO is the real sound-card-backed AudioIO, built on
// gordonklaus/portaudio.
type PortAudioIO struct {
	stream  *portaudio.Stream
	inBuf   []float32
	outBuf  []float32
}

// OpenPortAudioIO initializes the portaudio library and opens a duplex
// stream on the given device indices (-1 selects the system default
// for that direction).
func OpenPortAudioIO(inputDevice, outputDevice int) (*PortAudioIO, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	inDev, err := resolveDevice(inputDevice, true)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	outDev, err := resolveDevice(outputDevice, false)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	a := &PortAudioIO{
		inBuf:  make([]float32, InputBufferSize),
		outBuf: make([]float32, OutputBufferSize),
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   inDev,
			Channels: 1,
			Latency:  inDev.DefaultLowInputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Device:   outDev,
			Channels: 1,
			Latency:  outDev.DefaultLowOutputLatency,
		},
		SampleRate:      SampleRate,
		FramesPerBuffer: InputBufferSize,
	}

	stream, err := portaudio.OpenStream(params, a.streamCallback)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open audio stream: %w", err)
	}

	a.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()

		return nil, fmt.Errorf("start audio stream: %w", err)
	}

	return a, nil
}

func resolveDevice(index int, input bool) (*portaudio.DeviceInfo, error) {
	if index < 0 {
		if input {
			return portaudio.DefaultInputDevice()
		}

		return portaudio.DefaultOutputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate audio devices: %w", err)
	}

	if index >= len(devices) {
		return nil, fmt.Errorf("%w: device index %d out of range", ErrTransportFatal, index)
	}

	return devices[index], nil
}

func (a *PortAudioIO) streamCallback(in, out []float32) {
	copy(a.inBuf, in)
	copy(out, a.outBuf)
}

// ReadInput returns the most recently captured burst of input samples.
func (a *PortAudioIO) ReadInput() ([]float32, error) {
	out := make([]float32, len(a.inBuf))
	copy(out, a.inBuf)

	return out, nil
}

// WriteOutput queues samples for playback on the next callback cycles.
func (a *PortAudioIO) WriteOutput(samples []float32) error {
	if len(samples) != len(a.outBuf) {
		buf := make([]float32, len(a.outBuf))
		copy(buf, samples)
		a.outBuf = buf

		return nil
	}

	copy(a.outBuf, samples)

	return nil
}

// Close stops the stream and tears down the portaudio library.
func (a *PortAudioIO) Close() error {
	if a.stream != nil {
		if err := a.stream.Close(); err != nil {
			portaudio.Terminate()
			return fmt.Errorf("close audio stream: %w", err)
		}
	}

	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("portaudio terminate: %w", err)
	}

	return nil
}
