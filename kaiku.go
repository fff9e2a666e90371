package kaiku

// SampleRate is the fixed internal sample rate of the engine. All clips are
// resampled to this rate on load and all processing, mixing and export happens
// at this rate.
const SampleRate = 48000

// NumChannels is the number of output channels. The engine is stereo
// throughout; mono sources are duplicated to both channels when mixed.
const NumChannels = 2

type (
	// AudioBuffer is a buffer of stereo audio samples of variable length. The
	// length of the buffer is the number of frames; each frame is a [2]float32
	// holding the left and right channel samples.
	AudioBuffer [][2]float32

	// AudioContext is the audio device collaborator. It opens output streams
	// bound to the default output device. The callback is invoked by the
	// device at its own cadence and must fill the whole buffer every time
	// without blocking.
	AudioContext interface {
		OpenStream(callback func(buf AudioBuffer)) (OutputStream, error)
		Close() error
	}

	// OutputStream is a started audio output stream. Play and Pause control
	// whether the device keeps invoking the stream's callback; position
	// bookkeeping is entirely the engine's concern.
	OutputStream interface {
		Play() error
		Pause() error
		Close() error
	}

	// AudioInput provides live input samples for recording. ReadSamples is
	// polled once per output frame from the audio callback, so it must never
	// block; ok = false means no samples were available and the frame should
	// be treated as silence.
	AudioInput interface {
		ReadSamples(n int) (samples []float32, ok bool)
		Channels() int
	}

	// MIDIContext is the MIDI input device collaborator. Implementations
	// deliver note events to the callback given at construction time, from
	// their own driver goroutine.
	MIDIContext interface {
		InputDevices(yield func(MIDIDevice) bool)
		HasDeviceOpen() bool
		Close()
	}

	// MIDIDevice is a MIDI input device that can be opened for capture.
	// Opening a device closes the previously open one.
	MIDIDevice interface {
		Open() error
		String() string
	}
)

// Interleave writes buf into out as interleaved stereo samples. out must have
// room for 2*len(buf) values.
func Interleave(buf AudioBuffer, out []float32) {
	for i, frame := range buf {
		out[i*2] = frame[0]
		out[i*2+1] = frame[1]
	}
}

// FindMIDIDeviceByPrefix returns the first input device whose name starts
// with the given prefix.
func FindMIDIDeviceByPrefix(ctx MIDIContext, prefix string) (ret MIDIDevice, ok bool) {
	if prefix == "" {
		return nil, false
	}
	ctx.InputDevices(func(d MIDIDevice) bool {
		if len(d.String()) >= len(prefix) && d.String()[:len(prefix)] == prefix {
			ret, ok = d, true
			return false
		}
		return true
	})
	return ret, ok
}
