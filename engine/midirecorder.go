package engine

import (
	"sync"
	"sync/atomic"

	"github.com/kaiku-daw/kaiku"
)

// MIDIRecorder captures live note events relative to the playhead position at
// record start. Events arrive from the MIDI driver thread, so the event
// buffer is mutex guarded; the audio thread never touches it.
type MIDIRecorder struct {
	playhead *atomic.Int64

	mu        sync.Mutex
	recording bool
	start     int64
	events    []kaiku.MIDIEvent
	tempo     float64
	division  int
	quantize  int64 // grid in samples, 0 = off
}

func NewMIDIRecorder(playhead *atomic.Int64) *MIDIRecorder {
	return &MIDIRecorder{playhead: playhead, tempo: 120}
}

func (m *MIDIRecorder) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recording {
		return ErrAlreadyRecording
	}
	m.start = m.playhead.Load()
	m.events = m.events[:0]
	m.recording = true
	return nil
}

// Stop ends the capture and returns the events as a clip, quantized when a
// grid is set. Returns nil when no events were captured.
func (m *MIDIRecorder) Stop() (*kaiku.MIDIClip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.recording {
		return nil, ErrNotRecording
	}
	m.recording = false
	if len(m.events) == 0 {
		return nil, nil
	}
	clip := kaiku.MIDIClipFromEvents(m.events)
	if m.quantize > 0 {
		clip = clip.Quantized(m.quantize)
	}
	return clip, nil
}

// RecordEvent stores one event, timestamped by the current playhead. Events
// arriving while not recording are dropped.
func (m *MIDIRecorder) RecordEvent(on bool, note, velocity byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.recording {
		return
	}
	t := m.playhead.Load() - m.start
	if t < 0 {
		t = 0
	}
	m.events = append(m.events, kaiku.MIDIEvent{On: on, Note: note, Velocity: velocity, Time: t})
}

func (m *MIDIRecorder) Recording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recording
}

func (m *MIDIRecorder) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *MIDIRecorder) SetTempo(bpm float64) {
	if bpm < 20 {
		bpm = 20
	}
	if bpm > 300 {
		bpm = 300
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tempo = bpm
	if m.quantize > 0 {
		m.quantize = m.gridSamples()
	}
}

// SetQuantize sets the snap grid as a note division (4 = quarter, 16 =
// sixteenth); 0 disables quantization.
func (m *MIDIRecorder) SetQuantize(division int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if division <= 0 {
		m.quantize = 0
		return
	}
	m.division = division
	m.quantize = m.gridSamples()
}

func (m *MIDIRecorder) gridSamples() int64 {
	samplesPerBeat := 60 / m.tempo * kaiku.SampleRate
	div := m.division
	if div <= 0 {
		div = 16
	}
	// a beat is a quarter note, so a 1/div note spans 4/div beats
	return int64(samplesPerBeat * 4 / float64(div))
}
