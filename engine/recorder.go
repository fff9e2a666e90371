package engine

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kaiku-daw/kaiku"
)

// RecState is the recorder's state machine position.
type RecState int32

const (
	RecIdle RecState = iota
	RecCountingIn
	RecRecording
)

func (s RecState) String() string {
	switch s {
	case RecCountingIn:
		return "counting-in"
	case RecRecording:
		return "recording"
	}
	return "idle"
}

var (
	ErrAlreadyRecording = errors.New("already recording or counting in")
	ErrNotRecording     = errors.New("not recording")
)

// Metronome click: a short sine burst with a squared decay, higher pitched on
// the downbeat.
const (
	clickSamples    = 4000 // ~80 ms at 48 kHz
	clickDownbeatHz = 1200
	clickBeatHz     = 800
	clickAmplitude  = 0.6
)

// Recorder captures live input into a stereo buffer and generates the
// metronome click. Its per-frame processing runs inside the audio callback
// for every output frame, playing or not, so the metronome keeps time
// independently of the transport. Everything the callback touches is an
// atomic or taken with a try-lock.
type Recorder struct {
	state         atomic.Int32
	sampleCounter atomic.Int64
	countInBars   atomic.Int32
	tempoBits     atomic.Uint64 // float64 BPM
	timeSignature atomic.Int32
	metronome     atomic.Bool

	mu      sync.Mutex
	samples []float32 // interleaved stereo capture
}

func NewRecorder() *Recorder {
	r := &Recorder{}
	r.countInBars.Store(2)
	r.timeSignature.Store(4)
	r.metronome.Store(true)
	r.setTempoBits(120)
	return r
}

func (r *Recorder) State() RecState { return RecState(r.state.Load()) }

// StartRecording clears the previous capture and enters CountingIn, or
// Recording directly when count-in is zero bars.
func (r *Recorder) StartRecording() error {
	if RecState(r.state.Load()) != RecIdle {
		return ErrAlreadyRecording
	}
	r.mu.Lock()
	r.samples = r.samples[:0]
	r.mu.Unlock()
	r.sampleCounter.Store(0)
	if r.countInBars.Load() > 0 {
		r.state.Store(int32(RecCountingIn))
	} else {
		r.state.Store(int32(RecRecording))
	}
	return nil
}

// StopRecording returns the captured audio as a clip, or nil when nothing
// was captured (e.g. stopped during count-in).
func (r *Recorder) StopRecording() (*kaiku.Clip, error) {
	if RecState(r.state.Load()) == RecIdle {
		return nil, ErrNotRecording
	}
	r.state.Store(int32(RecIdle))
	r.mu.Lock()
	samples := make([]float32, len(r.samples))
	copy(samples, r.samples)
	r.mu.Unlock()
	if len(samples) == 0 {
		return nil, nil
	}
	path := fmt.Sprintf("recorded_%d.wav", time.Now().Unix())
	return kaiku.NewClip(samples, kaiku.NumChannels, kaiku.SampleRate, path), nil
}

// ProcessFrame handles one output frame: it captures the input pair when
// recording, advances the beat counter, and returns the metronome sample for
// both channels. playing reports whether the transport is running; the beat
// counter only advances while playing or recording so a stopped metronome
// stays on the downbeat.
func (r *Recorder) ProcessFrame(inL, inR float32, playing bool) float32 {
	state := RecState(r.state.Load())
	var sampleIdx int64
	if playing || state != RecIdle {
		sampleIdx = r.sampleCounter.Add(1) - 1
	} else {
		sampleIdx = r.sampleCounter.Load()
	}

	tempo := r.Tempo()
	timeSig := int64(r.timeSignature.Load())
	samplesPerBeat := int64(60 / tempo * kaiku.SampleRate)
	samplesPerBar := samplesPerBeat * timeSig

	var click float32
	if r.metronome.Load() {
		positionInBar := sampleIdx % samplesPerBar
		beatInBar := positionInBar / samplesPerBeat
		positionInBeat := positionInBar % samplesPerBeat
		if positionInBeat < clickSamples {
			t := float64(positionInBeat) / kaiku.SampleRate
			freq := float64(clickBeatHz)
			if beatInBar == 0 {
				freq = clickDownbeatHz
			}
			env := 1 - float32(positionInBeat)/clickSamples
			env *= env
			click = float32(math.Sin(2*math.Pi*freq*t)) * clickAmplitude * env
		}
	}

	switch state {
	case RecCountingIn:
		countInSamples := samplesPerBar * int64(r.countInBars.Load())
		if sampleIdx >= countInSamples {
			r.state.Store(int32(RecRecording))
			r.sampleCounter.Store(0)
		}
	case RecRecording:
		// capture under try-lock; a contended frame is dropped rather
		// than blocking the callback
		if r.mu.TryLock() {
			r.samples = append(r.samples, inL, inR)
			r.mu.Unlock()
		}
	}
	return click
}

// ResetMetronome zeroes the beat counter so the next play starts the grid on
// the downbeat. Called on transport stop.
func (r *Recorder) ResetMetronome() {
	r.sampleCounter.Store(0)
}

func (r *Recorder) SetTempo(bpm float64) {
	if bpm < 20 {
		bpm = 20
	}
	if bpm > 300 {
		bpm = 300
	}
	r.setTempoBits(bpm)
}

func (r *Recorder) Tempo() float64 {
	return math.Float64frombits(r.tempoBits.Load())
}

func (r *Recorder) setTempoBits(bpm float64) {
	r.tempoBits.Store(math.Float64bits(bpm))
}

func (r *Recorder) SetCountInBars(bars int) {
	if bars < 0 {
		bars = 0
	}
	r.countInBars.Store(int32(bars))
}

func (r *Recorder) CountInBars() int { return int(r.countInBars.Load()) }

// SetTimeSignature sets the beats per bar (the numerator; the grid is beat
// based so the denominator does not matter here).
func (r *Recorder) SetTimeSignature(beatsPerBar int) {
	if beatsPerBar < 1 {
		beatsPerBar = 1
	}
	r.timeSignature.Store(int32(beatsPerBar))
}

func (r *Recorder) TimeSignature() int { return int(r.timeSignature.Load()) }

func (r *Recorder) SetMetronomeEnabled(on bool) { r.metronome.Store(on) }
func (r *Recorder) MetronomeEnabled() bool      { return r.metronome.Load() }

// RecordedSamples returns the number of captured interleaved samples so far.
func (r *Recorder) RecordedSamples() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// RecordedDuration returns the captured length in seconds.
func (r *Recorder) RecordedDuration() float64 {
	return float64(r.RecordedSamples()/kaiku.NumChannels) / kaiku.SampleRate
}
