// Package synth implements the built-in per-track subtractive synthesizer:
// dual detunable oscillators into a resonant biquad filter, shaped by a
// linear ADSR envelope, sixteen voices per track.
package synth

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/kaiku-daw/kaiku"
)

// MaxVoices is the polyphony limit per track synth.
const MaxVoices = 16

type (
	// Oscillator selects the waveform of one oscillator.
	Oscillator int

	// FilterType selects the response of the voice filter.
	FilterType int

	envelopeStage int
)

const (
	Sine Oscillator = iota
	Saw
	Square
	Triangle
)

const (
	LowPass FilterType = iota
	HighPass
	BandPass
)

const (
	stageIdle envelopeStage = iota
	stageAttack
	stageDecay
	stageSustain
	stageRelease
)

func (o Oscillator) String() string {
	switch o {
	case Sine:
		return "sine"
	case Saw:
		return "saw"
	case Square:
		return "square"
	case Triangle:
		return "triangle"
	}
	return "sine"
}

// ParseOscillator maps a waveform name to an Oscillator, defaulting to sine.
func ParseOscillator(s string) Oscillator {
	switch strings.ToLower(s) {
	case "saw":
		return Saw
	case "square":
		return Square
	case "triangle":
		return Triangle
	}
	return Sine
}

func (f FilterType) String() string {
	switch f {
	case HighPass:
		return "highpass"
	case BandPass:
		return "bandpass"
	}
	return "lowpass"
}

// ParseFilterType maps a filter name to a FilterType, defaulting to lowpass.
func ParseFilterType(s string) FilterType {
	switch strings.ToLower(s) {
	case "highpass":
		return HighPass
	case "bandpass":
		return BandPass
	}
	return LowPass
}

func waveform(o Oscillator, phase float32) float32 {
	switch o {
	case Sine:
		return float32(math.Sin(float64(phase) * 2 * math.Pi))
	case Saw:
		return 2*phase - 1
	case Square:
		if phase < 0.5 {
			return 1
		}
		return -1
	case Triangle:
		return 4*float32(math.Abs(float64(phase-0.5))) - 1
	}
	return 0
}

// EnvelopeParams are the ADSR times in seconds, with sustain as a level in
// 0..1.
type EnvelopeParams struct {
	Attack  float32
	Decay   float32
	Sustain float32
	Release float32
}

func DefaultEnvelope() EnvelopeParams {
	return EnvelopeParams{Attack: 0.01, Decay: 0.1, Sustain: 0.7, Release: 0.2}
}

// envelope is a linear ADSR generator. Time counts samples spent in the
// current stage; release fades from the level at note-off and ends when the
// level falls below 0.0001.
type envelope struct {
	params EnvelopeParams
	stage  envelopeStage
	level  float32
	time   float32
}

func (e *envelope) noteOn() {
	e.stage = stageAttack
	e.time = 0
}

func (e *envelope) noteOff() {
	e.stage = stageRelease
	e.time = 0
}

func (e *envelope) active() bool { return e.stage != stageIdle }

func (e *envelope) process() float32 {
	switch e.stage {
	case stageIdle:
		e.level = 0
	case stageAttack:
		attackSamples := e.params.Attack * kaiku.SampleRate
		if attackSamples > 0 {
			e.level = e.time / attackSamples
			if e.level >= 1 {
				e.level = 1
				e.stage = stageDecay
				e.time = 0
			}
		} else {
			e.level = 1
			e.stage = stageDecay
			e.time = 0
		}
	case stageDecay:
		decaySamples := e.params.Decay * kaiku.SampleRate
		if decaySamples > 0 {
			e.level = 1 - e.time/decaySamples*(1-e.params.Sustain)
			if e.level <= e.params.Sustain {
				e.level = e.params.Sustain
				e.stage = stageSustain
			}
		} else {
			e.level = e.params.Sustain
			e.stage = stageSustain
		}
	case stageSustain:
		e.level = e.params.Sustain
	case stageRelease:
		releaseSamples := e.params.Release * kaiku.SampleRate
		if releaseSamples > 0 {
			e.level *= 1 - e.time/releaseSamples
			if e.level <= 0.0001 {
				e.level = 0
				e.stage = stageIdle
			}
		} else {
			e.level = 0
			e.stage = stageIdle
		}
	}
	e.time++
	if e.level < 0 {
		return 0
	}
	if e.level > 1 {
		return 1
	}
	return e.level
}

// dualOscillator mixes two free-running oscillators, each detuned in cents
// from the voice frequency.
type dualOscillator struct {
	osc1Type, osc2Type     Oscillator
	osc1Level, osc2Level   float32
	osc1Detune, osc2Detune float32
	phase1, phase2         float32
	frequency              float32
}

func (d *dualOscillator) resetPhase() {
	d.phase1, d.phase2 = 0, 0
}

func (d *dualOscillator) process() float32 {
	freq1 := d.frequency * detuneRatio(d.osc1Detune)
	sample1 := waveform(d.osc1Type, d.phase1)
	d.phase1 += freq1 / kaiku.SampleRate
	if d.phase1 >= 1 {
		d.phase1 -= 1
	}
	freq2 := d.frequency * detuneRatio(d.osc2Detune)
	sample2 := waveform(d.osc2Type, d.phase2)
	d.phase2 += freq2 / kaiku.SampleRate
	if d.phase2 >= 1 {
		d.phase2 -= 1
	}
	return sample1*d.osc1Level + sample2*d.osc2Level
}

func detuneRatio(cents float32) float32 {
	return float32(math.Pow(2, float64(cents)/1200))
}

// filter is a resonant biquad with normalized cutoff and resonance controls.
// Cutoff maps exponentially onto 50 Hz..10 kHz, capped below Nyquist;
// resonance maps onto Q 0.5..10.
type filter struct {
	typ       FilterType
	cutoff    float32
	resonance float32

	b0, b1, b2, a1, a2 float32
	x1, x2, y1, y2     float32
}

func newFilter() filter {
	f := filter{typ: LowPass, cutoff: 0.8, resonance: 0.2}
	f.updateCoefficients()
	return f
}

func (f *filter) setType(t FilterType) {
	f.typ = t
	f.updateCoefficients()
}

func (f *filter) setCutoff(c float32) {
	f.cutoff = clamp01(c)
	f.updateCoefficients()
}

func (f *filter) setResonance(r float32) {
	f.resonance = clamp01(r)
	f.updateCoefficients()
}

func (f *filter) updateCoefficients() {
	freq := 50 * math.Exp(5.3*float64(f.cutoff))
	if freq > kaiku.SampleRate*0.49 {
		freq = kaiku.SampleRate * 0.49
	}
	q := 0.5 + float64(f.resonance)*9.5

	omega := 2 * math.Pi * freq / kaiku.SampleRate
	sinOmega, cosOmega := math.Sincos(omega)
	alpha := sinOmega / (2 * q)

	var b0, b1, b2 float64
	switch f.typ {
	case LowPass:
		b0 = (1 - cosOmega) / 2
		b1 = 1 - cosOmega
		b2 = (1 - cosOmega) / 2
	case HighPass:
		b0 = (1 + cosOmega) / 2
		b1 = -(1 + cosOmega)
		b2 = (1 + cosOmega) / 2
	case BandPass:
		b0 = alpha
		b1 = 0
		b2 = -alpha
	}
	a0 := 1 + alpha
	f.b0 = float32(b0 / a0)
	f.b1 = float32(b1 / a0)
	f.b2 = float32(b2 / a0)
	f.a1 = float32(-2 * cosOmega / a0)
	f.a2 = float32((1 - alpha) / a0)
}

func (f *filter) process(in float32) float32 {
	out := f.b0*in + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, in
	f.y2, f.y1 = f.y1, out
	return out
}

// voice is one note: oscillator pair, envelope and filter.
type voice struct {
	osc    dualOscillator
	env    envelope
	filt   filter
	note   byte
	active bool
}

func (v *voice) noteOn(note byte) {
	v.osc.frequency = NoteFrequency(note)
	v.osc.resetPhase()
	v.env.noteOn()
	v.note = note
	v.active = true
}

func (v *voice) noteOff() {
	v.env.noteOff()
}

func (v *voice) process() float32 {
	if !v.env.active() {
		v.active = false
		return 0
	}
	out := v.osc.process() * v.env.process()
	return v.filt.process(out)
}

// NoteFrequency converts a MIDI note number to Hz, A4 (note 69) = 440 Hz.
func NoteFrequency(note byte) float32 {
	return float32(440 * math.Pow(2, (float64(note)-69)/12))
}

// TrackSynth is a polyphonic synthesizer bound to one track. Parameter
// changes apply to every voice, sounding notes included. The embedded mutex
// follows the effect handle convention: the audio thread takes it with
// TryLock for the whole buffer, control threads lock briefly around edits.
type TrackSynth struct {
	sync.Mutex

	voices [MaxVoices]voice

	osc1Type, osc2Type     Oscillator
	osc1Level, osc2Level   float32
	osc1Detune, osc2Detune float32
	filterType             FilterType
	filterCutoff           float32
	filterResonance        float32
	envelopeParams         EnvelopeParams
}

func New() *TrackSynth {
	s := &TrackSynth{
		osc1Type:        Saw,
		osc1Level:       0.8,
		osc1Detune:      0,
		osc2Type:        Square,
		osc2Level:       0.4,
		osc2Detune:      7,
		filterType:      LowPass,
		filterCutoff:    0.8,
		filterResonance: 0.2,
		envelopeParams:  DefaultEnvelope(),
	}
	for i := range s.voices {
		s.voices[i] = voice{
			osc: dualOscillator{
				osc1Type: s.osc1Type, osc2Type: s.osc2Type,
				osc1Level: s.osc1Level, osc2Level: s.osc2Level,
				osc1Detune: s.osc1Detune, osc2Detune: s.osc2Detune,
				frequency: 440,
			},
			env:  envelope{params: s.envelopeParams},
			filt: newFilter(),
		}
	}
	return s
}

// NoteOn allocates a voice for the note, preferring an idle voice and
// stealing voice 0 when all sixteen are sounding. The caller must hold the
// lock.
func (s *TrackSynth) NoteOn(note, velocity byte) {
	v := &s.voices[0]
	for i := range s.voices {
		if !s.voices[i].active {
			v = &s.voices[i]
			break
		}
	}
	v.noteOn(note)
}

// NoteOff releases every voice sounding the note. The caller must hold the
// lock.
func (s *TrackSynth) NoteOff(note byte) {
	for i := range s.voices {
		if s.voices[i].active && s.voices[i].note == note {
			s.voices[i].noteOff()
		}
	}
}

// AllNotesOff releases every sounding voice. The caller must hold the lock.
func (s *TrackSynth) AllNotesOff() {
	for i := range s.voices {
		if s.voices[i].active {
			s.voices[i].noteOff()
		}
	}
}

// ProcessSample mixes all active voices into one mono sample, scaled by a
// fixed 0.5 headroom gain. The caller must hold the lock.
func (s *TrackSynth) ProcessSample() float32 {
	var out float32
	for i := range s.voices {
		if s.voices[i].active {
			out += s.voices[i].process()
		}
	}
	return out * 0.5
}

// Active reports whether any voice is sounding. The caller must hold the
// lock.
func (s *TrackSynth) Active() bool {
	for i := range s.voices {
		if s.voices[i].active {
			return true
		}
	}
	return false
}

// ActiveVoiceCount returns the number of sounding voices.
func (s *TrackSynth) ActiveVoiceCount() int {
	s.Lock()
	defer s.Unlock()
	n := 0
	for i := range s.voices {
		if s.voices[i].active {
			n++
		}
	}
	return n
}

// SetParameter updates one named synth parameter from its string value.
// Waveform and filter type parameters take names, the rest take decimal
// floats. Values outside a parameter's range are clamped.
func (s *TrackSynth) SetParameter(key, value string) error {
	s.Lock()
	defer s.Unlock()
	switch key {
	case "osc1_type":
		s.osc1Type = ParseOscillator(value)
		for i := range s.voices {
			s.voices[i].osc.osc1Type = s.osc1Type
		}
	case "osc2_type":
		s.osc2Type = ParseOscillator(value)
		for i := range s.voices {
			s.voices[i].osc.osc2Type = s.osc2Type
		}
	case "filter_type":
		s.filterType = ParseFilterType(value)
		for i := range s.voices {
			s.voices[i].filt.setType(s.filterType)
		}
	default:
		val, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return fmt.Errorf("synth parameter %s: %w", key, err)
		}
		return s.setFloatParameter(key, float32(val))
	}
	return nil
}

func (s *TrackSynth) setFloatParameter(key string, val float32) error {
	switch key {
	case "osc1_level":
		s.osc1Level = clamp01(val)
		for i := range s.voices {
			s.voices[i].osc.osc1Level = s.osc1Level
		}
	case "osc2_level":
		s.osc2Level = clamp01(val)
		for i := range s.voices {
			s.voices[i].osc.osc2Level = s.osc2Level
		}
	case "osc1_detune":
		s.osc1Detune = clampRange(val, -50, 50)
		for i := range s.voices {
			s.voices[i].osc.osc1Detune = s.osc1Detune
		}
	case "osc2_detune":
		s.osc2Detune = clampRange(val, -50, 50)
		for i := range s.voices {
			s.voices[i].osc.osc2Detune = s.osc2Detune
		}
	case "filter_cutoff":
		s.filterCutoff = val
		for i := range s.voices {
			s.voices[i].filt.setCutoff(s.filterCutoff)
		}
	case "filter_resonance":
		s.filterResonance = val
		for i := range s.voices {
			s.voices[i].filt.setResonance(s.filterResonance)
		}
	case "env_attack":
		s.envelopeParams.Attack = maxf(val, 0.001)
		s.applyEnvelope()
	case "env_decay":
		s.envelopeParams.Decay = maxf(val, 0.001)
		s.applyEnvelope()
	case "env_sustain":
		s.envelopeParams.Sustain = clamp01(val)
		s.applyEnvelope()
	case "env_release":
		s.envelopeParams.Release = maxf(val, 0.001)
		s.applyEnvelope()
	default:
		return fmt.Errorf("unknown synth parameter: %q", key)
	}
	return nil
}

func (s *TrackSynth) applyEnvelope() {
	for i := range s.voices {
		s.voices[i].env.params = s.envelopeParams
	}
}

// Parameters returns the shared parameter set as strings, in the same
// key/value form SetParameter accepts.
func (s *TrackSynth) Parameters() map[string]string {
	s.Lock()
	defer s.Unlock()
	return map[string]string{
		"osc1_type":        s.osc1Type.String(),
		"osc1_level":       formatFloat(s.osc1Level),
		"osc1_detune":      formatFloat(s.osc1Detune),
		"osc2_type":        s.osc2Type.String(),
		"osc2_level":       formatFloat(s.osc2Level),
		"osc2_detune":      formatFloat(s.osc2Detune),
		"filter_type":      s.filterType.String(),
		"filter_cutoff":    formatFloat(s.filterCutoff),
		"filter_resonance": formatFloat(s.filterResonance),
		"env_attack":       formatFloat(s.envelopeParams.Attack),
		"env_decay":        formatFloat(s.envelopeParams.Decay),
		"env_sustain":      formatFloat(s.envelopeParams.Sustain),
		"env_release":      formatFloat(s.envelopeParams.Release),
	}
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

func clamp01(v float32) float32 { return clampRange(v, 0, 1) }

func clampRange(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxf(v, lo float32) float32 {
	if v < lo {
		return lo
	}
	return v
}
