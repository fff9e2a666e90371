package engine_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/kaiku-daw/kaiku"
	"github.com/kaiku-daw/kaiku/engine"
)

func TestRecorderStateErrors(t *testing.T) {
	r := engine.NewRecorder()
	if _, err := r.StopRecording(); !errors.Is(err, engine.ErrNotRecording) {
		t.Errorf("stop while idle: %v", err)
	}
	if err := r.StartRecording(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.StartRecording(); !errors.Is(err, engine.ErrAlreadyRecording) {
		t.Errorf("double start: %v", err)
	}
}

func TestRecorderTempoClamp(t *testing.T) {
	r := engine.NewRecorder()
	r.SetTempo(5)
	if r.Tempo() != 20 {
		t.Errorf("tempo not clamped low: %v", r.Tempo())
	}
	r.SetTempo(1000)
	if r.Tempo() != 300 {
		t.Errorf("tempo not clamped high: %v", r.Tempo())
	}
	r.SetTempo(128)
	if r.Tempo() != 128 {
		t.Errorf("in-range tempo changed: %v", r.Tempo())
	}
}

func TestCountInTransition(t *testing.T) {
	r := engine.NewRecorder()
	r.SetMetronomeEnabled(false)
	r.SetCountInBars(1)
	// 120 BPM, 4/4: one bar is 4 * 24000 samples
	const barSamples = 4 * 24000
	if err := r.StartRecording(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if r.State() != engine.RecCountingIn {
		t.Fatalf("state after start = %v", r.State())
	}
	for i := 0; i < barSamples; i++ {
		r.ProcessFrame(0.5, 0.5, false)
		if r.State() != engine.RecCountingIn {
			t.Fatalf("count-in ended early at frame %d", i)
		}
	}
	r.ProcessFrame(0.5, 0.5, false)
	if r.State() != engine.RecRecording {
		t.Fatalf("state after count-in = %v", r.State())
	}
	// nothing must have been captured during the count-in
	if n := r.RecordedSamples(); n != 0 {
		t.Errorf("count-in captured %d samples", n)
	}
}

func TestRecordingRoundTripWithoutCountIn(t *testing.T) {
	r := engine.NewRecorder()
	r.SetMetronomeEnabled(false)
	r.SetCountInBars(0)
	if err := r.StartRecording(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if r.State() != engine.RecRecording {
		t.Fatalf("zero count-in did not start recording directly: %v", r.State())
	}
	const frames = 480
	for i := 0; i < frames; i++ {
		r.ProcessFrame(0.25, -0.25, false)
	}
	clip, err := r.StopRecording()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if clip == nil {
		t.Fatal("no clip returned")
	}
	if clip.Frames() != frames {
		t.Errorf("clip has %d frames, want %d", clip.Frames(), frames)
	}
	if clip.Channels() != kaiku.NumChannels || clip.SampleRate() != kaiku.SampleRate {
		t.Errorf("clip format %d ch %d Hz", clip.Channels(), clip.SampleRate())
	}
	if l, _ := clip.Sample(100, 0); l != 0.25 {
		t.Errorf("captured left sample = %v", l)
	}
	if rr, _ := clip.Sample(100, 1); rr != -0.25 {
		t.Errorf("captured right sample = %v", rr)
	}
	if !strings.HasPrefix(clip.Path(), "recorded_") {
		t.Errorf("clip path = %q", clip.Path())
	}
	if r.State() != engine.RecIdle {
		t.Error("recorder not idle after stop")
	}
}

func TestStopDuringCountInReturnsNoClip(t *testing.T) {
	r := engine.NewRecorder()
	r.SetCountInBars(2)
	r.StartRecording()
	for i := 0; i < 100; i++ {
		r.ProcessFrame(0.5, 0.5, false)
	}
	clip, err := r.StopRecording()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if clip != nil {
		t.Error("count-in produced a clip")
	}
}

func TestMetronomeClickOnTheBeat(t *testing.T) {
	r := engine.NewRecorder()
	var peak float32
	for i := 0; i < 4000; i++ {
		click := r.ProcessFrame(0, 0, true)
		if click > peak {
			peak = click
		}
	}
	if peak < 0.3 {
		t.Errorf("click peak = %v", peak)
	}
	// between the click burst and the next beat there is silence
	for i := 4000; i < 24000; i++ {
		if click := r.ProcessFrame(0, 0, true); click != 0 {
			t.Fatalf("click outside the burst window at sample %d: %v", i, click)
		}
	}
}

func TestMetronomeDisabled(t *testing.T) {
	r := engine.NewRecorder()
	r.SetMetronomeEnabled(false)
	for i := 0; i < 1000; i++ {
		if click := r.ProcessFrame(0, 0, true); click != 0 {
			t.Fatalf("disabled metronome clicked: %v", click)
		}
	}
}

func TestMetronomeCounterFrozenWhileIdle(t *testing.T) {
	r := engine.NewRecorder()
	// not playing, not recording: the beat counter must not advance, so the
	// click output stays at the downbeat's first sample (zero)
	for i := 0; i < 100; i++ {
		if click := r.ProcessFrame(0, 0, false); click != 0 {
			t.Fatalf("counter advanced while idle: click %v at call %d", click, i)
		}
	}
	// once playing, the burst unfolds
	r.ProcessFrame(0, 0, true)
	if click := r.ProcessFrame(0, 0, true); click == 0 {
		t.Error("counter did not advance while playing")
	}
}
