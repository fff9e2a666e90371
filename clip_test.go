package kaiku_test

import (
	"math"
	"testing"

	"github.com/kaiku-daw/kaiku"
)

func TestClipSampleBounds(t *testing.T) {
	clip := kaiku.NewClip([]float32{0.1, 0.2, 0.3, 0.4}, 2, 48000, "test.wav")
	if clip.Frames() != 2 {
		t.Fatalf("expected 2 frames, got %d", clip.Frames())
	}
	if v, ok := clip.Sample(1, 1); !ok || v != 0.4 {
		t.Errorf("Sample(1,1) = %v, %v", v, ok)
	}
	if _, ok := clip.Sample(2, 0); ok {
		t.Error("Sample past the end reported ok")
	}
	if _, ok := clip.Sample(-1, 0); ok {
		t.Error("Sample before the start reported ok")
	}
	if _, ok := clip.Sample(0, 2); ok {
		t.Error("Sample of a missing channel reported ok")
	}
}

func TestTimelineClipPlacement(t *testing.T) {
	samples := make([]float32, 2*48000) // 1 second stereo
	clip := kaiku.NewClip(samples, 2, 48000, "one.wav")
	tc := kaiku.TimelineClip{Clip: clip, StartTime: 2}
	if tc.End() != 3 {
		t.Errorf("End() = %v, want 3", tc.End())
	}
	if tc.ActiveAt(1.9) || !tc.ActiveAt(2) || !tc.ActiveAt(2.999) || tc.ActiveAt(3) {
		t.Error("ActiveAt window wrong")
	}
	if f := tc.FrameAt(2.5); f != 24000 {
		t.Errorf("FrameAt(2.5) = %d, want 24000", f)
	}
}

func TestTimelineClipTrim(t *testing.T) {
	samples := make([]float32, 2*48000)
	clip := kaiku.NewClip(samples, 2, 48000, "one.wav")
	tc := kaiku.TimelineClip{Clip: clip, StartTime: 1, Offset: 0.25, Duration: 0.5}
	if tc.End() != 1.5 {
		t.Errorf("trimmed End() = %v, want 1.5", tc.End())
	}
	if f := tc.FrameAt(1); f != 12000 {
		t.Errorf("FrameAt(1) = %d, want 12000 (offset applied)", f)
	}
}

func TestInterleave(t *testing.T) {
	buf := kaiku.AudioBuffer{{1, 2}, {3, 4}}
	out := make([]float32, 4)
	kaiku.Interleave(buf, out)
	want := []float32{1, 2, 3, 4}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out = %v, want %v", out, want)
		}
	}
}

func TestClipDuration(t *testing.T) {
	clip := kaiku.NewClip(make([]float32, 2*24000), 2, 48000, "")
	if math.Abs(clip.Duration()-0.5) > 1e-9 {
		t.Errorf("Duration() = %v, want 0.5", clip.Duration())
	}
}
