package audiofile_test

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/kaiku-daw/kaiku"
	"github.com/kaiku-daw/kaiku/audiofile"
)

func TestWriteWAVLoadRoundTrip16(t *testing.T) {
	const frames = 4800
	samples := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		v := float32(math.Sin(2 * math.Pi * 440 * float64(i) / kaiku.SampleRate))
		samples[i*2] = v * 0.5
		samples[i*2+1] = v * 0.25
	}
	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := audiofile.WriteWAV(path, samples, 2, kaiku.SampleRate, 16); err != nil {
		t.Fatalf("write: %v", err)
	}
	clip, err := audiofile.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if clip.Frames() != frames {
		t.Fatalf("loaded %d frames, want %d", clip.Frames(), frames)
	}
	if clip.Channels() != 2 || clip.SampleRate() != kaiku.SampleRate {
		t.Fatalf("format %d ch %d Hz", clip.Channels(), clip.SampleRate())
	}
	for _, frame := range []int{100, 1234, 4000} {
		for ch := 0; ch < 2; ch++ {
			got, _ := clip.Sample(frame, ch)
			want := samples[frame*2+ch]
			if math.Abs(float64(got-want)) > 1.0/32768+1e-6 {
				t.Fatalf("frame %d ch %d: got %v, want %v", frame, ch, got, want)
			}
		}
	}
}

func TestWriteWAV24Bit(t *testing.T) {
	samples := []float32{0.5, -0.5, 0.25, -0.25}
	path := filepath.Join(t.TempDir(), "out.wav")
	if err := audiofile.WriteWAV(path, samples, 2, kaiku.SampleRate, 24); err != nil {
		t.Fatalf("write 24-bit: %v", err)
	}
	clip, err := audiofile.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got, _ := clip.Sample(0, 0); math.Abs(float64(got)-0.5) > 1e-6 {
		t.Errorf("24-bit sample = %v, want 0.5", got)
	}
}

func TestWriteWAVRejectsOddBitDepth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	if err := audiofile.WriteWAV(path, []float32{0}, 2, kaiku.SampleRate, 12); err == nil {
		t.Error("bit depth 12 accepted")
	}
}

func TestWriteWAVClampsOverrange(t *testing.T) {
	samples := []float32{2, -2}
	path := filepath.Join(t.TempDir(), "hot.wav")
	if err := audiofile.WriteWAV(path, samples, 2, kaiku.SampleRate, 16); err != nil {
		t.Fatalf("write: %v", err)
	}
	clip, err := audiofile.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got, _ := clip.Sample(0, 0); got > 1.0001 {
		t.Errorf("overrange sample survived: %v", got)
	}
}

func TestLoadMonoBecomesStereo(t *testing.T) {
	samples := []float32{0.1, 0.2, 0.3, 0.4}
	path := filepath.Join(t.TempDir(), "mono.wav")
	if err := audiofile.WriteWAV(path, samples, 1, kaiku.SampleRate, 16); err != nil {
		t.Fatalf("write: %v", err)
	}
	clip, err := audiofile.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if clip.Channels() != kaiku.NumChannels {
		t.Fatalf("mono not converted: %d channels", clip.Channels())
	}
	l, _ := clip.Sample(1, 0)
	r, _ := clip.Sample(1, 1)
	if l != r {
		t.Errorf("mono channels differ after duplication: %v, %v", l, r)
	}
}

func TestLoadResamplesToEngineRate(t *testing.T) {
	const srcRate = 44100
	frames := srcRate / 2 // half a second
	samples := make([]float32, frames*2)
	for i := range samples {
		samples[i] = 0.25
	}
	path := filepath.Join(t.TempDir(), "cd.wav")
	if err := audiofile.WriteWAV(path, samples, 2, srcRate, 16); err != nil {
		t.Fatalf("write: %v", err)
	}
	clip, err := audiofile.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if clip.SampleRate() != kaiku.SampleRate {
		t.Fatalf("clip at %d Hz", clip.SampleRate())
	}
	wantFrames := kaiku.SampleRate / 2
	if d := clip.Frames() - wantFrames; d < -2 || d > 2 {
		t.Errorf("resampled to %d frames, want about %d", clip.Frames(), wantFrames)
	}
	if v, _ := clip.Sample(1000, 0); math.Abs(float64(v)-0.25) > 1e-3 {
		t.Errorf("resampled constant = %v", v)
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	if _, err := audiofile.Load("song.flac"); err == nil {
		t.Error("unsupported extension accepted")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := audiofile.Load(filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Error("missing file accepted")
	}
}
