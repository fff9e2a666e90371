package engine_test

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/kaiku-daw/kaiku"
	"github.com/kaiku-daw/kaiku/audiofile"
	"github.com/kaiku-daw/kaiku/engine"
	"github.com/kaiku-daw/kaiku/track"
)

func TestRenderLengthAndContent(t *testing.T) {
	g := engine.NewGraph(engine.DefaultOptions())
	tr, _ := g.Tracks.Create(track.Audio, "a")
	g.PlaceClip(tr.ID(), constClip(0.5, 0.5), 0)

	buf, err := g.Render(1, nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(buf) != kaiku.SampleRate {
		t.Fatalf("rendered %d frames, want %d", len(buf), kaiku.SampleRate)
	}
	// inside the clip: default faders pass the source samples through
	if got := float64(buf[1000][0]); math.Abs(got-0.5) > 1e-3 {
		t.Errorf("sample inside clip = %v, want about 0.5", got)
	}
	// past the clip end: silence
	if got := buf[30000][0]; got != 0 {
		t.Errorf("sample past clip end = %v", got)
	}
}

func TestRenderMatchesRealtimeMix(t *testing.T) {
	build := func() *engine.Graph {
		opts := engine.DefaultOptions()
		opts.Metronome = false
		g := engine.NewGraph(opts)
		tr, _ := g.Tracks.Create(track.Audio, "a")
		tr.SetVolumeDB(-6)
		tr.SetPan(0.3)
		g.PlaceClip(tr.ID(), constClip(0.4, 0.1), 0)
		return g
	}

	offline := build()
	rendered, err := offline.Render(0.1, nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	live := build()
	if err := live.Start(nullContext{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer live.Close()
	live.Play()
	buf := make(kaiku.AudioBuffer, len(rendered))
	live.Process(buf)

	for i := range buf {
		if buf[i] != rendered[i] {
			t.Fatalf("frame %d differs: live %v, rendered %v", i, buf[i], rendered[i])
		}
	}
}

func TestRenderRejectsNonPositiveDuration(t *testing.T) {
	g := engine.NewGraph(engine.DefaultOptions())
	if _, err := g.Render(0, nil); err == nil {
		t.Error("zero duration accepted")
	}
}

func TestProjectDurationIncludesTail(t *testing.T) {
	g := engine.NewGraph(engine.DefaultOptions())
	tr, _ := g.Tracks.Create(track.Audio, "a")
	g.PlaceClip(tr.ID(), constClip(0.5, 1), 2)
	if got := g.ProjectDuration(); math.Abs(got-4) > 1e-9 {
		t.Errorf("project duration = %v, want 4 (clip end 3 + 1 s tail)", got)
	}
}

func TestRenderProgressCompletes(t *testing.T) {
	g := engine.NewGraph(engine.DefaultOptions())
	tr, _ := g.Tracks.Create(track.Audio, "a")
	g.PlaceClip(tr.ID(), constClip(0.5, 0.1), 0)

	prog := engine.NewProgress()
	if _, err := g.Render(0.2, prog); err != nil {
		t.Fatalf("render: %v", err)
	}
	if prog.Percent() != 100 {
		t.Errorf("progress = %d%%, want 100", prog.Percent())
	}
	if prog.Running() {
		t.Error("progress still running after completion")
	}
	if prog.Err() != nil {
		t.Errorf("progress error: %v", prog.Err())
	}
}

func TestRenderCancellation(t *testing.T) {
	g := engine.NewGraph(engine.DefaultOptions())
	tr, _ := g.Tracks.Create(track.Audio, "a")
	g.PlaceClip(tr.ID(), constClip(0.5, 1), 0)

	prog := engine.NewProgress()
	errc := make(chan error, 1)
	go func() {
		_, err := g.Render(60, prog)
		errc <- err
	}()
	for !prog.Running() {
		time.Sleep(time.Millisecond)
	}
	prog.Cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, engine.ErrExportCancelled) {
			t.Errorf("cancelled render returned %v", err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("render did not react to cancellation")
	}
	if prog.Err() == nil {
		t.Error("progress error not set on cancellation")
	}
}

func TestExportWAVRoundTrip(t *testing.T) {
	g := engine.NewGraph(engine.DefaultOptions())
	tr, _ := g.Tracks.Create(track.Audio, "a")
	g.PlaceClip(tr.ID(), constClip(0.5, 0.25), 0)

	path := filepath.Join(t.TempDir(), "mix.wav")
	if err := g.ExportWAV(path, 16, nil); err != nil {
		t.Fatalf("export: %v", err)
	}
	clip, err := audiofile.Load(path)
	if err != nil {
		t.Fatalf("reading the export back: %v", err)
	}
	wantFrames := int(g.ProjectDuration() * kaiku.SampleRate)
	if clip.Frames() != wantFrames {
		t.Errorf("exported %d frames, want %d", clip.Frames(), wantFrames)
	}
	v, _ := clip.Sample(1000, 0)
	if math.Abs(float64(v)-0.25) > 1e-3 {
		t.Errorf("exported sample = %v, want about 0.25", v)
	}
}

func TestExportStemsWritesOnePerTrack(t *testing.T) {
	g := engine.NewGraph(engine.DefaultOptions())
	a, _ := g.Tracks.Create(track.Audio, "bass")
	b, _ := g.Tracks.Create(track.Audio, "lead")
	g.PlaceClip(a.ID(), constClip(0.5, 0.1), 0)
	g.PlaceClip(b.ID(), constClip(0.25, 0.1), 0)

	dir := t.TempDir()
	if err := g.ExportStems(dir, 16, nil); err != nil {
		t.Fatalf("export stems: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "track_*.wav"))
	if len(matches) != 2 {
		t.Fatalf("expected 2 stems, got %v", matches)
	}
	// solo flags restored
	if a.Solo() || b.Solo() {
		t.Error("stem export left tracks soloed")
	}
}

func TestExportStemsIgnoresExistingSolo(t *testing.T) {
	g := engine.NewGraph(engine.DefaultOptions())
	a, _ := g.Tracks.Create(track.Audio, "bass")
	b, _ := g.Tracks.Create(track.Audio, "lead")
	g.PlaceClip(a.ID(), constClip(0.5, 0.1), 0)
	g.PlaceClip(b.ID(), constClip(0.25, 0.1), 0)
	a.SetSolo(true)

	dir := t.TempDir()
	if err := g.ExportStems(dir, 16, nil); err != nil {
		t.Fatalf("export stems: %v", err)
	}
	stem, err := audiofile.Load(filepath.Join(dir, fmt.Sprintf("track_%d_lead.wav", b.ID())))
	if err != nil {
		t.Fatalf("reading lead stem: %v", err)
	}
	// the soloed bass must not bleed into the lead stem
	v, _ := stem.Sample(1000, 0)
	if math.Abs(float64(v)-0.25) > 1e-3 {
		t.Errorf("lead stem sample = %v, want about 0.25", v)
	}
	if !a.Solo() {
		t.Error("pre-existing solo not restored")
	}
	if b.Solo() {
		t.Error("stem export left the lead soloed")
	}
}
