package track_test

import (
	"errors"
	"math"
	"testing"

	"github.com/kaiku-daw/kaiku"
	"github.com/kaiku-daw/kaiku/track"
)

func TestVolumeClamp(t *testing.T) {
	r := track.NewRegistry()
	tr, _ := r.Create(track.Audio, "a")
	tr.SetVolumeDB(-200)
	if tr.VolumeDB() != track.MinVolumeDB {
		t.Errorf("volume not clamped low: %v", tr.VolumeDB())
	}
	tr.SetVolumeDB(20)
	if tr.VolumeDB() != track.MaxVolumeDB {
		t.Errorf("volume not clamped high: %v", tr.VolumeDB())
	}
	tr.SetVolumeDB(-12)
	if tr.VolumeDB() != -12 {
		t.Errorf("in-range volume changed: %v", tr.VolumeDB())
	}
}

func TestPanClamp(t *testing.T) {
	r := track.NewRegistry()
	tr, _ := r.Create(track.Audio, "a")
	tr.SetPan(-2)
	if tr.Pan() != -1 {
		t.Errorf("pan not clamped low: %v", tr.Pan())
	}
	tr.SetPan(2)
	if tr.Pan() != 1 {
		t.Errorf("pan not clamped high: %v", tr.Pan())
	}
}

func TestSnapshotGainAndEqualPowerPan(t *testing.T) {
	r := track.NewRegistry()
	tr, _ := r.Create(track.Audio, "a")
	snap := tr.Snapshot()
	if math.Abs(float64(snap.Gain)-1) > 1e-6 {
		t.Errorf("0 dB gain = %v, want 1", snap.Gain)
	}
	// center pan: unity on both channels, so a default fader is transparent
	if math.Abs(float64(snap.PanLeft-1)) > 1e-6 || math.Abs(float64(snap.PanRight-1)) > 1e-6 {
		t.Errorf("center pan gains = %v, %v, want 1, 1", snap.PanLeft, snap.PanRight)
	}
	// hard left: +3 dB on the left, right silent
	tr.SetPan(-1)
	snap = tr.Snapshot()
	if math.Abs(float64(snap.PanLeft)-math.Sqrt2) > 1e-6 || math.Abs(float64(snap.PanRight)) > 1e-6 {
		t.Errorf("hard left pan gains = %v, %v", snap.PanLeft, snap.PanRight)
	}
	// equal power holds at every position: l^2 + r^2 == 2
	tr.SetPan(0.3)
	snap = tr.Snapshot()
	if p := float64(snap.PanLeft*snap.PanLeft + snap.PanRight*snap.PanRight); math.Abs(p-2) > 1e-5 {
		t.Errorf("pan power sum = %v, want 2", p)
	}
	// -6 dB is half amplitude, give or take
	tr.SetVolumeDB(-6)
	snap = tr.Snapshot()
	if math.Abs(float64(snap.Gain)-0.501) > 0.001 {
		t.Errorf("-6 dB gain = %v", snap.Gain)
	}
}

func TestPeakMeterAccumulateAndReset(t *testing.T) {
	r := track.NewRegistry()
	tr, _ := r.Create(track.Audio, "a")
	tr.AccumulatePeak(0.5)
	tr.AccumulatePeak(0.25) // lower value must not win
	db := tr.PeakDB()
	if math.Abs(float64(db)+6.02) > 0.01 {
		t.Errorf("peak of 0.5 = %v dB, want about -6.02", db)
	}
	if db := tr.PeakDB(); db != track.MinVolumeDB {
		t.Errorf("meter not reset after read: %v dB", db)
	}
}

func TestRegistryMasterIsProtected(t *testing.T) {
	r := track.NewRegistry()
	m := r.Master()
	if m == nil || m.ID() != track.MasterID {
		t.Fatal("master track missing")
	}
	if _, err := r.Create(track.Master, "another"); !errors.Is(err, track.ErrMasterTrack) {
		t.Errorf("creating a master track: %v", err)
	}
	if err := r.Remove(track.MasterID); !errors.Is(err, track.ErrMasterTrack) {
		t.Errorf("removing the master track: %v", err)
	}
}

func TestRegistryCreateRemove(t *testing.T) {
	r := track.NewRegistry()
	a, _ := r.Create(track.Audio, "a")
	b, _ := r.Create(track.MIDI, "b")
	if a.ID() == b.ID() {
		t.Fatal("duplicate track ids")
	}
	if len(r.All()) != 3 { // master + 2
		t.Fatalf("expected 3 tracks, got %d", len(r.All()))
	}
	if err := r.Remove(a.ID()); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := r.Remove(a.ID()); !errors.Is(err, track.ErrNotFound) {
		t.Errorf("double remove: %v", err)
	}
	if _, ok := r.Get(a.ID()); ok {
		t.Error("removed track still found")
	}
}

func TestHasSolo(t *testing.T) {
	r := track.NewRegistry()
	a, _ := r.Create(track.Audio, "a")
	if r.HasSolo() {
		t.Error("fresh registry reports solo")
	}
	a.SetSolo(true)
	if !r.HasSolo() {
		t.Error("solo not reported")
	}
	// soloing the master does not count
	a.SetSolo(false)
	r.Master().SetSolo(true)
	if r.HasSolo() {
		t.Error("master solo counted")
	}
}

func TestDuplicateCopiesStateNotPointers(t *testing.T) {
	r := track.NewRegistry()
	src, _ := r.Create(track.MIDI, "keys")
	src.SetVolumeDB(-3)
	src.SetPan(0.5)
	clip := kaiku.NewMIDIClip(48000).WithNote(60, 100, 0, 1000)
	src.AddMIDIClip(kaiku.TimelineMIDIClip{ID: r.NextClipID(), Clip: clip, StartTime: 1})
	audioClip := kaiku.NewClip(make([]float32, 2*4800), 2, 48000, "x.wav")
	src.AddClip(kaiku.TimelineClip{ID: r.NextClipID(), Clip: audioClip, StartTime: 0})

	dup, err := r.Duplicate(src.ID())
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	info := dup.Info()
	if info.VolumeDB != -3 || info.Pan != 0.5 {
		t.Errorf("fader not copied: %+v", info)
	}
	snap := dup.Snapshot()
	srcSnap := src.Snapshot()
	if len(snap.Clips) != 1 || len(snap.MIDIClips) != 1 {
		t.Fatalf("clips not copied: %d audio, %d midi", len(snap.Clips), len(snap.MIDIClips))
	}
	if snap.Clips[0].ID == srcSnap.Clips[0].ID || snap.MIDIClips[0].ID == srcSnap.MIDIClips[0].ID {
		t.Error("clip ids were reused")
	}
	if snap.MIDIClips[0].Clip == srcSnap.MIDIClips[0].Clip {
		t.Error("MIDI clip pointer shared between source and duplicate")
	}
	if _, err := r.Duplicate(track.MasterID); !errors.Is(err, track.ErrMasterTrack) {
		t.Errorf("duplicating master: %v", err)
	}
}

func TestReplaceMIDIClipPublishesNewPointer(t *testing.T) {
	r := track.NewRegistry()
	tr, _ := r.Create(track.MIDI, "keys")
	orig := kaiku.NewMIDIClip(48000)
	id := r.NextClipID()
	tr.AddMIDIClip(kaiku.TimelineMIDIClip{ID: id, Clip: orig, StartTime: 0})

	snapBefore := tr.Snapshot()
	edited := orig.WithNote(60, 100, 0, 100)
	if !tr.ReplaceMIDIClip(id, edited) {
		t.Fatal("replace failed")
	}
	// the old snapshot still sees the old pointer, the new one sees the edit
	if snapBefore.MIDIClips[0].Clip != orig {
		t.Error("captured snapshot changed under the reader")
	}
	if got, _ := tr.MIDIClipByID(id); got != edited {
		t.Error("new pointer not published")
	}
}
