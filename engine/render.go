package engine

import (
	"fmt"
	"math"

	"github.com/viterin/vek/vek32"

	"github.com/kaiku-daw/kaiku"
	"github.com/kaiku-daw/kaiku/audiofile"
	"github.com/kaiku-daw/kaiku/track"
)

// renderChunk is the offline rendering granularity; snapshots and progress
// are refreshed once per chunk, mirroring the once-per-buffer cadence of the
// real-time path.
const renderChunk = 512

// renderTail is the extra time rendered past the last clip so reverb and
// delay decays are not cut off.
const renderTail = 1.0

// ProjectDuration returns the length of the project in seconds: the latest
// clip end across all tracks plus a decay tail.
func (g *Graph) ProjectDuration() float64 {
	var end float64
	for _, t := range g.Tracks.All() {
		snap := t.Snapshot()
		for i := range snap.Clips {
			if e := snap.Clips[i].End(); e > end {
				end = e
			}
		}
		for i := range snap.MIDIClips {
			mc := &snap.MIDIClips[i]
			if e := mc.StartTime + mc.Clip.Duration(); e > end {
				end = e
			}
		}
	}
	return end + renderTail
}

// Render mixes the project offline from time zero for the given duration,
// using the identical per-frame algorithm as the real-time callback (same
// gain/pan/FX/limiter order) minus the live-only extras (input capture,
// metronome, the per-frame output clip). The returned buffer is the raw mix;
// WAV export bounds it to full scale. prog may be nil; when set it is
// updated per chunk and checked for cancellation.
func (g *Graph) Render(seconds float64, prog *Progress) (kaiku.AudioBuffer, error) {
	totalFrames := int64(seconds * kaiku.SampleRate)
	if totalFrames <= 0 {
		return nil, fmt.Errorf("render duration %g s is not positive", seconds)
	}
	if prog != nil {
		prog.Start("rendering")
	}
	g.limiter.Reset()

	out := make(kaiku.AudioBuffer, totalFrames)
	var playhead int64
	for playhead < totalFrames {
		if prog != nil && prog.Cancelled() {
			prog.Fail(ErrExportCancelled)
			return nil, ErrExportCancelled
		}
		n := int64(renderChunk)
		if rem := totalFrames - playhead; rem < n {
			n = rem
		}
		runs, master := g.snapshotTracks()
		g.mixInto(out[playhead:playhead+n], playhead, runs, master, false)
		g.releaseRuns(runs, master)
		playhead += n
		if prog != nil {
			prog.Update(int(playhead*100/totalFrames), "rendering")
		}
	}
	g.Synths.AllNotesOff()
	if prog != nil {
		prog.Complete()
	}
	return out, nil
}

// RenderProject renders the whole project, tail included.
func (g *Graph) RenderProject(prog *Progress) (kaiku.AudioBuffer, error) {
	return g.Render(g.ProjectDuration(), prog)
}

// ExportWAV renders the whole project and writes it as a WAV file at the
// engine rate. bitDepth is 16, 24 or 32 (32 = float samples).
func (g *Graph) ExportWAV(path string, bitDepth int, prog *Progress) error {
	buf, err := g.RenderProject(prog)
	if err != nil {
		return err
	}
	samples := make([]float32, len(buf)*kaiku.NumChannels)
	kaiku.Interleave(buf, samples)

	// the offline mix is not clipped per frame; bound anything over full
	// scale here and tell the control side it happened
	tmp := make([]float32, len(samples))
	vek32.Abs_Into(tmp, samples)
	if peak := vek32.Max(tmp); peak > 1 {
		vek32.MinimumNumber_Inplace(samples, 1)
		vek32.MaximumNumber_Inplace(samples, -1)
		TrySend(g.broker.ToControl, MsgToControl{Data: Alert{
			Name:     "Export",
			Message:  fmt.Sprintf("mix peaked at %+.1f dB, output clipped", 20*math.Log10(float64(peak))),
			Priority: AlertWarning,
		}})
	}

	if err := audiofile.WriteWAV(path, samples, kaiku.NumChannels, kaiku.SampleRate, bitDepth); err != nil {
		if prog != nil {
			prog.Fail(err)
		}
		return fmt.Errorf("exporting %s: %w", path, err)
	}
	return nil
}

// ExportStems renders each non-master track in isolation by soloing it for
// the duration of its render, writing one WAV per track. Solo flags set
// before the export are cleared for its duration and restored afterwards, so
// they cannot bleed another track into a stem. The live transport should be
// stopped while exporting stems.
func (g *Graph) ExportStems(dir string, bitDepth int, prog *Progress) error {
	duration := g.ProjectDuration()
	all := g.Tracks.All()
	prevSolo := make(map[track.ID]bool, len(all))
	for _, t := range all {
		prevSolo[t.ID()] = t.Solo()
		t.SetSolo(false)
	}
	defer func() {
		for _, t := range all {
			t.SetSolo(prevSolo[t.ID()])
		}
	}()
	for _, t := range all {
		if t.ID() == track.MasterID {
			continue
		}
		info := t.Info()
		t.SetSolo(true)
		buf, err := g.Render(duration, prog)
		t.SetSolo(false)
		if err != nil {
			return err
		}
		samples := make([]float32, len(buf)*kaiku.NumChannels)
		kaiku.Interleave(buf, samples)
		path := fmt.Sprintf("%s/track_%d_%s.wav", dir, info.ID, info.Name)
		if err := audiofile.WriteWAV(path, samples, kaiku.NumChannels, kaiku.SampleRate, bitDepth); err != nil {
			return fmt.Errorf("exporting stem %s: %w", path, err)
		}
	}
	return nil
}
