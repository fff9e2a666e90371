package project

import (
	"fmt"
	"path/filepath"

	"github.com/kaiku-daw/kaiku"
	"github.com/kaiku-daw/kaiku/audiofile"
	"github.com/kaiku-daw/kaiku/engine"
	"github.com/kaiku-daw/kaiku/track"
)

// FromGraph captures the live session as serializable project data. Audio
// clips without an origin file (unsaved recordings) are not included; the
// host is expected to write those out first.
func FromGraph(g *engine.Graph, name string) *Data {
	d := New(name)
	d.Tempo = g.Tempo()
	d.TimeSigNumerator = g.Rec.TimeSignature()

	fileIDs := make(map[string]uint64)
	for _, t := range g.Tracks.All() {
		info := t.Info()
		snap := t.Snapshot()
		td := TrackData{
			ID:       uint64(info.ID),
			Name:     info.Name,
			Type:     info.Type.String(),
			VolumeDB: info.VolumeDB,
			Pan:      info.Pan,
			Mute:     info.Mute,
			Solo:     info.Solo,
			Armed:    info.Armed,
		}
		for i := range snap.Clips {
			tc := &snap.Clips[i]
			path := tc.Clip.Path()
			if path == "" {
				continue
			}
			fid, ok := fileIDs[path]
			if !ok {
				fid = uint64(len(d.AudioFiles) + 1)
				fileIDs[path] = fid
				d.AudioFiles = append(d.AudioFiles, AudioFileData{
					ID:           fid,
					OriginalName: filepath.Base(path),
					RelativePath: path,
					Duration:     tc.Clip.Duration(),
					SampleRate:   tc.Clip.SampleRate(),
					Channels:     tc.Clip.Channels(),
				})
			}
			id := fid
			td.Clips = append(td.Clips, ClipData{
				ID:          tc.ID,
				StartTime:   tc.StartTime,
				Offset:      tc.Offset,
				Duration:    tc.Duration,
				AudioFileID: &id,
			})
		}
		for i := range snap.MIDIClips {
			mc := &snap.MIDIClips[i]
			cd := ClipData{
				ID:           mc.ID,
				StartTime:    mc.StartTime,
				MIDIDuration: mc.Clip.DurationSamples,
			}
			for _, ev := range mc.Clip.Events {
				cd.MIDIEvents = append(cd.MIDIEvents, EventData{
					On: ev.On, Note: ev.Note, Velocity: ev.Velocity, Time: ev.Time,
				})
			}
			td.Clips = append(td.Clips, cd)
		}
		for _, fxID := range snap.FXChain {
			h, ok := g.Effects.Get(fxID)
			if !ok {
				continue
			}
			td.FXChain = append(td.FXChain, EffectData{
				Type:       h.Name(),
				Parameters: h.Parameters(),
			})
		}
		if s, ok := g.Synths.Get(info.ID); ok {
			td.SynthParams = s.Parameters()
		}
		d.Tracks = append(d.Tracks, td)
	}
	return d
}

// Apply rebuilds the session from project data into a fresh graph. Audio
// files are loaded relative to the project folder. Track and clip ids are
// assigned anew by the registry; the serialized ids are not reused.
func Apply(d *Data, g *engine.Graph, dir string) error {
	g.SetTempo(d.Tempo)
	if d.TimeSigNumerator > 0 {
		g.Rec.SetTimeSignature(d.TimeSigNumerator)
	}

	files := make(map[uint64]*kaiku.Clip, len(d.AudioFiles))
	for _, f := range d.AudioFiles {
		clip, err := audiofile.Load(ResolveAudioPath(dir, f.RelativePath))
		if err != nil {
			return fmt.Errorf("loading audio file %s: %w", f.RelativePath, err)
		}
		files[f.ID] = clip
	}

	for _, td := range d.Tracks {
		var tr *track.Track
		if td.Type == track.Master.String() {
			tr = g.Tracks.Master()
			tr.Rename(td.Name)
		} else {
			typ, err := track.ParseType(td.Type)
			if err != nil {
				return fmt.Errorf("track %q: %w", td.Name, err)
			}
			tr, err = g.Tracks.Create(typ, td.Name)
			if err != nil {
				return fmt.Errorf("track %q: %w", td.Name, err)
			}
		}
		tr.SetVolumeDB(td.VolumeDB)
		tr.SetPan(td.Pan)
		tr.SetMute(td.Mute)
		tr.SetSolo(td.Solo)
		tr.SetArmed(td.Armed)

		for _, cd := range td.Clips {
			switch {
			case cd.AudioFileID != nil:
				clip, ok := files[*cd.AudioFileID]
				if !ok {
					return fmt.Errorf("track %q: unknown audio file id %d", td.Name, *cd.AudioFileID)
				}
				clipID, err := g.PlaceClip(tr.ID(), clip, cd.StartTime)
				if err != nil {
					return err
				}
				if cd.Offset != 0 || cd.Duration != 0 {
					tr.TrimClip(clipID, cd.Offset, cd.Duration)
				}
			case len(cd.MIDIEvents) > 0 || cd.MIDIDuration > 0:
				events := make([]kaiku.MIDIEvent, len(cd.MIDIEvents))
				for i, ev := range cd.MIDIEvents {
					events[i] = kaiku.MIDIEvent{On: ev.On, Note: ev.Note, Velocity: ev.Velocity, Time: ev.Time}
				}
				clip := kaiku.MIDIClipFromEvents(events)
				if cd.MIDIDuration > clip.DurationSamples {
					clip.DurationSamples = cd.MIDIDuration
				}
				if _, err := g.PlaceMIDIClip(tr.ID(), clip, cd.StartTime); err != nil {
					return err
				}
			}
		}

		for _, fx := range td.FXChain {
			fxID, err := g.AddEffect(tr.ID(), fx.Type)
			if err != nil {
				return fmt.Errorf("track %q: %w", td.Name, err)
			}
			if h, ok := g.Effects.Get(fxID); ok {
				for name, value := range fx.Parameters {
					h.SetParameter(name, value)
				}
			}
		}

		if len(td.SynthParams) > 0 {
			g.Synths.Create(tr.ID())
			for key, value := range td.SynthParams {
				if err := g.Synths.SetParameter(tr.ID(), key, value); err != nil {
					return fmt.Errorf("track %q: synth parameter %s: %w", td.Name, key, err)
				}
			}
		}
	}
	return nil
}
