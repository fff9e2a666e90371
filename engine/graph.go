// Package engine implements the audio graph: the per-buffer mixing loop
// driven by the hardware callback, the transport state machine, the recorder
// and its metronome, and the offline render path used for export.
//
// The graph spans two concurrency domains. Control threads mutate tracks,
// effects and clips behind fine-grained locks; the audio callback snapshots
// that state once per buffer and then mixes from the snapshot alone, so no
// lock is ever taken per sample and a contended lock degrades to silence for
// one buffer instead of stalling the device.
package engine

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kaiku-daw/kaiku"
	"github.com/kaiku-daw/kaiku/effects"
	"github.com/kaiku-daw/kaiku/effects/vstfx"
	"github.com/kaiku-daw/kaiku/synth"
	"github.com/kaiku-daw/kaiku/track"
)

// Transport is the playback state of the graph.
type Transport int32

const (
	Stopped Transport = iota
	Playing
	Paused
)

func (t Transport) String() string {
	switch t {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return "stopped"
}

var ErrNoStream = errors.New("no output stream open")

// Options configure a new graph. The zero value of a field means its
// default; use DefaultOptions as the starting point.
type Options struct {
	Tempo         float64
	TimeSignature int
	CountInBars   int
	Metronome     bool
}

func DefaultOptions() Options {
	return Options{Tempo: 120, TimeSignature: 4, CountInBars: 2, Metronome: true}
}

// Graph owns the whole mixing engine: the track registry with its master
// track, the effect registry, the per-track synths, the recorders and the
// output stream. One graph exists per session.
type Graph struct {
	Tracks  *track.Registry
	Effects *effects.Registry
	Synths  *synth.Manager
	Rec     *Recorder
	MIDIRec *MIDIRecorder

	broker *Broker

	transport atomic.Int32
	playhead  atomic.Int64

	closing    atomic.Bool
	finishOnce sync.Once

	inputMu sync.Mutex
	input   kaiku.AudioInput

	streamMu sync.Mutex
	stream   kaiku.OutputStream

	// applied to the master bus after the master FX chain; owned by the
	// audio thread, not registered
	limiter *effects.Limiter

	// scratch reused across callbacks; touched by the audio thread only
	runs   []trackRun
	meters []TrackMeter
}

// trackRun is the per-buffer working state of one track: its snapshot, the
// FX handles that were successfully try-locked for this buffer, and the
// synth if it could be locked.
type trackRun struct {
	track *track.Track
	snap  track.Snapshot
	fx    []*effects.Handle
	synth *synth.TrackSynth
	peak  float32
}

func NewGraph(opts Options) *Graph {
	g := &Graph{
		Tracks:  track.NewRegistry(),
		Effects: effects.NewRegistry(),
		Synths:  synth.NewManager(),
		Rec:     NewRecorder(),
		broker:  NewBroker(),
		limiter: effects.NewLimiter(),
	}
	g.MIDIRec = NewMIDIRecorder(&g.playhead)
	if opts.Tempo > 0 {
		g.SetTempo(opts.Tempo)
	}
	if opts.TimeSignature > 0 {
		g.Rec.SetTimeSignature(opts.TimeSignature)
	}
	g.Rec.SetCountInBars(opts.CountInBars)
	g.Rec.SetMetronomeEnabled(opts.Metronome)
	return g
}

// Broker returns the channel hub the audio thread reports through.
func (g *Graph) Broker() *Broker { return g.broker }

// Start opens the output stream on the audio device and binds the graph's
// callback to it. The stream starts paused; Play resumes it.
func (g *Graph) Start(ctx kaiku.AudioContext) error {
	g.streamMu.Lock()
	defer g.streamMu.Unlock()
	stream, err := ctx.OpenStream(g.Process)
	if err != nil {
		return err
	}
	g.stream = stream
	return nil
}

// closeTimeout bounds the wait for the callback's shutdown acknowledgement;
// a paused stream never acknowledges, so Close must not wait forever.
const closeTimeout = 100 * time.Millisecond

// Close asks the callback to go quiet, waits for the acknowledgement and
// tears the stream down. FinishedAudio is closed either by the callback's
// acknowledgement or here, so consumers draining ToControl always see it.
func (g *Graph) Close() error {
	g.streamMu.Lock()
	defer g.streamMu.Unlock()
	if g.stream == nil {
		return nil
	}
	TrySend(g.broker.CloseAudio, struct{}{})
	TimeoutReceive(g.broker.FinishedAudio, closeTimeout)
	err := g.stream.Close()
	g.stream = nil
	g.finishOnce.Do(func() { close(g.broker.FinishedAudio) })
	return err
}

func (g *Graph) Transport() Transport {
	return Transport(g.transport.Load())
}

// Play starts or resumes playback. Calling Play while already playing is a
// no-op.
func (g *Graph) Play() error {
	if g.Transport() == Playing {
		return nil
	}
	g.transport.Store(int32(Playing))
	return g.resumeStream()
}

// Pause halts playback, keeping the playhead position.
func (g *Graph) Pause() error {
	g.transport.Store(int32(Paused))
	return g.pauseStreamIfIdle()
}

// Stop halts playback, releases every synth voice, resets the playhead to
// zero and re-aligns the metronome grid.
func (g *Graph) Stop() error {
	g.transport.Store(int32(Stopped))
	err := g.pauseStreamIfIdle()
	g.Synths.AllNotesOff()
	g.playhead.Store(0)
	g.Rec.ResetMetronome()
	return err
}

func (g *Graph) resumeStream() error {
	g.streamMu.Lock()
	defer g.streamMu.Unlock()
	if g.stream == nil {
		return ErrNoStream
	}
	return g.stream.Play()
}

// pauseStreamIfIdle pauses the device stream unless a recording is in
// flight; the recorder needs the callback to keep running.
func (g *Graph) pauseStreamIfIdle() error {
	if g.Rec.State() != RecIdle {
		return nil
	}
	g.streamMu.Lock()
	defer g.streamMu.Unlock()
	if g.stream == nil {
		return nil
	}
	return g.stream.Pause()
}

// Seek moves the playhead to the given visual position in seconds. The
// stored sample position is reverse-scaled by the tempo ratio so that
// PlayheadPosition returns the requested value.
func (g *Graph) Seek(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	ratio := g.Tempo() / 120
	g.playhead.Store(int64(seconds / ratio * kaiku.SampleRate))
}

// PlayheadPosition returns the tempo-scaled playhead position in seconds.
func (g *Graph) PlayheadPosition() float64 {
	ratio := g.Tempo() / 120
	return float64(g.playhead.Load()) * ratio / kaiku.SampleRate
}

// PlayheadSamples returns the raw sample counter.
func (g *Graph) PlayheadSamples() int64 { return g.playhead.Load() }

func (g *Graph) SetTempo(bpm float64) {
	g.Rec.SetTempo(bpm)
	g.MIDIRec.SetTempo(bpm)
}

func (g *Graph) Tempo() float64 { return g.Rec.Tempo() }

// SetInput installs the live input source sampled while recording. Passing
// nil detaches it.
func (g *Graph) SetInput(in kaiku.AudioInput) {
	g.inputMu.Lock()
	g.input = in
	g.inputMu.Unlock()
}

// StartRecording arms the recorder and makes sure the device callback is
// running, since capture happens inside it even when the transport is not
// playing.
func (g *Graph) StartRecording() error {
	if err := g.Rec.StartRecording(); err != nil {
		return err
	}
	g.streamMu.Lock()
	defer g.streamMu.Unlock()
	if g.stream != nil {
		return g.stream.Play()
	}
	return nil
}

// StopRecording finishes the capture. When the transport is not playing the
// stream is paused again.
func (g *Graph) StopRecording() (*kaiku.Clip, error) {
	clip, err := g.Rec.StopRecording()
	if g.Transport() != Playing {
		g.pauseStreamIfIdle()
	}
	if clip != nil {
		TrySend(g.broker.ToControl, MsgToControl{Data: Alert{
			Name:     "Recording",
			Message:  fmt.Sprintf("captured %.2f s of audio", clip.Duration()),
			Priority: AlertInfo,
		}})
	}
	return clip, err
}

// NoteOn triggers a live note on the track's synth and feeds the MIDI
// recorder. Called from the MIDI driver thread.
func (g *Graph) NoteOn(id track.ID, note, velocity byte) {
	g.Synths.NoteOn(id, note, velocity)
	g.MIDIRec.RecordEvent(true, note, velocity)
}

func (g *Graph) NoteOff(id track.ID, note byte) {
	g.Synths.NoteOff(id, note)
	g.MIDIRec.RecordEvent(false, note, 0)
}

// PlaceClip puts an audio clip on a track's timeline and returns the
// placement id.
func (g *Graph) PlaceClip(id track.ID, clip *kaiku.Clip, startTime float64) (uint64, error) {
	t, ok := g.Tracks.Get(id)
	if !ok {
		return 0, track.ErrNotFound
	}
	clipID := g.Tracks.NextClipID()
	t.AddClip(kaiku.TimelineClip{ID: clipID, Clip: clip, StartTime: startTime})
	return clipID, nil
}

// PlaceMIDIClip puts a MIDI clip on a track's timeline.
func (g *Graph) PlaceMIDIClip(id track.ID, clip *kaiku.MIDIClip, startTime float64) (uint64, error) {
	t, ok := g.Tracks.Get(id)
	if !ok {
		return 0, track.ErrNotFound
	}
	clipID := g.Tracks.NextClipID()
	t.AddMIDIClip(kaiku.TimelineMIDIClip{ID: clipID, Clip: clip, StartTime: startTime})
	return clipID, nil
}

// AddNote edits a placed MIDI clip copy-on-write: the current clip is
// copied with the note added, and the fresh pointer is published under the
// track lock. A concurrently mixing audio thread keeps reading the old
// pointer until the next snapshot.
func (g *Graph) AddNote(id track.ID, clipID uint64, note, velocity byte, time, duration int64) error {
	return g.editMIDIClip(id, clipID, func(c *kaiku.MIDIClip) *kaiku.MIDIClip {
		return c.WithNote(note, velocity, time, duration)
	})
}

// RemoveNote removes the note starting at the given time from a placed MIDI
// clip.
func (g *Graph) RemoveNote(id track.ID, clipID uint64, note byte, time int64) error {
	return g.editMIDIClip(id, clipID, func(c *kaiku.MIDIClip) *kaiku.MIDIClip {
		return c.WithoutNote(note, time)
	})
}

// QuantizeClip snaps every event of a placed MIDI clip to the grid.
func (g *Graph) QuantizeClip(id track.ID, clipID uint64, gridSamples int64) error {
	return g.editMIDIClip(id, clipID, func(c *kaiku.MIDIClip) *kaiku.MIDIClip {
		return c.Quantized(gridSamples)
	})
}

func (g *Graph) editMIDIClip(id track.ID, clipID uint64, edit func(*kaiku.MIDIClip) *kaiku.MIDIClip) error {
	t, ok := g.Tracks.Get(id)
	if !ok {
		return track.ErrNotFound
	}
	clip, ok := t.MIDIClipByID(clipID)
	if !ok {
		return track.ErrNotFound
	}
	t.ReplaceMIDIClip(clipID, edit(clip))
	return nil
}

// AddEffect creates a built-in effect and appends it to the track's chain.
func (g *Graph) AddEffect(id track.ID, typeName string) (uint64, error) {
	t, ok := g.Tracks.Get(id)
	if !ok {
		return 0, track.ErrNotFound
	}
	h, err := g.Effects.Create(typeName)
	if err != nil {
		return 0, err
	}
	t.PushEffect(h.ID())
	return h.ID(), nil
}

// AddVSTEffect loads a VST2 plugin from disk and appends it to the track's
// chain, behind the same handle contract as the built-in effects.
func (g *Graph) AddVSTEffect(id track.ID, path string) (uint64, error) {
	t, ok := g.Tracks.Get(id)
	if !ok {
		return 0, track.ErrNotFound
	}
	p, err := vstfx.Load(path)
	if err != nil {
		return 0, err
	}
	h := g.Effects.Add(p)
	t.PushEffect(h.ID())
	return h.ID(), nil
}

// RemoveEffect drops an effect from the track's chain and destroys the
// instance.
func (g *Graph) RemoveEffect(id track.ID, effectID uint64) error {
	t, ok := g.Tracks.Get(id)
	if !ok {
		return track.ErrNotFound
	}
	t.RemoveEffect(effectID)
	return g.Effects.Remove(effectID)
}

// DuplicateTrack copies a track with its clips, effect parameters and synth
// timbre. Effect instances are cloned, not shared, since a chain slot owns
// its effect.
func (g *Graph) DuplicateTrack(id track.ID) (track.ID, error) {
	src, ok := g.Tracks.Get(id)
	if !ok {
		return 0, track.ErrNotFound
	}
	dup, err := g.Tracks.Duplicate(id)
	if err != nil {
		return 0, err
	}
	for _, fxID := range src.Effects() {
		h, ok := g.Effects.Get(fxID)
		if !ok {
			continue
		}
		clone, err := g.Effects.Create(h.Name())
		if err != nil {
			continue
		}
		for name, value := range h.Parameters() {
			clone.SetParameter(name, value)
		}
		dup.PushEffect(clone.ID())
	}
	g.Synths.Copy(id, dup.ID())
	return dup.ID(), nil
}

// Process is the audio callback: it fills one stereo buffer. It never
// blocks; any contended lock turns into silence for the affected
// contribution.
func (g *Graph) Process(buf kaiku.AudioBuffer) {
	select {
	case <-g.broker.CloseAudio:
		g.closing.Store(true)
		g.transport.Store(int32(Stopped))
		g.finishOnce.Do(func() { close(g.broker.FinishedAudio) })
	default:
	}
	if g.closing.Load() {
		for i := range buf {
			buf[i] = [2]float32{}
		}
		return
	}

	playing := g.Transport() == Playing
	if !playing {
		// metronome and recording keep running while stopped
		for i := range buf {
			inL, inR := g.readInput()
			click := g.Rec.ProcessFrame(inL, inR, false)
			buf[i] = [2]float32{click, click}
		}
		return
	}

	playhead := g.playhead.Load()
	runs, master := g.snapshotTracks()
	g.mixInto(buf, playhead, runs, master, true)
	g.playhead.Add(int64(len(buf)))
	g.publish(buf, runs, master)
	g.releaseRuns(runs, master)
}

// snapshotTracks captures every track once, resolves and try-locks the FX
// chains and synths, and computes the solo flag. Tracks are locked one at a
// time, never nested.
func (g *Graph) snapshotTracks() (runs []*trackRun, master *trackRun) {
	g.runs = g.runs[:0]
	hasSolo := g.Tracks.HasSolo()
	for _, t := range g.Tracks.All() {
		snap := t.Snapshot()
		if snap.ID != track.MasterID {
			if snap.Mute || (hasSolo && !snap.Solo) {
				continue
			}
		}
		run := trackRun{track: t, snap: snap}
		run.fx = g.lockChain(snap.FXChain)
		if s, ok := g.Synths.Get(snap.ID); ok && snap.ID != track.MasterID {
			if s.TryLock() {
				run.synth = s
			}
		}
		g.runs = append(g.runs, run)
	}
	out := make([]*trackRun, 0, len(g.runs))
	for i := range g.runs {
		if g.runs[i].snap.ID == track.MasterID {
			master = &g.runs[i]
		} else {
			out = append(out, &g.runs[i])
		}
	}
	return out, master
}

// lockChain resolves the chain ids and try-locks each handle; handles that
// cannot be locked are skipped for this buffer (the effect passes through).
func (g *Graph) lockChain(ids []uint64) []*effects.Handle {
	if len(ids) == 0 {
		return nil
	}
	resolved := g.Effects.Resolve(ids, nil)
	locked := resolved[:0]
	for _, h := range resolved {
		if h.TryLock() {
			locked = append(locked, h)
		}
	}
	return locked
}

func (g *Graph) releaseRuns(runs []*trackRun, master *trackRun) {
	for _, r := range runs {
		for _, h := range r.fx {
			h.Unlock()
		}
		if r.synth != nil {
			r.synth.Unlock()
		}
	}
	if master != nil {
		for _, h := range master.fx {
			h.Unlock()
		}
	}
}

// mixInto runs the per-frame mixing algorithm over the buffer, starting at
// the given playhead sample. live selects the real-time extras (input
// capture, metronome); the offline render path passes false and gets the
// identical mixing math without them.
func (g *Graph) mixInto(buf kaiku.AudioBuffer, playhead int64, runs []*trackRun, master *trackRun, live bool) {
	for i := range buf {
		abs := playhead + int64(i)
		sec := float64(abs) / kaiku.SampleRate

		var mixL, mixR float32
		for _, r := range runs {
			l, rr := mixTrackFrame(r, abs, sec)
			if a := absf(l); a > r.peak {
				r.peak = a
			}
			if a := absf(rr); a > r.peak {
				r.peak = a
			}
			mixL += l
			mixR += rr
		}

		if master != nil {
			mixL *= master.snap.Gain * master.snap.PanLeft
			mixR *= master.snap.Gain * master.snap.PanRight
			for _, h := range master.fx {
				mixL, mixR = h.ProcessFrame(mixL, mixR)
			}
		}
		mixL, mixR = g.limiter.ProcessFrame(mixL, mixR)
		if master != nil {
			if a := absf(mixL); a > master.peak {
				master.peak = a
			}
			if a := absf(mixR); a > master.peak {
				master.peak = a
			}
		}

		// metronome and input capture run after metering so the click
		// never shows on the master meter. Only the device path clips
		// per frame; the offline path is bounded at the export stage.
		if live {
			inL, inR := g.readInput()
			click := g.Rec.ProcessFrame(inL, inR, true)
			mixL += click
			mixR += click
			mixL, mixR = clampUnit(mixL), clampUnit(mixR)
		}

		buf[i] = [2]float32{mixL, mixR}
	}
}

// mixTrackFrame produces one post-fader, post-FX stereo frame for a track:
// clip playback, sample-exact MIDI dispatch into the synth, gain/pan, FX
// chain.
func mixTrackFrame(r *trackRun, abs int64, sec float64) (float32, float32) {
	var l, rr float32
	for ci := range r.snap.Clips {
		tc := &r.snap.Clips[ci]
		if !tc.ActiveAt(sec) {
			continue
		}
		frame := tc.FrameAt(sec)
		v, ok := tc.Clip.Sample(frame, 0)
		if !ok {
			continue
		}
		l += v
		if tc.Clip.Channels() > 1 {
			if v2, ok := tc.Clip.Sample(frame, 1); ok {
				rr += v2
			}
		} else {
			rr += v
		}
	}
	if r.synth != nil {
		for mi := range r.snap.MIDIClips {
			mc := &r.snap.MIDIClips[mi]
			start := int64(mc.StartTime * kaiku.SampleRate)
			rel := abs - start
			if rel < 0 || rel >= mc.Clip.DurationSamples {
				continue
			}
			mc.Clip.EventsAt(rel, func(ev kaiku.MIDIEvent) {
				if ev.On {
					r.synth.NoteOn(ev.Note, ev.Velocity)
				} else {
					r.synth.NoteOff(ev.Note)
				}
			})
		}
		mono := r.synth.ProcessSample()
		l += mono
		rr += mono
	}
	l *= r.snap.Gain * r.snap.PanLeft
	rr *= r.snap.Gain * r.snap.PanRight
	for _, h := range r.fx {
		l, rr = h.ProcessFrame(l, rr)
	}
	return l, rr
}

// publish pushes the per-buffer results to the meters and the broker, all
// non-blocking.
func (g *Graph) publish(buf kaiku.AudioBuffer, runs []*trackRun, master *trackRun) {
	g.meters = g.meters[:0]
	for _, r := range runs {
		r.track.AccumulatePeak(r.peak)
		g.meters = append(g.meters, TrackMeter{Track: r.snap.ID, Peak: r.peak})
	}
	if master != nil {
		master.track.AccumulatePeak(master.peak)
		g.meters = append(g.meters, TrackMeter{Track: track.MasterID, Peak: master.peak})
	}
	msg := MsgToControl{
		HasPosition:     true,
		PlayheadSamples: g.playhead.Load(),
		Playing:         true,
		HasMeters:       true,
		Meters:          append([]TrackMeter(nil), g.meters...),
	}
	bufPtr := g.broker.GetAudioBuffer()
	*bufPtr = append(*bufPtr, buf...)
	msg.Data = bufPtr
	if !TrySend(g.broker.ToControl, msg) {
		g.broker.PutAudioBuffer(bufPtr)
	}
}

// readInput fetches one live input frame, duplicating mono input to both
// channels. Contention or a missing device reads as silence.
func (g *Graph) readInput() (float32, float32) {
	if !g.inputMu.TryLock() {
		return 0, 0
	}
	defer g.inputMu.Unlock()
	if g.input == nil {
		return 0, 0
	}
	if g.input.Channels() == 1 {
		s, ok := g.input.ReadSamples(1)
		if !ok || len(s) < 1 {
			return 0, 0
		}
		return s[0], s[0]
	}
	s, ok := g.input.ReadSamples(2)
	if !ok || len(s) < 2 {
		return 0, 0
	}
	return s[0], s[1]
}

func absf(v float32) float32 {
	return float32(math.Abs(float64(v)))
}

func clampUnit(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
