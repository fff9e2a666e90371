// Package track implements mixing channels and their registry. Each track
// guards its own state with a lock that is held only long enough to mutate a
// field or to construct a snapshot, never while another track's lock is held,
// so the audio thread can walk all tracks without risking lock-order
// inversions.
package track

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/kaiku-daw/kaiku"
)

// ID identifies a track within a registry.
type ID uint64

// MasterID is the reserved id of the master track, created by the registry
// itself; it cannot be created or removed through the public operations.
const MasterID ID = 0

// Type tells what kind of channel a track is. Only the mixing engine treats
// Master specially; the other types are routing hints for the host.
type Type int

const (
	Audio Type = iota
	MIDI
	Return
	Group
	Master
)

const (
	// MinVolumeDB and MaxVolumeDB bound the volume fader.
	MinVolumeDB = -96.0
	MaxVolumeDB = 6.0
)

func (t Type) String() string {
	switch t {
	case Audio:
		return "audio"
	case MIDI:
		return "midi"
	case Return:
		return "return"
	case Group:
		return "group"
	case Master:
		return "master"
	}
	return "unknown"
}

// ParseType converts a type name to a Type. Unknown names are an error so
// that a typo in an API call does not silently create an audio track.
func ParseType(s string) (Type, error) {
	switch s {
	case "audio":
		return Audio, nil
	case "midi":
		return MIDI, nil
	case "return":
		return Return, nil
	case "group":
		return Group, nil
	case "master":
		return Master, nil
	}
	return Audio, fmt.Errorf("unknown track type: %q", s)
}

type (
	// Track is one mixing channel: clips placed on its timeline, fader state
	// and the effect chain, plus a peak meter fed by the audio thread. All
	// fields are guarded by mu except the meter, which is a lock-free atomic
	// so the audio thread can publish peaks without taking the lock again.
	Track struct {
		mu sync.Mutex

		id    ID
		typ   Type
		name  string
		armed bool
		mute  bool
		solo  bool

		volumeDB float32
		pan      float32

		clips     []kaiku.TimelineClip
		midiClips []kaiku.TimelineMIDIClip
		fxChain   []uint64

		// max abs sample since last PeakDB call, stored as float32 bits
		peakBits atomic.Uint32
	}

	// Snapshot is an owned copy of the track state the mixing loop needs,
	// captured once per audio buffer. The clip slices are copies but the Clip
	// pointers are shared; audio clips are immutable and MIDI clips are
	// replaced wholesale on edit, so the shared pointers stay valid for the
	// lifetime of the snapshot.
	Snapshot struct {
		ID        ID
		Type      Type
		Mute      bool
		Solo      bool
		Armed     bool
		Gain      float32
		PanLeft   float32
		PanRight  float32
		Clips     []kaiku.TimelineClip
		MIDIClips []kaiku.TimelineMIDIClip
		FXChain   []uint64
	}

	// Info is the externally visible track state, for the host API.
	Info struct {
		ID       ID
		Name     string
		Type     Type
		VolumeDB float32
		Pan      float32
		Mute     bool
		Solo     bool
		Armed    bool
	}
)

func newTrack(id ID, typ Type, name string) *Track {
	return &Track{id: id, typ: typ, name: name}
}

func (t *Track) ID() ID { return t.id }

func (t *Track) Info() Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Info{
		ID:       t.id,
		Name:     t.name,
		Type:     t.typ,
		VolumeDB: t.volumeDB,
		Pan:      t.pan,
		Mute:     t.mute,
		Solo:     t.solo,
		Armed:    t.armed,
	}
}

func (t *Track) Rename(name string) {
	t.mu.Lock()
	t.name = name
	t.mu.Unlock()
}

// SetVolumeDB sets the fader, clamped to [-96, +6] dB.
func (t *Track) SetVolumeDB(db float32) {
	if db < MinVolumeDB {
		db = MinVolumeDB
	} else if db > MaxVolumeDB {
		db = MaxVolumeDB
	}
	t.mu.Lock()
	t.volumeDB = db
	t.mu.Unlock()
}

func (t *Track) VolumeDB() float32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.volumeDB
}

// SetPan sets the pan position, clamped to [-1, +1].
func (t *Track) SetPan(pan float32) {
	if pan < -1 {
		pan = -1
	} else if pan > 1 {
		pan = 1
	}
	t.mu.Lock()
	t.pan = pan
	t.mu.Unlock()
}

func (t *Track) Pan() float32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pan
}

func (t *Track) SetMute(mute bool) {
	t.mu.Lock()
	t.mute = mute
	t.mu.Unlock()
}

func (t *Track) SetSolo(solo bool) {
	t.mu.Lock()
	t.solo = solo
	t.mu.Unlock()
}

func (t *Track) SetArmed(armed bool) {
	t.mu.Lock()
	t.armed = armed
	t.mu.Unlock()
}

func (t *Track) Solo() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.solo
}

// AddClip places an audio clip on the track's timeline.
func (t *Track) AddClip(tc kaiku.TimelineClip) {
	t.mu.Lock()
	t.clips = append(t.clips, tc)
	t.mu.Unlock()
}

// RemoveClip removes a placed audio clip by id.
func (t *Track) RemoveClip(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, c := range t.clips {
		if c.ID == id {
			t.clips = append(t.clips[:i], t.clips[i+1:]...)
			return true
		}
	}
	return false
}

// MoveClip changes the start time of a placed audio clip.
func (t *Track) MoveClip(id uint64, startTime float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.clips {
		if t.clips[i].ID == id {
			t.clips[i].StartTime = startTime
			return true
		}
	}
	return false
}

// TrimClip sets the offset and duration of a placed audio clip.
func (t *Track) TrimClip(id uint64, offset, duration float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.clips {
		if t.clips[i].ID == id {
			t.clips[i].Offset = offset
			t.clips[i].Duration = duration
			return true
		}
	}
	return false
}

// AddMIDIClip places a MIDI clip on the track's timeline.
func (t *Track) AddMIDIClip(tc kaiku.TimelineMIDIClip) {
	t.mu.Lock()
	t.midiClips = append(t.midiClips, tc)
	t.mu.Unlock()
}

// RemoveMIDIClip removes a placed MIDI clip by id.
func (t *Track) RemoveMIDIClip(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, c := range t.midiClips {
		if c.ID == id {
			t.midiClips = append(t.midiClips[:i], t.midiClips[i+1:]...)
			return true
		}
	}
	return false
}

// MIDIClipByID returns the current clip pointer of a placed MIDI clip.
func (t *Track) MIDIClipByID(id uint64) (*kaiku.MIDIClip, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.midiClips {
		if c.ID == id {
			return c.Clip, true
		}
	}
	return nil, false
}

// ReplaceMIDIClip swaps the clip pointer of a placed MIDI clip. This is the
// publication point of the copy-on-write edit cycle: the caller edits a copy
// and then replaces the shared pointer here, under the track lock.
func (t *Track) ReplaceMIDIClip(id uint64, clip *kaiku.MIDIClip) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.midiClips {
		if t.midiClips[i].ID == id {
			t.midiClips[i].Clip = clip
			return true
		}
	}
	return false
}

// PushEffect appends an effect instance id to the FX chain.
func (t *Track) PushEffect(effectID uint64) {
	t.mu.Lock()
	t.fxChain = append(t.fxChain, effectID)
	t.mu.Unlock()
}

// RemoveEffect removes an effect instance id from the FX chain.
func (t *Track) RemoveEffect(effectID uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, id := range t.fxChain {
		if id == effectID {
			t.fxChain = append(t.fxChain[:i], t.fxChain[i+1:]...)
			return true
		}
	}
	return false
}

// Effects returns a copy of the FX chain id list.
func (t *Track) Effects() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]uint64(nil), t.fxChain...)
}

// Snapshot captures the state the mixing loop needs, including the linear
// gain and the equal-power pan gain pair, so the per-sample loop does no
// float math on fader values. The pan pair is normalized to unity at center,
// so a track at default volume and pan passes audio through unchanged; hard
// left or right boosts the remaining channel by 3 dB.
func (t *Track) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	angle := (float64(t.pan) + 1) * math.Pi / 4
	return Snapshot{
		ID:        t.id,
		Type:      t.typ,
		Mute:      t.mute,
		Solo:      t.solo,
		Armed:     t.armed,
		Gain:      float32(math.Pow(10, float64(t.volumeDB)/20)),
		PanLeft:   float32(math.Cos(angle) * math.Sqrt2),
		PanRight:  float32(math.Sin(angle) * math.Sqrt2),
		Clips:     append([]kaiku.TimelineClip(nil), t.clips...),
		MIDIClips: append([]kaiku.TimelineMIDIClip(nil), t.midiClips...),
		FXChain:   append([]uint64(nil), t.fxChain...),
	}
}

// AccumulatePeak raises the peak meter to abs if it is higher than the
// current value. Called from the audio thread once per buffer with the
// buffer's maximum; lock-free so the audio thread never waits here.
func (t *Track) AccumulatePeak(abs float32) {
	for {
		old := t.peakBits.Load()
		if math.Float32frombits(old) >= abs {
			return
		}
		if t.peakBits.CompareAndSwap(old, math.Float32bits(abs)) {
			return
		}
	}
}

// PeakDB returns the peak level since the previous call, in dB, and resets
// the meter. Silence reads as -inf dB, reported as MinVolumeDB.
func (t *Track) PeakDB() float32 {
	peak := math.Float32frombits(t.peakBits.Swap(0))
	if peak <= 0 {
		return MinVolumeDB
	}
	db := 20 * math.Log10(float64(peak))
	if db < MinVolumeDB {
		return MinVolumeDB
	}
	return float32(db)
}
