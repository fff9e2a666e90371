package track

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrMasterTrack is returned when an operation would create a second
	// master track or remove the existing one.
	ErrMasterTrack = errors.New("the master track is created internally and cannot be created or removed")

	// ErrNotFound is returned when a track id does not exist.
	ErrNotFound = errors.New("track not found")
)

// Registry owns all tracks of a graph, including the mandatory master track
// at MasterID. The registry lock guards only the id bookkeeping; the returned
// *Track handles have their own locks, so callers (and the mixing loop) can
// work on tracks one at a time without holding the registry lock.
type Registry struct {
	mu     sync.Mutex
	tracks map[ID]*Track
	nextID ID

	nextClipID uint64
}

// NewRegistry creates a registry with the master track already present.
func NewRegistry() *Registry {
	r := &Registry{
		tracks: map[ID]*Track{MasterID: newTrack(MasterID, Master, "Master")},
		nextID: MasterID + 1,
	}
	return r
}

// Create allocates a new track with default state: 0 dB, center pan,
// unmuted, not soloed, not armed, empty clip and FX lists. Master type is
// rejected; only the registry-created master exists.
func (r *Registry) Create(typ Type, name string) (*Track, error) {
	if typ == Master {
		return nil, ErrMasterTrack
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	t := newTrack(id, typ, name)
	r.tracks[id] = t
	return t, nil
}

// Remove drops a track. Removing the master track is refused.
func (r *Registry) Remove(id ID) error {
	if id == MasterID {
		return ErrMasterTrack
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tracks[id]; !ok {
		return fmt.Errorf("remove track %d: %w", id, ErrNotFound)
	}
	delete(r.tracks, id)
	return nil
}

// Get returns the track with the given id.
func (r *Registry) Get(id ID) (*Track, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tracks[id]
	return t, ok
}

// Master returns the master track.
func (r *Registry) Master() *Track {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tracks[MasterID]
}

// All returns all tracks in id order, master included.
func (r *Registry) All() []*Track {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := make([]*Track, 0, len(r.tracks))
	for _, t := range r.tracks {
		ret = append(ret, t)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].id < ret[j].id })
	return ret
}

// HasSolo reports whether any non-master track is soloed. The mixing loop
// reads this once per buffer to decide the mute/solo policy.
func (r *Registry) HasSolo() bool {
	for _, t := range r.All() {
		if t.id != MasterID && t.Solo() {
			return true
		}
	}
	return false
}

// NextClipID allocates a timeline clip id, unique across all tracks.
func (r *Registry) NextClipID() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextClipID
	r.nextClipID++
	return id
}

// Duplicate creates a new track with the same type, fader settings and clip
// placements as the source. The FX chain is left empty: effect instances are
// owned 1:1 by a chain slot, so the caller must clone the effects and push
// the new ids. Returns the new track.
func (r *Registry) Duplicate(id ID) (*Track, error) {
	src, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("duplicate track %d: %w", id, ErrNotFound)
	}
	if src.id == MasterID {
		return nil, ErrMasterTrack
	}
	info := src.Info()
	dst, err := r.Create(info.Type, info.Name+" copy")
	if err != nil {
		return nil, err
	}
	dst.SetVolumeDB(info.VolumeDB)
	dst.SetPan(info.Pan)
	dst.SetMute(info.Mute)
	dst.SetArmed(info.Armed)
	snap := src.Snapshot()
	for _, c := range snap.Clips {
		c.ID = r.NextClipID()
		dst.AddClip(c)
	}
	for _, c := range snap.MIDIClips {
		c.ID = r.NextClipID()
		c.Clip = c.Clip.Copy()
		dst.AddMIDIClip(c)
	}
	return dst, nil
}
