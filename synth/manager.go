package synth

import (
	"sync"

	"github.com/kaiku-daw/kaiku/track"
)

// Manager owns the per-track synthesizers. The mixing loop resolves a
// track's synth once per buffer with Get; everything else goes through the
// manager so callers never hold a stale synth across a Remove.
type Manager struct {
	mu     sync.Mutex
	synths map[track.ID]*TrackSynth
}

func NewManager() *Manager {
	return &Manager{synths: make(map[track.ID]*TrackSynth)}
}

// Create makes a synth for the track, replacing any existing one.
func (m *Manager) Create(id track.ID) *TrackSynth {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := New()
	m.synths[id] = s
	return s
}

func (m *Manager) Remove(id track.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.synths, id)
}

func (m *Manager) Get(id track.ID) (*TrackSynth, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.synths[id]
	return s, ok
}

func (m *Manager) Has(id track.ID) bool {
	_, ok := m.Get(id)
	return ok
}

// NoteOn triggers a note on the track's synth, for live MIDI input.
func (m *Manager) NoteOn(id track.ID, note, velocity byte) {
	if s, ok := m.Get(id); ok {
		s.Lock()
		s.NoteOn(note, velocity)
		s.Unlock()
	}
}

func (m *Manager) NoteOff(id track.ID, note byte) {
	if s, ok := m.Get(id); ok {
		s.Lock()
		s.NoteOff(note)
		s.Unlock()
	}
}

// AllNotesOff releases every voice on every synth, used on transport stop.
func (m *Manager) AllNotesOff() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.synths {
		s.Lock()
		s.AllNotesOff()
		s.Unlock()
	}
}

// SetParameter updates one parameter on the track's synth.
func (m *Manager) SetParameter(id track.ID, key, value string) error {
	s, ok := m.Get(id)
	if !ok {
		return track.ErrNotFound
	}
	return s.SetParameter(key, value)
}

// Copy creates a synth for dst with the same parameters as src's synth.
// Voice state is not copied; the new synth starts silent.
func (m *Manager) Copy(src, dst track.ID) bool {
	s, ok := m.Get(src)
	if !ok {
		return false
	}
	params := s.Parameters()
	fresh := New()
	for key, value := range params {
		fresh.SetParameter(key, value)
	}
	m.mu.Lock()
	m.synths[dst] = fresh
	m.mu.Unlock()
	return true
}
