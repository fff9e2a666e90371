package effects

import (
	"fmt"
	"sort"
	"sync"
)

// Handle wraps an effect instance with the mutex that serializes parameter
// changes against the audio thread. The audio thread uses TryLock and skips
// the effect for the buffer when a control-thread edit holds the lock, so the
// callback never blocks on the UI.
type Handle struct {
	id     uint64
	effect Effect
	mu     sync.Mutex
}

func (h *Handle) ID() uint64   { return h.id }
func (h *Handle) Name() string { return h.effect.Name() }

// TryLock attempts to take the processing lock without blocking.
func (h *Handle) TryLock() bool { return h.mu.TryLock() }
func (h *Handle) Unlock()       { h.mu.Unlock() }

// ProcessFrame runs the effect on one stereo frame. The caller must hold the
// lock.
func (h *Handle) ProcessFrame(l, r float32) (float32, float32) {
	return h.effect.ProcessFrame(l, r)
}

func (h *Handle) Reset() {
	h.mu.Lock()
	h.effect.Reset()
	h.mu.Unlock()
}

func (h *Handle) SetParameter(name string, value float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.effect.SetParameter(name, value)
}

func (h *Handle) Parameters() map[string]float32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.effect.Parameters()
}

// Registry owns every live effect instance, keyed by id. Ids are never
// reused, so a stale id in a track's chain resolves to nothing rather than to
// a different effect.
type Registry struct {
	mu      sync.Mutex
	effects map[uint64]*Handle
	nextID  uint64
}

func NewRegistry() *Registry {
	return &Registry{effects: make(map[uint64]*Handle), nextID: 1}
}

// Create instantiates a built-in effect and returns its handle.
func (r *Registry) Create(typeName string) (*Handle, error) {
	e, err := New(typeName)
	if err != nil {
		return nil, err
	}
	return r.Add(e), nil
}

// Add registers an already-constructed effect, e.g. a plugin wrapper.
func (r *Registry) Add(e Effect) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := &Handle{id: r.nextID, effect: e}
	r.nextID++
	r.effects[h.id] = h
	return h
}

func (r *Registry) Remove(id uint64) error {
	r.mu.Lock()
	h, ok := r.effects[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("no effect with id %d", id)
	}
	delete(r.effects, id)
	r.mu.Unlock()
	// plugin wrappers hold native resources
	if c, ok := h.effect.(interface{ Close() }); ok {
		h.mu.Lock()
		c.Close()
		h.mu.Unlock()
	}
	return nil
}

func (r *Registry) Get(id uint64) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.effects[id]
	return h, ok
}

// Resolve maps a chain of effect ids to live handles, dropping ids whose
// effect has been removed. The mixing loop calls this once per buffer.
func (r *Registry) Resolve(ids []uint64, dst []*Handle) []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	dst = dst[:0]
	for _, id := range ids {
		if h, ok := r.effects[id]; ok {
			dst = append(dst, h)
		}
	}
	return dst
}

// All returns every live handle in id order.
func (r *Registry) All() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := make([]*Handle, 0, len(r.effects))
	for _, h := range r.effects {
		ret = append(ret, h)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].id < ret[j].id })
	return ret
}
