package kaiku

import "sort"

type (
	// MIDIEvent is a single note-on or note-off event. Time is in samples,
	// relative to the start of the clip the event belongs to (or to the start
	// of a recording, while one is being captured).
	MIDIEvent struct {
		On       bool
		Note     byte
		Velocity byte
		Time     int64
	}

	// MIDIClip is a list of note events with a total duration in samples.
	// MIDIClips are edited copy-on-write: every mutating operation returns a
	// fresh clip and leaves the receiver untouched. A track holds a *MIDIClip
	// and swaps the pointer under its own lock, so the audio thread can keep
	// reading a captured pointer without ever observing a partial edit.
	MIDIClip struct {
		DurationSamples int64
		Events          []MIDIEvent
	}
)

// NewMIDIClip creates an empty clip of the given length.
func NewMIDIClip(durationSamples int64) *MIDIClip {
	return &MIDIClip{DurationSamples: durationSamples}
}

// MIDIClipFromEvents creates a clip from recorded events. The duration is the
// time of the last event, rounded up; events are sorted by time.
func MIDIClipFromEvents(events []MIDIEvent) *MIDIClip {
	c := &MIDIClip{Events: append([]MIDIEvent(nil), events...)}
	sort.SliceStable(c.Events, func(i, j int) bool { return c.Events[i].Time < c.Events[j].Time })
	if n := len(c.Events); n > 0 {
		c.DurationSamples = c.Events[n-1].Time + 1
	}
	return c
}

// Copy makes a deep copy of the clip.
func (c *MIDIClip) Copy() *MIDIClip {
	return &MIDIClip{
		DurationSamples: c.DurationSamples,
		Events:          append([]MIDIEvent(nil), c.Events...),
	}
}

// Duration returns the clip length in seconds at the engine sample rate.
func (c *MIDIClip) Duration() float64 {
	return float64(c.DurationSamples) / SampleRate
}

// WithNote returns a copy of the clip with a note-on/note-off pair added for
// the given note, starting at time and lasting for duration samples.
func (c *MIDIClip) WithNote(note, velocity byte, time, duration int64) *MIDIClip {
	ret := c.Copy()
	ret.Events = append(ret.Events,
		MIDIEvent{On: true, Note: note, Velocity: velocity, Time: time},
		MIDIEvent{On: false, Note: note, Velocity: 64, Time: time + duration},
	)
	sort.SliceStable(ret.Events, func(i, j int) bool { return ret.Events[i].Time < ret.Events[j].Time })
	if end := time + duration + 1; end > ret.DurationSamples {
		ret.DurationSamples = end
	}
	return ret
}

// WithoutNote returns a copy of the clip with all events for the given note
// whose note-on falls at time removed. Removing a note-on also removes the
// following note-off of the same note.
func (c *MIDIClip) WithoutNote(note byte, time int64) *MIDIClip {
	ret := &MIDIClip{DurationSamples: c.DurationSamples}
	skipOff := false
	for _, ev := range c.Events {
		if ev.On && ev.Note == note && ev.Time == time {
			skipOff = true
			continue
		}
		if skipOff && !ev.On && ev.Note == note {
			skipOff = false
			continue
		}
		ret.Events = append(ret.Events, ev)
	}
	return ret
}

// Cleared returns a copy of the clip with all events removed.
func (c *MIDIClip) Cleared() *MIDIClip {
	return &MIDIClip{DurationSamples: c.DurationSamples}
}

// Quantized returns a copy of the clip with every event time snapped to the
// nearest multiple of grid samples. grid <= 0 returns an unmodified copy.
func (c *MIDIClip) Quantized(grid int64) *MIDIClip {
	ret := c.Copy()
	if grid <= 0 {
		return ret
	}
	for i := range ret.Events {
		t := ret.Events[i].Time
		ret.Events[i].Time = (t + grid/2) / grid * grid
	}
	sort.SliceStable(ret.Events, func(i, j int) bool { return ret.Events[i].Time < ret.Events[j].Time })
	return ret
}

// EventsAt yields the events whose time matches exactly the given sample
// offset from the clip start.
func (c *MIDIClip) EventsAt(sample int64, yield func(MIDIEvent)) {
	// events are sorted; binary search for the first match
	i := sort.Search(len(c.Events), func(i int) bool { return c.Events[i].Time >= sample })
	for ; i < len(c.Events) && c.Events[i].Time == sample; i++ {
		yield(c.Events[i])
	}
}
