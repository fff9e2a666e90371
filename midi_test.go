package kaiku_test

import (
	"testing"

	"github.com/kaiku-daw/kaiku"
)

func TestWithNoteLeavesOriginalUntouched(t *testing.T) {
	orig := kaiku.NewMIDIClip(48000)
	edited := orig.WithNote(60, 100, 1000, 500)
	if len(orig.Events) != 0 {
		t.Fatalf("original clip was mutated: %d events", len(orig.Events))
	}
	if len(edited.Events) != 2 {
		t.Fatalf("expected note on/off pair, got %d events", len(edited.Events))
	}
	on, off := edited.Events[0], edited.Events[1]
	if !on.On || on.Note != 60 || on.Velocity != 100 || on.Time != 1000 {
		t.Errorf("unexpected note on: %+v", on)
	}
	if off.On || off.Note != 60 || off.Time != 1500 {
		t.Errorf("unexpected note off: %+v", off)
	}
}

func TestWithNoteExtendsDuration(t *testing.T) {
	c := kaiku.NewMIDIClip(100).WithNote(60, 100, 50, 100)
	if c.DurationSamples != 151 {
		t.Errorf("expected duration 151, got %d", c.DurationSamples)
	}
}

func TestWithoutNoteRemovesPair(t *testing.T) {
	c := kaiku.NewMIDIClip(48000).
		WithNote(60, 100, 0, 100).
		WithNote(64, 100, 50, 100)
	c = c.WithoutNote(60, 0)
	if len(c.Events) != 2 {
		t.Fatalf("expected 2 events left, got %d", len(c.Events))
	}
	for _, ev := range c.Events {
		if ev.Note != 64 {
			t.Errorf("note 60 event survived: %+v", ev)
		}
	}
}

func TestQuantizedSnapsToNearestGrid(t *testing.T) {
	c := kaiku.MIDIClipFromEvents([]kaiku.MIDIEvent{
		{On: true, Note: 60, Velocity: 100, Time: 2490},
		{On: true, Note: 62, Velocity: 100, Time: 2510},
		{On: true, Note: 64, Velocity: 100, Time: 1250},
	})
	q := c.Quantized(2500)
	times := map[byte]int64{}
	for _, ev := range q.Events {
		times[ev.Note] = ev.Time
	}
	if times[60] != 2500 || times[62] != 2500 || times[64] != 2500 {
		t.Errorf("unexpected quantized times: %v", times)
	}
	// original untouched
	if c.Events[0].Time == 2500 && c.Events[1].Time == 2500 {
		t.Error("quantize mutated the original clip")
	}
}

func TestQuantizedZeroGridIsIdentity(t *testing.T) {
	c := kaiku.MIDIClipFromEvents([]kaiku.MIDIEvent{{On: true, Note: 60, Time: 123}})
	q := c.Quantized(0)
	if q.Events[0].Time != 123 {
		t.Errorf("grid 0 changed event time to %d", q.Events[0].Time)
	}
}

func TestEventsAtYieldsExactMatches(t *testing.T) {
	c := kaiku.MIDIClipFromEvents([]kaiku.MIDIEvent{
		{On: true, Note: 60, Time: 100},
		{On: true, Note: 64, Time: 100},
		{On: true, Note: 67, Time: 200},
	})
	var got []byte
	c.EventsAt(100, func(ev kaiku.MIDIEvent) { got = append(got, ev.Note) })
	if len(got) != 2 || got[0] != 60 || got[1] != 64 {
		t.Errorf("expected notes 60 and 64 at sample 100, got %v", got)
	}
	got = got[:0]
	c.EventsAt(150, func(ev kaiku.MIDIEvent) { got = append(got, ev.Note) })
	if len(got) != 0 {
		t.Errorf("expected no events at sample 150, got %v", got)
	}
}

func TestMIDIClipFromEventsSorts(t *testing.T) {
	c := kaiku.MIDIClipFromEvents([]kaiku.MIDIEvent{
		{On: true, Note: 62, Time: 300},
		{On: true, Note: 60, Time: 100},
	})
	if c.Events[0].Time != 100 || c.Events[1].Time != 300 {
		t.Errorf("events not sorted: %+v", c.Events)
	}
	if c.DurationSamples != 301 {
		t.Errorf("expected duration 301, got %d", c.DurationSamples)
	}
}
