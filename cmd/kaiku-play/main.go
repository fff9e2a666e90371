package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/kaiku-daw/kaiku"
	"github.com/kaiku-daw/kaiku/audiofile"
	"github.com/kaiku-daw/kaiku/engine"
	"github.com/kaiku-daw/kaiku/midiin"
	"github.com/kaiku-daw/kaiku/oto"
	"github.com/kaiku-daw/kaiku/project"
	"github.com/kaiku-daw/kaiku/track"
)

func main() {
	tempo := flag.Float64("tempo", 120, "Tempo in BPM.")
	metronome := flag.Bool("metronome", false, "Enable the metronome click.")
	midiPrefix := flag.String("midi", "", "Open the first MIDI input device whose name starts with this prefix and play its notes on a synth track.")
	help := flag.Bool("h", false, "Show help.")
	flag.Usage = printUsage
	flag.Parse()
	if flag.NArg() == 0 || *help {
		flag.Usage()
		os.Exit(0)
	}

	opts := engine.DefaultOptions()
	opts.Tempo = *tempo
	opts.Metronome = *metronome
	g := engine.NewGraph(opts)

	arg := flag.Arg(0)
	if info, err := os.Stat(arg); err == nil && info.IsDir() {
		data, err := project.Load(arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not load project %v: %v\n", arg, err)
			os.Exit(1)
		}
		if err := project.Apply(data, g, arg); err != nil {
			fmt.Fprintf(os.Stderr, "could not apply project %v: %v\n", arg, err)
			os.Exit(1)
		}
	} else {
		// treat every argument as an audio file, placed back to back on one track
		t, err := g.Tracks.Create(track.Audio, "playback")
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not create track: %v\n", err)
			os.Exit(1)
		}
		var at float64
		for _, path := range flag.Args() {
			clip, err := audiofile.Load(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "could not load %v: %v\n", path, err)
				os.Exit(1)
			}
			if _, err := g.PlaceClip(t.ID(), clip, at); err != nil {
				fmt.Fprintf(os.Stderr, "could not place %v: %v\n", path, err)
				os.Exit(1)
			}
			at += clip.Duration()
		}
	}

	var midiContext *midiin.RTMIDIContext
	if *midiPrefix != "" {
		t, err := g.Tracks.Create(track.MIDI, "live input")
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not create MIDI track: %v\n", err)
			os.Exit(1)
		}
		g.Synths.Create(t.ID())
		midiContext = midiin.NewContext(func(on bool, note, velocity byte) {
			if on {
				g.NoteOn(t.ID(), note, velocity)
			} else {
				g.NoteOff(t.ID(), note)
			}
		})
		defer midiContext.Close()
		if device, ok := kaiku.FindMIDIDeviceByPrefix(midiContext, *midiPrefix); ok {
			if err := device.Open(); err != nil {
				fmt.Fprintf(os.Stderr, "could not open MIDI input %v: %v\n", device, err)
			}
		} else {
			fmt.Fprintf(os.Stderr, "no MIDI input starting with %q found\n", *midiPrefix)
		}
	}

	audioContext, err := oto.NewContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not acquire audio context: %v\n", err)
		os.Exit(1)
	}
	defer audioContext.Close()
	if err := g.Start(audioContext); err != nil {
		fmt.Fprintf(os.Stderr, "could not open output stream: %v\n", err)
		os.Exit(1)
	}
	defer g.Close()
	if err := g.Play(); err != nil {
		fmt.Fprintf(os.Stderr, "could not start playback: %v\n", err)
		os.Exit(1)
	}

	duration := g.ProjectDuration()
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	deadline := time.After(time.Duration(duration * float64(time.Second)))
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	// a live MIDI session has no natural end; keep playing until interrupted
	endless := *midiPrefix != ""
	for {
		select {
		case <-interrupt:
			g.Stop()
			return
		case <-deadline:
			if !endless {
				g.Stop()
				return
			}
		case <-ticker.C:
			fmt.Printf("\r%7.2f s", g.PlayheadPosition())
		}
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Plays a project folder or audio files.\nUsage: %s [flags] project-dir | file.wav ...\n", os.Args[0])
	flag.PrintDefaults()
}
