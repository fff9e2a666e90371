package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kaiku-daw/kaiku/engine"
	"github.com/kaiku-daw/kaiku/project"
)

func main() {
	output := flag.String("o", "out.wav", "Output .wav file path.")
	bits := flag.Int("bits", 16, "Output bit depth: 16, 24 or 32 (32 = float).")
	stems := flag.String("stems", "", "Also export one .wav per track into this directory.")
	help := flag.Bool("h", false, "Show help.")
	flag.Usage = printUsage
	flag.Parse()
	if flag.NArg() != 1 || *help {
		flag.Usage()
		os.Exit(0)
	}

	dir := flag.Arg(0)
	data, err := project.Load(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not load project %v: %v\n", dir, err)
		os.Exit(1)
	}
	g := engine.NewGraph(engine.DefaultOptions())
	if err := project.Apply(data, g, dir); err != nil {
		fmt.Fprintf(os.Stderr, "could not apply project %v: %v\n", dir, err)
		os.Exit(1)
	}

	prog := engine.NewProgress()
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fmt.Printf("\rExporting: %3d%%", prog.Percent())
			}
		}
	}()

	err = g.ExportWAV(*output, *bits, prog)
	close(done)
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", *output)

	if *stems != "" {
		if err := os.MkdirAll(*stems, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "could not create stems directory: %v\n", err)
			os.Exit(1)
		}
		if err := g.ExportStems(*stems, *bits, nil); err != nil {
			fmt.Fprintf(os.Stderr, "stem export failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote stems to %s\n", *stems)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Renders a project folder to a .wav file.\nUsage: %s [flags] project-dir\n", os.Args[0])
	flag.PrintDefaults()
}
