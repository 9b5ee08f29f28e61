package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/sunholo/ailang/internal/emit"
)

func newBuildCmd() *cobra.Command {
	var watch bool
	var outPath string

	cmd := &cobra.Command{
		Use:   "build <file>",
		Short: "Run the full pipeline and emit a verified handoff program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch {
				return runBuildWatch(args[0], outPath)
			}
			return runBuildOnce(args[0], outPath)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "rerun the pipeline when a file in the source file's directory is written or created")
	cmd.Flags().StringVar(&outPath, "out", "", "write the emitted Program JSON to this path instead of stdout")
	return cmd
}

func runBuildOnce(rootPath, outPath string) error {
	p, err := newPipeline()
	if err != nil {
		return err
	}
	e, err := p.resolveAndMono(rootPath)
	if err != nil {
		return err
	}
	run, err := p.verify(e)
	if err != nil {
		return err
	}
	printRun(run)
	if !run.Passed {
		os.Exit(1)
	}

	program := emit.Build(e)
	data, err := json.MarshalIndent(program, "", "  ")
	if err != nil {
		return err
	}
	if outPath == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("%s wrote %s (%s)\n", green("✓"), outPath, humanize.Bytes(uint64(len(data))))
	return nil
}

// runBuildWatch reruns runBuildOnce whenever rootPath (or its directory,
// since imports are siblings on disk) changes, debounced the way the
// pack's fsnotify watchers coalesce bursts of writes from one save.
func runBuildWatch(rootPath, outPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(rootPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	fmt.Printf("%s watching %s for changes (ctrl+c to stop)\n", cyan("→"), dir)
	runOnceIgnoringExit(rootPath, outPath)

	const debounce = 150 * time.Millisecond
	var timer *time.Timer
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				fmt.Printf("\n%s change detected, rebuilding...\n", yellow("⟳"))
				runOnceIgnoringExit(rootPath, outPath)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "%s watcher error: %v\n", red("Error"), err)
		}
	}
}

// runOnceIgnoringExit runs the build pipeline without letting a failed
// verification exit the watch process: os.Exit inside runBuildOnce would
// kill the watcher too, so failures are reported and the loop continues.
func runOnceIgnoringExit(rootPath, outPath string) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := runBuildOnceNoExit(rootPath, outPath); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", red("Error"), err)
		}
	}()
	<-done
}

func runBuildOnceNoExit(rootPath, outPath string) error {
	p, err := newPipeline()
	if err != nil {
		return err
	}
	e, err := p.resolveAndMono(rootPath)
	if err != nil {
		return err
	}
	run, err := p.verify(e)
	if err != nil {
		return err
	}
	printRun(run)
	if !run.Passed {
		return nil
	}

	program := emit.Build(e)
	data, err := json.MarshalIndent(program, "", "  ")
	if err != nil {
		return err
	}
	if outPath == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("%s wrote %s (%s)\n", green("✓"), outPath, humanize.Bytes(uint64(len(data))))
	return nil
}
