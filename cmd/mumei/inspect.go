package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sunholo/ailang/internal/tui"
)

// newInspectCmd runs the full pipeline over a root file and drops into an
// interactive inspector over the resulting verify.RunResult: a liner
// line-editor REPL by default, or a bubbletea full-screen browser with
// --full.
func newInspectCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Run verification and explore the per-atom results interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPipeline()
			if err != nil {
				return err
			}
			e, err := p.resolveAndMono(args[0])
			if err != nil {
				return err
			}
			run, err := p.verify(e)
			if err != nil {
				return err
			}

			if full {
				return tui.Run(run)
			}
			tui.New(run).Start(os.Stdin, os.Stdout)
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "use the bubbletea full-screen inspector instead of the line-editor REPL")
	return cmd
}
