package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <file>",
		Short: "Run the full gate pipeline (0-9) over a root file",
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
			printRun(run)
			if !run.Passed {
				os.Exit(1)
			}
			return nil
		},
	}
	return cmd
}
