package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/sunholo/ailang/internal/verify"
)

// newCheckCmd is a faster sibling of verify: it skips Gate 9 (law
// verification, the slowest gate since it re-solves once per trait impl)
// to trade completeness for a quick local pass.
func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Quickly check a root file, skipping law verification",
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

			vc, err := p.cfg.VerifyConfig()
			if err != nil {
				return err
			}
			vc.Log = p.log
			if vc.SkipGates == nil {
				vc.SkipGates = map[string]bool{}
			}
			vc.SkipGates["9"] = true

			run, err := verify.New(e, vc).VerifyAll(context.Background())
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
}
