// Command mumei is the verifying compiler's entry point: build, verify,
// check, inspect, and serve.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Version, Commit, and BuildTime are set by -ldflags at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", red("Error"), err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mumei",
		Short: "Verifying compiler for the mumei contract language",
		Long:  bold("mumei") + " — parse, resolve, monomorphize, and verify mumei contracts against an SMT solver.",
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newBuildCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newServeCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mumei %s\n", bold(Version))
			if Commit != "unknown" {
				fmt.Fprintf(out, "Commit: %s\n", Commit)
			}
			if BuildTime != "unknown" {
				fmt.Fprintf(out, "Built:  %s\n", BuildTime)
			}
			return nil
		},
	}
}
