// Command puregit is a thin cobra CLI exercising the engine: enough
// plumbing (hash-object, cat-file) and porcelain (init, fetch, push)
// to drive the object store, ref store, and transport stack from a
// terminal instead of only from tests.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	C string
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "puregit",
		Short:         "a from-scratch git implementation",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cfg := &globalFlags{}
	cmd.PersistentFlags().StringVarP(&cfg.C, "C", "C", "", "run as if started in the given path instead of the current working directory")

	// porcelain
	cmd.AddCommand(newInitCmd(cfg))
	cmd.AddCommand(newFetchCmd(cfg))
	cmd.AddCommand(newPushCmd(cfg))

	// plumbing
	cmd.AddCommand(newHashObjectCmd(cfg))
	cmd.AddCommand(newCatFileCmd(cfg))

	return cmd
}
