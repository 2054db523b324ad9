package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/puregit/git/repository"
)

func newInitCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "create an empty repository",
		Args:  cobra.MaximumNArgs(1),
	}

	bare := cmd.Flags().Bool("bare", false, "create a bare repository with no working tree")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		return initCmd(cmd.OutOrStdout(), dir, *bare)
	}

	return cmd
}

func initCmd(out io.Writer, dir string, bare bool) error {
	r, err := repository.InitRepositoryWithOptions(dir, repository.InitOptions{IsBare: bare})
	if err != nil {
		return err
	}
	defer r.Close() //nolint:errcheck // nothing useful to do with a close error here

	fmt.Fprintln(out, "Initialized empty Git repository in", r.GitDirPath())
	return nil
}
