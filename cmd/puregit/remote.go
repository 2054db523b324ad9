package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/puregit/git/repository"
)

func newFetchCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch REMOTE",
		Short: "download objects and refs from another repository",
		Args:  cobra.ExactArgs(1),
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return fetchCmd(cmd.OutOrStdout(), cfg, args[0])
	}
	return cmd
}

func fetchCmd(out io.Writer, cfg *globalFlags, remoteName string) error {
	r, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer r.Close() //nolint:errcheck // nothing useful to do with a close error here

	ctx := context.Background()
	url, ok := r.Config().RemoteURL(remoteName)
	if !ok {
		return xerrors.Errorf("no such remote %q", remoteName)
	}
	tr, err := repository.OpenTransport(ctx, url)
	if err != nil {
		return xerrors.Errorf("could not connect to %s: %w", url, err)
	}
	defer tr.Close() //nolint:errcheck // nothing useful to do with a close error here

	result, err := r.Fetch(ctx, remoteName, tr)
	if err != nil {
		return err
	}

	for name, id := range result.UpdatedRefs {
		fmt.Fprintf(out, "%s -> %s\n", id, name)
	}
	fmt.Fprintf(out, "received %d object(s)\n", result.ReceivedObjects)
	return nil
}

func newPushCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push REMOTE BRANCH",
		Short: "upload objects and update a remote branch",
		Args:  cobra.ExactArgs(2),
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return pushCmd(cmd.OutOrStdout(), cfg, args[0], args[1])
	}
	return cmd
}

func pushCmd(out io.Writer, cfg *globalFlags, remoteName, branch string) error {
	r, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer r.Close() //nolint:errcheck // nothing useful to do with a close error here

	ctx := context.Background()
	url, ok := r.Config().RemoteURL(remoteName)
	if !ok {
		return xerrors.Errorf("no such remote %q", remoteName)
	}
	tr, err := repository.OpenTransport(ctx, url)
	if err != nil {
		return xerrors.Errorf("could not connect to %s: %w", url, err)
	}
	defer tr.Close() //nolint:errcheck // nothing useful to do with a close error here

	status, err := r.Push(ctx, remoteName, branch, tr)
	if err != nil {
		return err
	}
	if !status.UnpackOK {
		return xerrors.Errorf("remote rejected the pack")
	}
	for _, ref := range status.OKRefs {
		fmt.Fprintf(out, "%s -> refs/remotes/%s\n", ref, remoteName)
	}
	return nil
}
