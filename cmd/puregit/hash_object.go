package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/puregit/git/object"
)

func newHashObjectCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-object FILE",
		Short: "compute the object id for a file, optionally writing it to the object database",
		Args:  cobra.ExactArgs(1),
	}

	typ := cmd.Flags().StringP("type", "t", "blob", "specify the object type")
	write := cmd.Flags().BoolP("write", "w", false, "write the object into the object database")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return hashObjectCmd(cmd.OutOrStdout(), cfg, args[0], *typ, *write)
	}

	return cmd
}

func hashObjectCmd(out io.Writer, cfg *globalFlags, filePath, typ string, write bool) error {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	ot, err := object.NewTypeFromString(typ)
	if err != nil {
		return xerrors.Errorf("unsupported object type %s: %w", typ, err)
	}

	o := object.New(ot, content)
	switch ot {
	case object.TypeCommit:
		if _, err := o.AsCommit(); err != nil {
			return xerrors.Errorf("invalid commit file: %w", err)
		}
	case object.TypeTree:
		if _, err := o.AsTree(); err != nil {
			return xerrors.Errorf("invalid tree file: %w", err)
		}
	case object.TypeTag:
		if _, err := o.AsTag(); err != nil {
			return xerrors.Errorf("invalid tag file: %w", err)
		}
	}

	if write {
		r, err := openRepository(cfg)
		if err != nil {
			return err
		}
		defer r.Close() //nolint:errcheck // nothing useful to do with a close error here

		if _, err := r.WriteObject(o); err != nil {
			return xerrors.Errorf("could not write object: %w", err)
		}
	}

	fmt.Fprintln(out, o.ID().String())
	return nil
}
