package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/puregit/git/object"
	"github.com/puregit/git/oid"
	"github.com/puregit/git/refstore"
)

var errBadFile = errors.New("bad file")

func newCatFileCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat-file [TYPE] OBJECT",
		Short: "provide content or type and size information for repository objects",
		Args:  cobra.RangeArgs(1, 2),
	}

	typeOnly := cmd.Flags().BoolP("t", "t", false, "show the object type instead of its content")
	sizeOnly := cmd.Flags().BoolP("s", "s", false, "show the object size instead of its content")
	prettyPrint := cmd.Flags().BoolP("p", "p", false, "pretty-print the object's content based on its type")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		p := catFileParams{
			typeOnly:    *typeOnly,
			sizeOnly:    *sizeOnly,
			prettyPrint: *prettyPrint,
			objectName:  args[0],
		}
		if len(args) == 2 {
			p.typ = args[0]
			p.objectName = args[1]
		}
		return catFileCmd(cmd.OutOrStdout(), cfg, p)
	}
	return cmd
}

type catFileParams struct {
	typeOnly    bool
	sizeOnly    bool
	prettyPrint bool
	objectName  string
	typ         string
}

func catFileCmd(out io.Writer, cfg *globalFlags, p catFileParams) (err error) {
	if p.typ != "" && (p.typeOnly || p.sizeOnly || p.prettyPrint) {
		return errors.New("type not supported together with -t, -s, or -p")
	}
	if p.typ == "" && !p.typeOnly && !p.sizeOnly && !p.prettyPrint {
		return errors.New("type and object required")
	}

	r, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer r.Close() //nolint:errcheck // nothing useful to do with a close error here

	id, err := resolveObjectName(r, p.objectName)
	if err != nil {
		return err
	}

	o, err := r.Object(id)
	if err != nil {
		return err
	}

	if p.typ != "" {
		wantType, err := object.NewTypeFromString(p.typ)
		if err != nil {
			return xerrors.Errorf("%s: %w", p.typ, err)
		}
		if o.Type() != wantType {
			return xerrors.Errorf("%s: %w", p.objectName, errBadFile)
		}
	}

	switch {
	case p.sizeOnly:
		fmt.Fprintln(out, strconv.Itoa(o.Size()))
	case p.typeOnly:
		fmt.Fprintln(out, o.Type().String())
	case p.prettyPrint:
		return prettyPrintObject(out, o)
	default:
		fmt.Fprint(out, string(o.Bytes()))
	}
	return nil
}

// resolveObjectName tries id.objectName as a raw hex id first, then
// falls back to ref-name resolution (branch, tag, or any other
// reference this repository knows about).
func resolveObjectName(r interface {
	Reference(string) (*refstore.Reference, error)
}, name string,
) (oid.Oid, error) {
	if id, err := oid.FromHex(name); err == nil {
		return id, nil
	}

	for _, candidate := range []string{
		name,
		"refs/heads/" + name,
		"refs/tags/" + name,
		"refs/remotes/" + name,
	} {
		ref, err := r.Reference(candidate)
		if err == nil {
			return ref.Target(), nil
		}
		if !xerrors.Is(err, refstore.ErrRefNotFound) {
			return oid.Null, xerrors.Errorf("could not check if ref %s exists: %w", candidate, err)
		}
	}
	return oid.Null, xerrors.Errorf("not a valid object name %s", name)
}

func prettyPrintObject(out io.Writer, o *object.Object) error {
	switch o.Type() {
	case object.TypeCommit:
		c, err := o.AsCommit()
		if err != nil {
			return xerrors.Errorf("could not decode commit: %w", err)
		}
		fmt.Fprintf(out, "tree %s\n", c.TreeID())
		for _, id := range c.ParentIDs() {
			fmt.Fprintf(out, "parent %s\n", id)
		}
		fmt.Fprintf(out, "author %s\n", c.Author())
		fmt.Fprintf(out, "committer %s\n", c.Committer())
		if c.GPGSig() != "" {
			fmt.Fprintf(out, "gpgsig %s\n", c.GPGSig())
		}
		fmt.Fprintln(out)
		fmt.Fprint(out, c.Message())
	case object.TypeTag:
		t, err := o.AsTag()
		if err != nil {
			return xerrors.Errorf("could not decode tag: %w", err)
		}
		fmt.Fprintf(out, "object %s\n", t.Target())
		fmt.Fprintf(out, "type %s\n", t.Type())
		fmt.Fprintf(out, "tag %s\n", t.Name())
		fmt.Fprintf(out, "tagger %s\n", t.Tagger())
		if t.GPGSig() != "" {
			fmt.Fprintf(out, "gpgsig %s\n", t.GPGSig())
		}
		fmt.Fprintln(out)
		fmt.Fprint(out, t.Message())
	case object.TypeTree:
		t, err := o.AsTree()
		if err != nil {
			return xerrors.Errorf("could not decode tree: %w", err)
		}
		for _, e := range t.Entries() {
			fmt.Fprintf(out, "%06o %s %s\t%s\n", e.Mode, e.Mode.ObjectType(), e.ID, e.Path)
		}
	case object.TypeBlob:
		fmt.Fprint(out, string(o.Bytes()))
	default:
		return xerrors.Errorf("pretty-print not supported for type %s", o.Type())
	}
	return nil
}
