package fsbackend

import (
	"bytes"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"
	"gopkg.in/ini.v1"

	"github.com/puregit/git/backend"
	"github.com/puregit/git/internal/gitpath"
)

// setDefaultCfg sets and persists the default git configuration for
// the repository.
func (b *Backend) setDefaultCfg() error {
	cfg := ini.Empty()

	core, err := cfg.NewSection(backend.CfgCore)
	if err != nil {
		return xerrors.Errorf("could not create core section: %w", err)
	}
	coreCfg := map[string]string{
		backend.CfgCoreFormatVersion:     "0",
		backend.CfgCoreFileMode:          "true",
		backend.CfgCoreBare:              "false",
		backend.CfgCoreLogAllRefUpdate:   "true",
		backend.CfgCoreIgnoreCase:        "true",
		backend.CfgCorePrecomposeUnicode: "true",
	}
	for k, v := range coreCfg {
		if _, err := core.NewKey(k, v); err != nil {
			return xerrors.Errorf("could not set %s: %w", k, err)
		}
	}
	var buf bytes.Buffer
	if _, err := cfg.WriteTo(&buf); err != nil {
		return xerrors.Errorf("could not encode the config: %w", err)
	}
	return afero.WriteFile(b.fs, b.path(gitpath.ConfigPath), buf.Bytes(), 0o644)
}
