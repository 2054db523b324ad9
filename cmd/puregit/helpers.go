package main

import (
	"os"

	"github.com/puregit/git/repository"
)

// workingDirectory resolves the -C flag against the process's actual
// working directory, mirroring git's own "-C path" semantics.
func workingDirectory(cfg *globalFlags) (string, error) {
	if cfg.C != "" {
		return cfg.C, nil
	}
	return os.Getwd()
}

func openRepository(cfg *globalFlags) (*repository.Repository, error) {
	wd, err := workingDirectory(cfg)
	if err != nil {
		return nil, err
	}
	return repository.OpenRepository(wd)
}
