// Package main provides the entry point for the corpuskit CLI.
package main

import (
	"errors"
	"os"

	"github.com/corpuskit/corpuskit/cmd/corpuskit/cmd"
	"github.com/corpuskit/corpuskit/internal/errtax"
)

func main() {
	err := cmd.Execute()
	if err == nil {
		return
	}

	os.Exit(exitCodeFor(err))
}

// exitCodeFor maps a command error onto spec.md §6's per-command exit code
// contract. init distinguishes configuration errors (2) from connection
// errors (3); ingest signals partial failure with documents remaining as 5.
// Anything else (including the generic cobra "unknown command" errors) is 1.
func exitCodeFor(err error) int {
	var code cmd.ExitCoder
	if errors.As(err, &code) {
		return code.ExitCode()
	}

	var taxErr *errtax.Error
	if errors.As(err, &taxErr) {
		switch taxErr.Kind {
		case errtax.KindConfig:
			return 2
		case errtax.KindTransientRemote, errtax.KindAuth:
			return 3
		}
	}

	return 1
}
