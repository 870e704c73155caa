package main

import (
	"errors"
	"os"

	"runpar/pkg/lib"
	"runpar/pkg/logging"
)

func main() {
	log := logging.New()
	defer log.Sync()

	cmd := newRootCommand(log)
	if err := cmd.Execute(); err != nil {
		// Environment failures exit 1; everything else that aborts
		// before the pipeline runs is a usage mistake and exits 2.
		var se *startupError
		if errors.As(err, &se) {
			lib.Exit(err)
		}
		lib.ExitUsage(err)
	}
	os.Exit(exitCode)
}
