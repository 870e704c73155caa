package lib

import (
	"fmt"
	"os"
)

// Exit prints the error and exits with code 1, the status for runtime
// failures: the command line was valid but the environment was not
// (unreadable files, broken config).
func Exit(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

// ExitUsage prints the error and exits with code 2, the status
// reserved for argument-parse and validation failures.
func ExitUsage(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(2)
}
