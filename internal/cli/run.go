// Package cli is the in-process entry point of the installer command.
package cli

import (
	"fmt"
	"io"
)

// Handler runs the installer command with args and returns its exit code.
// The main package sets it in init, which lets tests drive the command
// without building and forking a binary.
var Handler func(args []string, stdout, stderr io.Writer) int

// Run invokes Handler.
func Run(args []string, stdout, stderr io.Writer) int {
	if Handler == nil {
		fmt.Fprintln(stderr, "internal error: cli handler not configured")
		return 1
	}
	return Handler(args, stdout, stderr)
}
