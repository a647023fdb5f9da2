package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Warning prints a non-fatal diagnostic to standard error, e.g. an
// unreadable previous database the updater is about to rebuild from scratch.
func Warning(message string) {
	fmt.Fprintln(color.Error, color.YellowString("Warning:"), message)
}

// Error prints a command failure to standard error.
func Error(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
}

// Fatal prints a command failure and exits with a non-zero status, the path
// Mainify routes a returned error through.
func Fatal(err error) {
	Error(err)
	os.Exit(1)
}
