package match

import (
	"os"

	"github.com/mattn/go-isatty"
)

// IsTerminal reports whether f is connected to a terminal, used by the
// locate CLI to decide Options.Terminal (spec §4.7 "When stdout is a
// terminal...").
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
