package logging

import (
	"log"
	"os"
)

func init() {
	// Set the global logger to use standard error, so logging output never
	// mixes with locate's matched-path output on standard output.
	log.SetOutput(os.Stderr)
	log.SetFlags(0)
}
