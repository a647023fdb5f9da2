package cmd

import (
	"github.com/spf13/cobra"
)

// Mainify wraps an error-returning command body (the style used by
// updatedbMain and locateMain) into the plain Cobra Run signature. Entry
// points need to rely on defer-based cleanup — closing the old database,
// aborting a half-written publisher temp file — which os.Exit would skip;
// this lets them report failure through a normal return instead.
func Mainify(entry func(*cobra.Command, []string) error) func(*cobra.Command, []string) {
	return func(command *cobra.Command, arguments []string) {
		if err := entry(command, arguments); err != nil {
			Fatal(err)
		}
	}
}
