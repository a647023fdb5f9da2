package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

// DisallowArguments is the Args validator for updatedb, which takes no
// positional arguments (all input is flags). It is an alternative to
// cobra.NoArgs, which treats arguments as unknown subcommand names and
// returns a somewhat cryptic error message.
func DisallowArguments(_ *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errors.New("command does not accept arguments")
	}
	return nil
}
