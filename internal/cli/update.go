package cli

import (
	"github.com/spf13/cobra"
)

// newUpdateCmd reports the running binary's version. Checking a remote for
// newer releases and self-upgrading are out of scope; this command exists
// so the surface named by the command tree resolves to something rather
// than nothing.
func newUpdateCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Print the installed rung version",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context(), *flags, false)
			if err != nil {
				return err
			}
			app.log.Info("rung %s", cmd.Root().Version)
			return nil
		},
	}
	return cmd
}
