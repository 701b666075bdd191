package cli

import (
	"github.com/spf13/cobra"
)

func newUndoCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "undo",
		Short: "Restore branches to their state before the last completed operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context(), *flags, true)
			if err != nil {
				return err
			}

			result, err := app.orch.Undo(app.ctx)
			if err != nil {
				return fail(app.log, err)
			}
			app.log.Success("restored %d branch(es) from backup %d", len(result.Branches), result.BackupID)
			return nil
		},
	}
	return cmd
}
