package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds rung's command tree (spec §6's command surface:
// `init, adopt, create, status, log, sync, submit, merge, undo, absorb,
// restack, split, fold, nxt, prv, mv, doctor, update, completions`).
// Errors are logged by each command itself via the shared logger, so the
// root suppresses cobra's own usage/error printing to avoid double output.
func NewRootCmd(version string) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "rung",
		Short:         "rung manages stacked pull requests on top of git and GitHub",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addGlobalFlags(root, flags)

	root.AddCommand(
		newInitCmd(flags),
		newAdoptCmd(flags),
		newCreateCmd(flags),
		newStatusCmd(flags),
		newLogCmd(flags),
		newSyncCmd(flags),
		newSubmitCmd(flags),
		newMergeCmd(flags),
		newUndoCmd(flags),
		newAbsorbCmd(flags),
		newRestackCmd(flags),
		newSplitCmd(flags),
		newFoldCmd(flags),
		newNxtCmd(flags),
		newPrvCmd(flags),
		newTopCmd(flags),
		newBottomCmd(flags),
		newMoveCmd(flags),
		newDoctorCmd(flags),
		newTrackCmd(flags),
		newUntrackCmd(flags),
		newUpdateCmd(flags),
		newCompletionsCmd(),
	)

	return root
}
