package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/orchestrator"
)

// newMoveCmd creates `mv`, a thin wrapper over restack that always carries
// descendants along: moving a branch elsewhere in the stack should bring
// its own children with it, unlike a plain `restack` of a single branch.
func newMoveCmd(flags *globalFlags) *cobra.Command {
	var (
		onto   string
		source string
	)

	cmd := &cobra.Command{
		Use:   "mv",
		Short: "Move the current branch (and its descendants) onto a new parent",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context(), *flags, true)
			if err != nil {
				return err
			}
			if onto == "" {
				return fail(app.log, fmt.Errorf("--onto is required"))
			}

			branch := source
			if branch == "" {
				branch, err = app.currentBranchName()
				if err != nil {
					return fail(app.log, err)
				}
			}
			name, err := branchname.Parse(branch)
			if err != nil {
				return fail(app.log, err)
			}
			newParent, err := branchname.Parse(onto)
			if err != nil {
				return fail(app.log, err)
			}

			plan, err := app.orch.PlanRestack(app.ctx, name, newParent, true)
			if err != nil {
				return fail(app.log, err)
			}
			result, err := app.orch.RunRestack(app.ctx, plan)
			if result == orchestrator.RestackConflict {
				if err != nil {
					app.log.Warn("%v", err)
				}
				return fail(app.log, fmt.Errorf("move paused on a conflict; resolve it and run `rung restack --continue` (or `rung restack --abort`)"))
			}
			if err != nil {
				return fail(app.log, err)
			}

			switch result {
			case orchestrator.RestackAlreadyBased:
				app.log.Info("already based on %s", newParent)
			default:
				app.log.Success("moved %s onto %s", name, newParent)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&onto, "onto", "o", "", "Branch to move onto")
	cmd.Flags().StringVar(&source, "source", "", "Branch to move (defaults to the current branch)")
	return cmd
}
