package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/state"
)

func newFoldCmd(flags *globalFlags) *cobra.Command {
	var (
		into  string
		abort bool
		cont  bool
	)

	cmd := &cobra.Command{
		Use:   "fold [branch]",
		Short: "Collapse a branch and its descendants down to one, onto a given youngest branch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context(), *flags, true)
			if err != nil {
				return err
			}

			if abort {
				return app.abortOperation(state.OperationFold)
			}

			if cont {
				result, err := app.orch.ContinueFold(app.ctx)
				if err != nil {
					return fail(app.log, err)
				}
				app.log.Success("folded %v into %s", result.Folded, result.Target)
				return nil
			}

			if into == "" {
				return fail(app.log, fmt.Errorf("--into is required (the youngest branch to fold down to)"))
			}

			branch := ""
			if len(args) > 0 {
				branch = args[0]
			} else {
				branch, err = app.currentBranchName()
				if err != nil {
					return fail(app.log, err)
				}
			}
			target, err := branchname.Parse(branch)
			if err != nil {
				return fail(app.log, err)
			}
			youngest, err := branchname.Parse(into)
			if err != nil {
				return fail(app.log, err)
			}

			plan, err := app.orch.PlanFold(app.ctx, target, youngest)
			if err != nil {
				return fail(app.log, err)
			}
			result, err := app.orch.RunFold(app.ctx, plan)
			if err != nil {
				return fail(app.log, err)
			}
			app.log.Success("folded %v into %s", result.Folded, result.Target)
			for _, pr := range result.PRsToClose {
				app.log.Info("close PR #%d", pr)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&into, "into", "", "The youngest branch in the chain to fold down to")
	cmd.Flags().BoolVar(&abort, "abort", false, "Abort an in-progress fold and restore from backup")
	cmd.Flags().BoolVar(&cont, "continue", false, "Resume an in-progress fold after a crash")
	return cmd
}
