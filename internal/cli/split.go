package cli

import (
	"github.com/spf13/cobra"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/state"
)

func newSplitCmd(flags *globalFlags) *cobra.Command {
	var (
		at    []string
		abort bool
		cont  bool
	)

	cmd := &cobra.Command{
		Use:   "split [branch]",
		Short: "Split a branch into a chain of smaller branches at given commits",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context(), *flags, true)
			if err != nil {
				return err
			}

			if abort {
				return app.abortOperation(state.OperationSplit)
			}

			if cont {
				result, err := app.orch.ContinueSplit(app.ctx)
				if err != nil {
					return fail(app.log, err)
				}
				app.log.Success("split %s into %d branches", result.Source, len(result.NewBranches))
				return nil
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
			name, err := branchname.Parse(branch)
			if err != nil {
				return fail(app.log, err)
			}

			plan, err := app.orch.PlanSplit(app.ctx, name, at)
			if err != nil {
				return fail(app.log, err)
			}

			result, err := app.orch.RunSplit(app.ctx, plan)
			if err != nil {
				return fail(app.log, err)
			}
			for _, b := range result.NewBranches {
				app.log.Success("created %s", b)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&at, "at", nil, "A commit id to split at; repeatable, oldest to newest")
	cmd.Flags().BoolVar(&abort, "abort", false, "Abort an in-progress split and restore from backup")
	cmd.Flags().BoolVar(&cont, "continue", false, "Resume an in-progress split after a crash")
	return cmd
}
