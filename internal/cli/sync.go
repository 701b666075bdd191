package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rung-dev/rung/internal/orchestrator"
	"github.com/rung-dev/rung/internal/state"
)

func newSyncCmd(flags *globalFlags) *cobra.Command {
	var (
		abort     bool
		cont      bool
		pushForce bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull the default branch, reconcile merged PRs, and restack everything on top",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context(), *flags, true)
			if err != nil {
				return err
			}
			if err := app.requireForge(); err != nil {
				return fail(app.log, err)
			}

			if abort {
				return app.abortOperation(state.OperationSync)
			}

			var (
				outcome orchestrator.SyncOutcome
				result  *orchestrator.SyncResult
			)
			if cont {
				outcome, result, err = app.orch.ContinueSync(app.ctx, pushForce)
			} else {
				outcome, result, err = app.orch.RunSync(app.ctx, pushForce)
			}
			if result != nil {
				for _, m := range result.Reconcile.Merged {
					app.log.Info("%s merged into %s (#%d)", m.Branch, m.MergedInto, m.PR)
				}
				for _, r := range result.Reconcile.Reparented {
					app.log.Info("%s re-parented onto %s", r.Branch, r.NewParent)
				}
				for _, removed := range result.Removed {
					app.log.Info("removed stale branch %s", removed)
				}
			}

			if outcome == orchestrator.SyncConflict {
				if err != nil {
					app.log.Warn("%v", err)
				}
				return fail(app.log, fmt.Errorf("sync paused on a conflict; resolve it and run `rung sync --continue` (or `rung sync --abort`)"))
			}
			if err != nil {
				return fail(app.log, err)
			}
			app.log.Success("sync complete")
			return nil
		},
	}

	cmd.Flags().BoolVar(&abort, "abort", false, "Abort an in-progress sync and restore from backup")
	cmd.Flags().BoolVar(&cont, "continue", false, "Continue an in-progress sync after resolving a conflict")
	cmd.Flags().BoolVar(&pushForce, "push", true, "Force-push rebased branches to their remote")
	return cmd
}
