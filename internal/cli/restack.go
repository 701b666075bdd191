package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/orchestrator"
	"github.com/rung-dev/rung/internal/state"
)

func newRestackCmd(flags *globalFlags) *cobra.Command {
	var (
		onto     string
		children bool
		abort    bool
		cont     bool
	)

	cmd := &cobra.Command{
		Use:   "restack [branch]",
		Short: "Rebase a branch (and optionally its descendants) onto its tracked parent",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context(), *flags, true)
			if err != nil {
				return err
			}

			if abort {
				return app.abortOperation(state.OperationRestack)
			}

			var result orchestrator.RestackResult
			if cont {
				result, err = app.orch.ContinueRestack(app.ctx)
			} else {
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

				m, err := app.store.LoadManifest()
				if err != nil {
					return fail(app.log, err)
				}
				sb, ok := m.Find(name)
				if !ok {
					return fail(app.log, fmt.Errorf("%s is not tracked", name))
				}

				target := onto
				if target == "" {
					if sb.Parent == nil {
						cfg, err := app.store.LoadConfig()
						if err != nil {
							return fail(app.log, err)
						}
						defaultBranch, err := cfg.DefaultBranchName()
						if err != nil {
							return fail(app.log, err)
						}
						target = defaultBranch.String()
					} else {
						target = sb.Parent.String()
					}
				}
				newParent, err := branchname.Parse(target)
				if err != nil {
					return fail(app.log, err)
				}

				plan, err := app.orch.PlanRestack(app.ctx, name, newParent, children)
				if err != nil {
					return fail(app.log, err)
				}
				result, err = app.orch.RunRestack(app.ctx, plan)
			}

			if result == orchestrator.RestackConflict {
				if err != nil {
					app.log.Warn("%v", err)
				}
				return fail(app.log, fmt.Errorf("restack paused on a conflict; resolve it and run `rung restack --continue` (or `rung restack --abort`)"))
			}
			if err != nil {
				return fail(app.log, err)
			}
			switch result {
			case orchestrator.RestackAlreadyBased:
				app.log.Info("already based on its parent")
			default:
				app.log.Success("restacked")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&onto, "onto", "", "Rebase onto this branch instead of the tracked parent")
	cmd.Flags().BoolVar(&children, "children", false, "Also restack every descendant")
	cmd.Flags().BoolVar(&abort, "abort", false, "Abort an in-progress restack and restore from backup")
	cmd.Flags().BoolVar(&cont, "continue", false, "Continue an in-progress restack after resolving a conflict")
	return cmd
}
