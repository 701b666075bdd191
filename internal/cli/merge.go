package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/forge/github"
)

func newMergeCmd(flags *globalFlags) *cobra.Command {
	var method string

	cmd := &cobra.Command{
		Use:   "merge [branch]",
		Short: "Merge a branch's pull request and cascade-rebase its descendants",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context(), *flags, true)
			if err != nil {
				return err
			}
			if err := app.requireForge(); err != nil {
				return fail(app.log, err)
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

			mergeMethod := github.MergeMethod(method)
			switch mergeMethod {
			case github.MergeMethodMerge, github.MergeMethodSquash, github.MergeMethodRebase:
			default:
				return fail(app.log, fmt.Errorf("unknown merge method %q (want merge, squash, or rebase)", method))
			}

			result, err := app.orch.RunMerge(app.ctx, name, mergeMethod)
			if result != nil {
				for _, r := range result.RebasedDescendants {
					app.log.Info("rebased %s onto %s", r, result.Destination)
				}
				for _, s := range result.SkippedDescendants {
					app.log.Warn("skipped rebasing %s; restack it manually", s)
				}
			}
			if err != nil {
				return fail(app.log, err)
			}

			app.log.Success("merged %s into %s", result.MergedBranch, result.Destination)
			return nil
		},
	}

	cmd.Flags().StringVar(&method, "method", "squash", "Merge method: merge, squash, or rebase")
	return cmd
}
