package cli

import (
	"github.com/spf13/cobra"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/orchestrator"
)

func newSubmitCmd(flags *globalFlags) *cobra.Command {
	var (
		pushForce bool
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "submit [branch...]",
		Short: "Open or update pull requests for the given branches (or the whole stack)",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context(), *flags, true)
			if err != nil {
				return err
			}
			if err := app.requireForge(); err != nil {
				return fail(app.log, err)
			}

			branches := make([]branchname.Name, 0, len(args))
			for _, a := range args {
				name, err := branchname.Parse(a)
				if err != nil {
					return fail(app.log, err)
				}
				branches = append(branches, name)
			}

			plan, err := app.orch.PlanSubmit(app.ctx, branches)
			if err != nil {
				return fail(app.log, err)
			}
			if dryRun {
				for _, item := range plan.Items {
					verb := "create"
					if item.Action == orchestrator.SubmitUpdate {
						verb = "update"
					}
					app.log.Info("would %s a PR for %s onto %s", verb, item.Branch, item.BaseBranch)
				}
				return nil
			}

			result, err := app.orch.RunSubmit(app.ctx, plan, pushForce)
			if err != nil {
				return fail(app.log, err)
			}
			for _, o := range result.Outcomes {
				if o.Warning != "" {
					app.log.Warn("%s: %s", o.Branch, o.Warning)
					continue
				}
				app.log.Success("%s -> #%d", o.Branch, o.PR)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&pushForce, "push", true, "Force-push branches before submitting")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print what would be submitted without making changes")
	return cmd
}
