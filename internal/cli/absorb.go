package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rung-dev/rung/internal/absorb"
	"github.com/rung-dev/rung/internal/branchname"
)

func newAbsorbCmd(flags *globalFlags) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "absorb",
		Short: "Route staged changes into fixup commits for the commits that last touched those lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context(), *flags, true)
			if err != nil {
				return err
			}

			branch, err := app.currentBranchName()
			if err != nil {
				return fail(app.log, err)
			}
			m, err := app.store.LoadManifest()
			if err != nil {
				return fail(app.log, err)
			}
			name, err := branchname.Parse(branch)
			if err != nil {
				return fail(app.log, err)
			}
			sb, ok := m.Find(name)
			if !ok {
				return fail(app.log, fmt.Errorf("%s is not tracked", name))
			}
			cfg, err := app.store.LoadConfig()
			if err != nil {
				return fail(app.log, err)
			}
			defaultBranch, err := cfg.DefaultBranchName()
			if err != nil {
				return fail(app.log, err)
			}
			base := defaultBranch.String()
			if sb.Parent != nil {
				base = sb.Parent.String()
			}

			hunks, err := app.repo.StagedHunks(app.ctx)
			if err != nil {
				return fail(app.log, err)
			}
			if len(hunks) == 0 {
				app.log.Info("nothing staged to absorb")
				return nil
			}

			tip, err := app.repo.TipCommit(app.ctx, branch)
			if err != nil {
				return fail(app.log, err)
			}
			plan, err := absorb.BuildPlan(app.ctx, app.repo, base, tip, hunks)
			if err != nil {
				return fail(app.log, err)
			}

			for _, u := range plan.Unmapped {
				app.log.Warn("could not route %s (%s)", u.Hunk.File, u.Reason)
			}
			if dryRun {
				for _, a := range plan.Actions {
					app.log.Info("would fixup %s into %s (%s)", a.Hunk.File, a.Target, a.TargetMessage)
				}
				return nil
			}

			if err := absorb.Execute(app.ctx, app.repo, plan); err != nil {
				return fail(app.log, err)
			}
			app.log.Success("absorbed %d hunk(s) into a fixup commit for %s", len(hunks)-len(plan.Unmapped), plan.Actions[0].Target)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the routing plan without creating fixup commits")
	return cmd
}
