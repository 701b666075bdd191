package cli

import (
	"github.com/spf13/cobra"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/stackgraph"
	"github.com/rung-dev/rung/internal/view"
)

func newLogCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the whole stack as a tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context(), *flags, true)
			if err != nil {
				return err
			}

			m, err := app.store.LoadManifest()
			if err != nil {
				return fail(app.log, err)
			}
			g := stackgraph.New(m)

			cfg, err := app.store.LoadConfig()
			if err != nil {
				return fail(app.log, err)
			}
			defaultBranch, err := cfg.DefaultBranchName()
			if err != nil {
				return fail(app.log, err)
			}

			var current branchname.Name
			if name, detached, err := app.repo.CurrentBranch(app.ctx); err == nil && !detached {
				current, _ = branchname.Parse(name)
			}

			lines := view.BuildLog(g, view.LogOptions{
				Current:      current,
				NeedsRestack: app.needsRestackMap(g, defaultBranch),
			})
			app.log.Raw("%s", view.RenderLog(lines, !flags.quiet))
			return nil
		},
	}
	return cmd
}
