package cli

import (
	"github.com/spf13/cobra"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/stackgraph"
	"github.com/rung-dev/rung/internal/view"
)

func newStatusCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current branch's place in its stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context(), *flags, true)
			if err != nil {
				return err
			}
			current, err := app.currentBranchName()
			if err != nil {
				return fail(app.log, err)
			}
			currentName, err := branchname.Parse(current)
			if err != nil {
				return fail(app.log, err)
			}

			m, err := app.store.LoadManifest()
			if err != nil {
				return fail(app.log, err)
			}
			g := stackgraph.New(m)
			if _, ok := g.Find(currentName); !ok {
				app.log.Info("%s is not tracked", currentName)
				return nil
			}

			lines := view.BuildStatus(g, currentName)
			app.log.Raw("%s", view.RenderStatus(lines))
			return nil
		},
	}
	return cmd
}
