package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/stackgraph"
)

// checkoutBranch checks out name and reports it, the shared tail of every
// navigation command.
func (a *appContext) checkoutBranch(name branchname.Name) error {
	if err := a.repo.Checkout(a.ctx, name.String()); err != nil {
		return fmt.Errorf("checkout %s: %w", name, err)
	}
	a.log.Success("checked out %s", name)
	return nil
}

func newNxtCmd(flags *globalFlags) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "nxt",
		Short: "Switch to the child of the current branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context(), *flags, true)
			if err != nil {
				return err
			}
			if steps < 1 {
				return fail(app.log, fmt.Errorf("steps must be at least 1"))
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

			target := currentName
			for i := 0; i < steps; i++ {
				children := g.ChildrenOf(target)
				if len(children) == 0 {
					if i == 0 {
						app.log.Info("already at the top of the stack")
						return nil
					}
					break
				}
				if len(children) > 1 {
					return fail(app.log, fmt.Errorf("%s has more than one child; run `rung nxt` from the specific branch you want instead", target))
				}
				target = children[0].Name
			}
			if target.Equal(currentName) {
				return nil
			}
			if err := app.checkoutBranch(target); err != nil {
				return fail(app.log, err)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "The number of levels to move up the stack")
	return cmd
}

func newPrvCmd(flags *globalFlags) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "prv",
		Short: "Switch to the parent of the current branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context(), *flags, true)
			if err != nil {
				return err
			}
			if steps < 1 {
				return fail(app.log, fmt.Errorf("steps must be at least 1"))
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
			sb, ok := g.Find(currentName)
			if !ok {
				app.log.Info("%s is not tracked", currentName)
				return nil
			}

			target := currentName
			cur := sb
			for i := 0; i < steps; i++ {
				if cur.Parent == nil {
					if i == 0 {
						app.log.Info("already at the bottom of the stack")
						return nil
					}
					break
				}
				target = *cur.Parent
				if next, ok := g.Find(target); ok {
					cur = next
				} else {
					break
				}
			}
			if target.Equal(currentName) {
				return nil
			}
			if err := app.checkoutBranch(target); err != nil {
				return fail(app.log, err)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "The number of levels to move down the stack")
	return cmd
}

func newTopCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Switch to the tip of the current stack",
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

			target := currentName
			for {
				children := g.ChildrenOf(target)
				if len(children) == 0 {
					break
				}
				if len(children) > 1 {
					return fail(app.log, fmt.Errorf("%s has more than one child; run `rung nxt` to pick a path", target))
				}
				target = children[0].Name
			}
			if target.Equal(currentName) {
				app.log.Info("already at the top of the stack")
				return nil
			}
			if err := app.checkoutBranch(target); err != nil {
				return fail(app.log, err)
			}
			return nil
		},
	}
	return cmd
}

func newBottomCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bottom",
		Short: "Switch to the root of the current stack (the branch tracked directly on the default branch)",
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
			sb, ok := g.Find(currentName)
			if !ok {
				app.log.Info("%s is not tracked", currentName)
				return nil
			}

			target := currentName
			for sb.Parent != nil {
				target = *sb.Parent
				next, ok := g.Find(target)
				if !ok {
					break
				}
				sb = next
			}
			if target.Equal(currentName) {
				app.log.Info("already at the bottom of the stack")
				return nil
			}
			if err := app.checkoutBranch(target); err != nil {
				return fail(app.log, err)
			}
			return nil
		},
	}
	return cmd
}
