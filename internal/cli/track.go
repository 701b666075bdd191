package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/state"
)

// newTrackCmd attaches a branch to the manifest with an explicit parent,
// skipping adopt's merge-base inference (spec §6 supplemental command
// set). Grounded on the teacher's track.go --parent path: validate the
// parent exists and is itself tracked (or the default branch), and that
// it's an ancestor of the branch being tracked, unless --force.
func newTrackCmd(flags *globalFlags) *cobra.Command {
	var (
		parent string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "track [branch]",
		Short: "Start tracking a branch, given its parent",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context(), *flags, true)
			if err != nil {
				return err
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
			if parent == "" {
				return fail(app.log, fmt.Errorf("--parent is required"))
			}

			name, err := branchname.Parse(branch)
			if err != nil {
				return fail(app.log, err)
			}
			parentName, err := branchname.Parse(parent)
			if err != nil {
				return fail(app.log, err)
			}

			m, err := app.store.LoadManifest()
			if err != nil {
				return fail(app.log, err)
			}
			if _, ok := m.Find(name); ok {
				return fail(app.log, fmt.Errorf("%s is already tracked", name))
			}

			cfg, err := app.store.LoadConfig()
			if err != nil {
				return fail(app.log, err)
			}
			defaultBranch, err := cfg.DefaultBranchName()
			if err != nil {
				return fail(app.log, err)
			}
			if _, ok := m.Find(parentName); !ok && !parentName.Equal(defaultBranch) {
				return fail(app.log, fmt.Errorf("parent %s must be tracked or be the default branch", parentName))
			}

			if !force {
				isAncestor, err := app.repo.IsAncestor(app.ctx, parentName.String(), name.String())
				if err != nil {
					return fail(app.log, err)
				}
				if !isAncestor {
					return fail(app.log, fmt.Errorf("%s is not an ancestor of %s (use --force to override)", parentName, name))
				}
			}

			entry := state.StackBranch{Name: name, Created: nowUTCForCLI()}
			if !parentName.Equal(defaultBranch) {
				entry.Parent = &parentName
			}
			m.Branches = append(m.Branches, entry)
			if err := app.store.SaveManifest(m); err != nil {
				return fail(app.log, err)
			}
			app.log.Success("tracking %s on top of %s", name, parentName)
			return nil
		},
	}

	cmd.Flags().StringVarP(&parent, "parent", "p", "", "The branch's parent; must already be tracked or be the default branch")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip the ancestor check")
	return cmd
}

func newUntrackCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "untrack [branch]",
		Short: "Stop tracking a branch without touching git",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context(), *flags, true)
			if err != nil {
				return err
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

			m, err := app.store.LoadManifest()
			if err != nil {
				return fail(app.log, err)
			}
			if _, ok := m.Find(name); !ok {
				return fail(app.log, fmt.Errorf("%s is not tracked", name))
			}
			for _, child := range m.Branches {
				if child.Parent != nil && child.Parent.Equal(name) {
					return fail(app.log, fmt.Errorf("%s has tracked children; untrack or re-track them first", name))
				}
			}

			var kept []state.StackBranch
			for _, b := range m.Branches {
				if !b.Name.Equal(name) {
					kept = append(kept, b)
				}
			}
			m.Branches = kept
			if err := app.store.SaveManifest(m); err != nil {
				return fail(app.log, err)
			}
			app.log.Success("stopped tracking %s", name)
			return nil
		},
	}
	return cmd
}
