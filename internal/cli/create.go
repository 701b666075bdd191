package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/state"
)

func newCreateCmd(flags *globalFlags) *cobra.Command {
	var (
		all     bool
		message string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new branch stacked on top of the current branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context(), *flags, true)
			if err != nil {
				return err
			}
			name, err := branchname.Parse(args[0])
			if err != nil {
				return fail(app.log, err)
			}

			parent, err := app.currentBranchName()
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
			cfg, err := app.store.LoadConfig()
			if err != nil {
				return fail(app.log, err)
			}
			defaultBranch, err := cfg.DefaultBranchName()
			if err != nil {
				return fail(app.log, err)
			}
			_, parentTracked := m.Find(parentName)
			if !parentTracked && !parentName.Equal(defaultBranch) {
				return fail(app.log, fmt.Errorf("current branch %s is not tracked; run `rung track` or `rung adopt` first", parentName))
			}

			if exists, err := app.repo.BranchExists(app.ctx, name.String()); err != nil {
				return fail(app.log, err)
			} else if exists {
				return fail(app.log, fmt.Errorf("branch %s already exists", name))
			}

			tip, err := app.repo.TipCommit(app.ctx, parent)
			if err != nil {
				return fail(app.log, err)
			}
			if err := app.repo.CreateBranchAt(app.ctx, name.String(), tip); err != nil {
				return fail(app.log, err)
			}
			if err := app.repo.Checkout(app.ctx, name.String()); err != nil {
				return fail(app.log, err)
			}

			if all {
				if err := app.repo.StageAll(app.ctx); err != nil {
					return fail(app.log, err)
				}
			}
			if staged, err := app.repo.HasStagedChanges(app.ctx); err == nil && staged {
				commitMessage := message
				if commitMessage == "" {
					commitMessage = name.String()
				}
				if err := app.repo.CreateCommit(app.ctx, commitMessage); err != nil {
					return fail(app.log, err)
				}
			}

			entry := state.StackBranch{Name: name, Created: nowUTCForCLI()}
			if parentTracked {
				entry.Parent = &parentName
			}
			m.Branches = append(m.Branches, entry)
			if err := app.store.SaveManifest(m); err != nil {
				return fail(app.log, err)
			}

			app.log.Success("created %s on top of %s", name, parentName)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Stage all unstaged changes before committing")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message for staged changes (defaults to the branch name)")
	return cmd
}
