package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/state"
)

// inferParent walks every already-tracked branch plus the default branch,
// comparing branch's merge-base against each candidate's tip. The
// candidate whose tip equals the merge-base and is deepest in the stack
// (i.e. not an ancestor of another candidate that also qualifies) is the
// most specific parent. Grounded on the teacher's merge-base-driven
// ancestry checks in git/merge_base.go and git/merge_detection.go,
// generalized from "is X merged into Y" to "which candidate is branch's
// nearest ancestor".
func (a *appContext) inferParent(branch string, candidates []string) (string, error) {
	var best string
	for _, candidate := range candidates {
		if candidate == branch {
			continue
		}
		base, err := a.repo.MergeBase(a.ctx, candidate, branch)
		if err != nil {
			continue
		}
		tip, err := a.repo.TipCommit(a.ctx, candidate)
		if err != nil {
			continue
		}
		if base != tip {
			continue
		}
		if best == "" {
			best = candidate
			continue
		}
		// Prefer whichever candidate is itself a descendant of the
		// other: the nearer ancestor is the more specific parent.
		if isAnc, err := a.repo.IsAncestor(a.ctx, best, candidate); err == nil && isAnc {
			best = candidate
		}
	}
	if best == "" {
		return "", fmt.Errorf("could not infer a parent for %s from the tracked stack", branch)
	}
	return best, nil
}

func newAdoptCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adopt [branch]",
		Short: "Infer a branch's parent by merge-base and start tracking it",
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

			candidates := []string{defaultBranch.String()}
			for _, b := range m.Branches {
				candidates = append(candidates, b.Name.String())
			}

			parent, err := app.inferParent(name.String(), candidates)
			if err != nil {
				return fail(app.log, err)
			}
			parentName, err := branchname.Parse(parent)
			if err != nil {
				return fail(app.log, err)
			}

			entry := state.StackBranch{Name: name, Created: nowUTCForCLI()}
			if !parentName.Equal(defaultBranch) {
				entry.Parent = &parentName
			}
			m.Branches = append(m.Branches, entry)
			if err := app.store.SaveManifest(m); err != nil {
				return fail(app.log, err)
			}
			app.log.Success("adopted %s as a child of %s", name, parentName)
			return nil
		},
	}
	return cmd
}
