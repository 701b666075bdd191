package orchestrator

import (
	"context"
	"fmt"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/rerrors"
	"github.com/rung-dev/rung/internal/state"
)

// RestackResult enumerates the user-visible outcome of a restack, per
// branch, so the CLI can render the teacher's familiar "already based" /
// "restacked" / "conflict" distinctions.
type RestackResult int

const (
	RestackDone RestackResult = iota
	RestackAlreadyBased
	RestackConflict
)

// RestackPlan is the immutable output of PlanRestack (spec §4.2.1).
type RestackPlan struct {
	TargetBranch    branchname.Name
	NewParent       branchname.Name
	IncludeChildren bool
	Result          RestackResult
	NeedsRebase     bool
	WorkQueue       []branchname.Name // target, then descendants, parents before children
}

// PlanRestack builds the plan for moving target onto newParent.
func (d *Deps) PlanRestack(ctx context.Context, target, newParent branchname.Name, includeChildren bool) (*RestackPlan, error) {
	g, err := d.loadGraph()
	if err != nil {
		return nil, err
	}
	branch, ok := g.Find(target)
	if !ok {
		return nil, &rerrors.BranchNotFoundError{Branch: target.String()}
	}
	if g.WouldCreateCycle(target, newParent) {
		return nil, fmt.Errorf("restack %s onto %s: %w", target, newParent, rerrors.ErrCycle)
	}

	currentParentName := d.defaultBranchOrParent(ctx, branch.Parent)

	mergeBase, err := d.Repo.MergeBase(ctx, target.String(), newParent.String())
	if err != nil {
		return nil, err
	}
	parentTip, err := d.Repo.TipCommit(ctx, newParent.String())
	if err != nil {
		return nil, err
	}
	alreadyBased := mergeBase == parentTip

	if currentParentName == newParent.String() && alreadyBased {
		return &RestackPlan{TargetBranch: target, NewParent: newParent, IncludeChildren: includeChildren, Result: RestackAlreadyBased}, nil
	}

	queue := []branchname.Name{target}
	if includeChildren {
		for _, desc := range g.Descendants(target) {
			queue = append(queue, desc.Name)
		}
	}

	return &RestackPlan{
		TargetBranch:    target,
		NewParent:       newParent,
		IncludeChildren: includeChildren,
		Result:          RestackDone,
		NeedsRebase:     !alreadyBased,
		WorkQueue:       queue,
	}, nil
}

// RunRestack executes Prepare, Execute, and Commit for plan (spec §4.2).
// On a conflict it persists restack_state and returns RestackConflict; the
// caller (CLI) is responsible for prompting the user to resolve and run
// `rung restack --continue`.
func (d *Deps) RunRestack(ctx context.Context, plan *RestackPlan) (RestackResult, error) {
	if plan.Result == RestackAlreadyBased {
		return RestackAlreadyBased, nil
	}

	originalBranch, _, err := d.Repo.CurrentBranch(ctx)
	if err != nil {
		return RestackConflict, err
	}

	if !plan.NeedsRebase {
		return d.commitRestack(plan, nil)
	}

	backup, err := d.createBackup(ctx, plan.WorkQueue)
	if err != nil {
		return RestackConflict, err
	}

	rs := &state.RestackState{
		OpCommon: state.OpCommon{
			StartedAt:      nowUTC(),
			BackupID:       backup.BackupID,
			OriginalBranch: branchname.MustParse(originalBranch),
			Remaining:      namesOf(plan.WorkQueue),
		},
		TargetBranch:    plan.TargetBranch,
		NewParent:       plan.NewParent,
		IncludeChildren: plan.IncludeChildren,
	}
	if err := d.Store.SaveOpState(state.OperationRestack, rs); err != nil {
		return RestackConflict, err
	}

	return d.executeRestack(ctx, plan, rs)
}

// ContinueRestack resumes an in-progress restack after the user has
// resolved a conflict and run `git rebase --continue` (invoked here, not by
// the caller, to match spec §4.2.1's "first asking git to continue the
// interrupted rebase").
func (d *Deps) ContinueRestack(ctx context.Context) (RestackResult, error) {
	var rs state.RestackState
	ok, err := d.Store.LoadOpState(state.OperationRestack, &rs)
	if err != nil {
		return RestackConflict, err
	}
	if !ok {
		return RestackConflict, rerrors.ErrStaleOperationState
	}

	if err := d.Repo.RebaseContinue(ctx); err != nil {
		if c, isConflict := asConflict(err); isConflict {
			d.Log.Warn("still conflicted on %s", c.Branch)
			return RestackConflict, c
		}
		return RestackConflict, err
	}

	plan := &RestackPlan{
		TargetBranch:    rs.TargetBranch,
		NewParent:       rs.NewParent,
		IncludeChildren: rs.IncludeChildren,
		NeedsRebase:     true,
	}
	return d.executeRestack(ctx, plan, &rs)
}

func (d *Deps) executeRestack(ctx context.Context, plan *RestackPlan, rs *state.RestackState) (RestackResult, error) {
	g, err := d.loadGraph()
	if err != nil {
		return RestackConflict, err
	}

	for rs.Advance() {
		branch := branchname.MustParse(rs.Current)
		onto := rs.NewParent.String()
		if !branch.Equal(plan.TargetBranch) {
			b, ok := g.Find(branch)
			if !ok || b.Parent == nil {
				onto = plan.NewParent.String() // fell off the graph; rebase onto trunk side as a safe default
			} else {
				onto = b.Parent.String()
			}
		}

		if err := d.checkoutAndRebase(ctx, branch.String(), onto); err != nil {
			if c, isConflict := asConflict(err); isConflict {
				if saveErr := d.Store.SaveOpState(state.OperationRestack, rs); saveErr != nil {
					return RestackConflict, saveErr
				}
				return RestackConflict, c
			}
			return RestackConflict, err
		}
	}

	return d.commitRestack(plan, rs)
}

func (d *Deps) commitRestack(plan *RestackPlan, rs *state.RestackState) (RestackResult, error) {
	g, err := d.loadGraph()
	if err != nil {
		return RestackConflict, err
	}
	newParent := plan.NewParent
	parent := &newParent
	if newParent.String() == d.defaultBranchOrParent(context.Background(), nil) {
		parent = nil // a branch on the default branch is stored without a parent (I2)
	}
	if err := g.Reparent(plan.TargetBranch, parent); err != nil {
		return RestackConflict, err
	}
	if err := d.Store.SaveManifest(g.Manifest()); err != nil {
		return RestackConflict, err
	}

	if rs != nil {
		if err := d.Store.ClearOpState(state.OperationRestack); err != nil {
			return RestackConflict, err
		}
		if err := d.retireBackup(); err != nil {
			return RestackConflict, err
		}
	}
	return RestackDone, nil
}

func namesOf(names []branchname.Name) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = n.String()
	}
	return out
}
