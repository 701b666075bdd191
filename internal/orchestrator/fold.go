package orchestrator

import (
	"context"
	"fmt"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/rerrors"
	"github.com/rung-dev/rung/internal/stackgraph"
	"github.com/rung-dev/rung/internal/state"
)

// FoldPlan is the immutable output of PlanFold (spec §4.2.4): combine the
// parent-child chain from target down to (and including) youngest into one
// branch, resetting target's ref to youngest's tip.
type FoldPlan struct {
	Target     branchname.Name
	Chain      []branchname.Name // target, then each folded branch, oldest to youngest
	Youngest   branchname.Name
	PRsToClose []uint64
}

// FoldResult reports what PlanFold/RunFold did, for the CLI to render.
type FoldResult struct {
	Target     branchname.Name
	Folded     []branchname.Name
	PRsToClose []uint64
}

// PlanFold builds the fold plan for collapsing target and its descendant
// chain down through youngest, inclusive. Every branch strictly between
// target and youngest in the chain must have exactly one child (a fold
// only makes sense over a linear chain, never a branch point).
func (d *Deps) PlanFold(ctx context.Context, target, youngest branchname.Name) (*FoldPlan, error) {
	g, err := d.loadGraph()
	if err != nil {
		return nil, err
	}
	if _, ok := g.Find(target); !ok {
		return nil, &rerrors.BranchNotFoundError{Branch: target.String()}
	}
	if _, ok := g.Find(youngest); !ok {
		return nil, &rerrors.BranchNotFoundError{Branch: youngest.String()}
	}

	ancestry := g.Ancestry(youngest)
	chain := make([]branchname.Name, 0, len(ancestry))
	foundTarget := false
	for _, b := range ancestry {
		if b.Name.Equal(target) {
			foundTarget = true
		}
		if foundTarget {
			chain = append(chain, b.Name)
		}
	}
	if !foundTarget {
		return nil, fmt.Errorf("fold %s into %s: %s is not an ancestor of %s", target, youngest, target, youngest)
	}
	for _, b := range chain[:len(chain)-1] {
		if len(g.ChildrenOf(b)) > 1 {
			return nil, fmt.Errorf("fold %s into %s: %s has more than one child; fold only collapses a linear chain", target, youngest, b)
		}
	}

	var prs []uint64
	for _, b := range chain[1:] { // every folded branch except target itself
		sb, ok := g.Find(b)
		if ok && sb.PR != nil {
			prs = append(prs, *sb.PR)
		}
	}

	return &FoldPlan{Target: target, Chain: chain, Youngest: youngest, PRsToClose: prs}, nil
}

// RunFold executes Prepare, Execute, and Commit for plan (spec §4.2.4):
// backup, persist FoldState with the pre-fold manifest embedded, reset
// target's ref to youngest's tip, re-parent youngest's children onto
// target, drop the folded branches from the manifest, delete their git
// refs, then clear state.
func (d *Deps) RunFold(ctx context.Context, plan *FoldPlan) (*FoldResult, error) {
	if len(plan.Chain) < 2 {
		return nil, ErrNothingToDo
	}

	originalBranch, _, err := d.Repo.CurrentBranch(ctx)
	if err != nil {
		return nil, err
	}

	backupTargets := append([]branchname.Name(nil), plan.Chain...)
	backup, err := d.createBackup(ctx, backupTargets)
	if err != nil {
		return nil, err
	}

	g, err := d.loadGraph()
	if err != nil {
		return nil, err
	}
	snapshot := g.Manifest()

	folded := plan.Chain[1:]
	fs := &state.FoldState{
		OpCommon: state.OpCommon{
			StartedAt:      nowUTC(),
			BackupID:       backup.BackupID,
			OriginalBranch: branchname.MustParse(originalBranch),
		},
		TargetBranch:     plan.Target,
		FoldedBranches:   folded,
		OriginalSnapshot: snapshot,
		PRsToClose:       plan.PRsToClose,
	}
	if err := d.Store.SaveOpState(state.OperationFold, fs); err != nil {
		return nil, err
	}

	return d.commitFold(ctx, plan, fs)
}

// ContinueFold resumes a fold after a crash between Prepare and Commit.
// Fold's Execute phase has no conflict-prone git operation (it only resets
// a ref and mutates the manifest), so resuming always replays Commit.
func (d *Deps) ContinueFold(ctx context.Context) (*FoldResult, error) {
	var fs state.FoldState
	ok, err := d.Store.LoadOpState(state.OperationFold, &fs)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, rerrors.ErrStaleOperationState
	}
	plan := &FoldPlan{
		Target:     fs.TargetBranch,
		Chain:      append([]branchname.Name{fs.TargetBranch}, fs.FoldedBranches...),
		Youngest:   fs.FoldedBranches[len(fs.FoldedBranches)-1],
		PRsToClose: fs.PRsToClose,
	}
	return d.commitFold(ctx, plan, &fs)
}

func (d *Deps) commitFold(ctx context.Context, plan *FoldPlan, fs *state.FoldState) (*FoldResult, error) {
	youngestTip, err := d.Repo.TipCommit(ctx, plan.Youngest.String())
	if err != nil {
		return nil, err
	}
	if err := d.Repo.ResetBranchTo(ctx, plan.Target.String(), youngestTip); err != nil {
		return nil, fmt.Errorf("reset %s to %s: %w", plan.Target, plan.Youngest, err)
	}

	g := stackgraph.New(fs.OriginalSnapshot)
	survivingChildren := g.ChildrenOf(plan.Youngest)
	for _, child := range survivingChildren {
		target := plan.Target
		if err := g.Reparent(child.Name, &target); err != nil {
			return nil, err
		}
	}
	for _, folded := range plan.Chain[1:] {
		g.Remove(folded)
	}
	g.ClearMergedIfEmpty()

	if err := d.Store.SaveManifest(g.Manifest()); err != nil {
		return nil, err
	}

	for _, folded := range plan.Chain[1:] {
		if folded.Equal(plan.Target) {
			continue
		}
		if err := d.Repo.DeleteBranch(ctx, folded.String(), true); err != nil {
			d.Log.Warn("delete folded branch %s: %v", folded, err)
		}
	}

	if err := d.Store.ClearOpState(state.OperationFold); err != nil {
		return nil, err
	}
	if err := d.retireBackup(); err != nil {
		return nil, err
	}

	return &FoldResult{Target: plan.Target, Folded: plan.Chain[1:], PRsToClose: plan.PRsToClose}, nil
}
