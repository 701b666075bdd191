package orchestrator

import (
	"context"
	"fmt"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/forge/github"
	"github.com/rung-dev/rung/internal/rerrors"
	"github.com/rung-dev/rung/internal/state"
)

// baseUpdate records a PR base change so it can be rolled back if the merge
// itself fails (spec §4.2.3 step 4).
type baseUpdate struct {
	PRNumber int
	OldBase  string
}

// MergeResult is the merge's final on-disk/forge accounting, reported back
// to the CLI for rendering.
type MergeResult struct {
	MergedBranch       branchname.Name
	Destination        branchname.Name
	RebasedDescendants []branchname.Name
	SkippedDescendants []branchname.Name // skipped because an ancestor's rebase failed
}

// RunMerge implements spec §4.2.3 end to end: poll mergeability, retarget
// child PR bases, merge, cascade-rebase descendants, clean up refs.
func (d *Deps) RunMerge(ctx context.Context, branch branchname.Name, method github.MergeMethod) (*MergeResult, error) {
	g, err := d.loadGraph()
	if err != nil {
		return nil, err
	}
	sb, ok := g.Find(branch)
	if !ok {
		return nil, &rerrors.BranchNotFoundError{Branch: branch.String()}
	}
	if sb.PR == nil {
		return nil, fmt.Errorf("%s has no pull request to merge", branch)
	}

	pr, err := github.WaitForMergeable(ctx, d.Forge, int(*sb.PR))
	if err != nil {
		return nil, err
	}
	if pr.Mergeable != github.MergeableYes {
		mergeableState := pr.MergeableState
		if mergeableState == "" {
			mergeableState = string(pr.Mergeable)
		}
		return nil, &rerrors.NotMergeableError{State: mergeableState}
	}

	defaultBranch, err := d.Forge.DefaultBranch(ctx)
	if err != nil {
		return nil, err
	}
	destination := branchname.MustParse(defaultBranch)
	if sb.Parent != nil {
		destination = *sb.Parent
	}

	directChildren := g.ChildrenOf(branch)
	updates, err := d.retargetChildBases(ctx, directChildren, destination)
	if err != nil {
		d.rollbackBaseUpdates(ctx, updates)
		return nil, err
	}

	if err := d.Forge.MergePR(ctx, int(*sb.PR), method); err != nil {
		d.rollbackBaseUpdates(ctx, updates)
		return nil, fmt.Errorf("merge %s: %w", branch, err)
	}

	mergedAt := nowUTC()
	if _, ok := g.MarkMerged(branch, mergedAt); !ok {
		return nil, fmt.Errorf("mark %s merged in manifest: branch had no recorded PR", branch)
	}
	for _, child := range directChildren {
		var newParent *branchname.Name // nil: the destination is the default branch
		if sb.Parent != nil {
			dest := *sb.Parent
			newParent = &dest
		}
		if err := g.Reparent(child.Name, newParent); err != nil {
			return nil, err
		}
	}
	g.ClearMergedIfEmpty()
	if err := d.Store.SaveManifest(g.Manifest()); err != nil {
		return nil, err
	}

	result := &MergeResult{MergedBranch: branch, Destination: destination}
	var cascadeConflict *rerrors.Conflict
	for _, child := range directChildren {
		rebased, skipped, err := d.cascadeRebase(ctx, child.Name, destination, directChildren)
		result.RebasedDescendants = append(result.RebasedDescendants, rebased...)
		result.SkippedDescendants = append(result.SkippedDescendants, skipped...)
		if err != nil {
			if c, isConflict := asConflict(err); isConflict {
				d.Log.Warn("cascading rebase under %s stopped on a conflict in %s", child.Name, c.Branch)
				cascadeConflict = c
				continue
			}
			d.Log.Warn("cascading rebase under %s stopped: %v", child.Name, err)
		}
	}

	if err := d.Forge.DeleteRef(ctx, branch.String()); err != nil {
		d.Log.Warn("delete remote branch %s: %v", branch, err)
	}

	if err := d.Repo.Checkout(ctx, destination.String()); err != nil {
		d.Log.Warn("checkout %s: %v", destination, err)
	} else {
		if err := d.Repo.DeleteBranch(ctx, branch.String(), true); err != nil {
			d.Log.Warn("delete local branch %s: %v", branch, err)
		}
		if err := d.Repo.PullFastForward(ctx, "origin", destination.String()); err != nil {
			d.Log.Warn("fast-forward %s: %v", destination, err)
		}
	}

	if cascadeConflict != nil {
		return result, fmt.Errorf("%s merged, but the cascading rebase conflicted on %s; resolve it and run `rung sync`: %w", branch, cascadeConflict.Branch, cascadeConflict)
	}
	return result, nil
}

// retargetChildBases implements step 2: point every direct child PR at
// destination, recording the prior base for rollback.
func (d *Deps) retargetChildBases(ctx context.Context, children []state.StackBranch, destination branchname.Name) ([]baseUpdate, error) {
	var updates []baseUpdate
	dest := destination.String()
	for _, child := range children {
		if child.PR == nil {
			continue
		}
		pr, err := d.Forge.GetPR(ctx, int(*child.PR))
		if err != nil {
			return updates, err
		}
		if pr.Base == dest {
			continue
		}
		if err := d.Forge.UpdatePR(ctx, pr.Number, github.UpdatePROptions{Base: &dest}); err != nil {
			return updates, err
		}
		updates = append(updates, baseUpdate{PRNumber: pr.Number, OldBase: pr.Base})
	}
	return updates, nil
}

func (d *Deps) rollbackBaseUpdates(ctx context.Context, updates []baseUpdate) {
	for _, u := range updates {
		old := u.OldBase
		if err := d.Forge.UpdatePR(ctx, u.PRNumber, github.UpdatePROptions{Base: &old}); err != nil {
			d.Log.Warn("rollback base of PR #%d to %s: %v", u.PRNumber, old, err)
		}
	}
}

// cascadeRebase rebases target and every descendant of it onto their
// manifest parent's current tip, in topological order (parents before
// children), force-pushing each success and updating its forge base unless
// it was already handled as a direct child (step 2, already retargeted and
// reparented by the caller). It rebases only; it never mutates the
// manifest's parent links, since only target's link actually changed
// (deeper descendants keep the parent they already had). A branch whose
// parent failed or was skipped is itself reported skipped rather than
// attempted (step 6). A genuine rebase conflict is different from a
// skip: it halts this subtree's cascade immediately and is returned as a
// *rerrors.Conflict so the caller can surface it distinctly (spec §8 S6),
// rather than being logged and folded into skipped like an ancestor
// failure.
func (d *Deps) cascadeRebase(ctx context.Context, target, destination branchname.Name, directChildren []state.StackBranch) ([]branchname.Name, []branchname.Name, error) {
	g, err := d.loadGraph()
	if err != nil {
		return nil, nil, err
	}

	queue := []branchname.Name{target}
	for _, desc := range g.Descendants(target) {
		queue = append(queue, desc.Name)
	}

	var rebased, skipped []branchname.Name
	failedParents := map[string]bool{}
	for _, b := range queue {
		sb, ok := g.Find(b)
		parentName := destination.String()
		if ok && sb.Parent != nil {
			parentName = sb.Parent.String()
		}
		if failedParents[parentName] {
			failedParents[b.String()] = true
			skipped = append(skipped, b)
			continue
		}

		if err := d.checkoutAndRebase(ctx, b.String(), parentName); err != nil {
			if c, isConflict := asConflict(err); isConflict {
				return rebased, skipped, c
			}
			d.Log.Warn("rebase %s onto %s: %v", b, parentName, err)
			failedParents[b.String()] = true
			skipped = append(skipped, b)
			continue
		}

		rebased = append(rebased, b)
		isDirectChild := false
		for _, c := range directChildren {
			if c.Name.Equal(b) {
				isDirectChild = true
			}
		}
		if !isDirectChild {
			if err := d.pushAndUpdateBase(ctx, b); err != nil {
				d.Log.Warn("push/update base for %s: %v", b, err)
			}
		} else if err := d.Repo.Push(ctx, "origin", b.String(), true); err != nil {
			d.Log.Warn("push %s: %v", b, err)
		}
	}
	return rebased, skipped, nil
}

func (d *Deps) pushAndUpdateBase(ctx context.Context, branch branchname.Name) error {
	if err := d.Repo.Push(ctx, "origin", branch.String(), true); err != nil {
		return err
	}
	g, err := d.loadGraph()
	if err != nil {
		return err
	}
	sb, ok := g.Find(branch)
	if !ok || sb.PR == nil || sb.Parent == nil {
		return nil
	}
	base := sb.Parent.String()
	return d.Forge.UpdatePR(ctx, int(*sb.PR), github.UpdatePROptions{Base: &base})
}
