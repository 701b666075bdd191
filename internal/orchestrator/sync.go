package orchestrator

import (
	"context"
	"fmt"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/forge/github"
	"github.com/rung-dev/rung/internal/rerrors"
	"github.com/rung-dev/rung/internal/stackgraph"
	"github.com/rung-dev/rung/internal/state"
)

// batchThreshold is the PR-count above which the reconciler fetches via
// GetPRs (batched) instead of a serial GetPR per branch (spec §4.3).
const batchThreshold = 5

// MergedRecord reports one branch the reconciler found merged on the forge.
type MergedRecord struct {
	Branch     branchname.Name
	PR         uint64
	MergedInto branchname.Name
}

// ReparentRecord reports one active branch whose manifest parent changed
// because its old parent was found merged. PR is nil when the child was
// never submitted and so has no forge base to repair.
type ReparentRecord struct {
	Branch    branchname.Name
	OldParent *branchname.Name
	NewParent branchname.Name
	PR        *uint64
}

// RepairRecord reports one open PR whose base drifted from the branch's
// expected stack parent (a "ghost parent": someone changed the PR's base
// outside rung, or a prior sync was interrupted before step 6).
type RepairRecord struct {
	Branch  branchname.Name
	PR      uint64
	OldBase string
	NewBase string
}

// ReconcileResult is the reconciler's output (spec §4.3).
type ReconcileResult struct {
	Merged     []MergedRecord
	Reparented []ReparentRecord
	Repaired   []RepairRecord
}

// reconcile implements spec §4.3 end to end against g, mutating it in
// place: merged branches move to g's merged list, their direct children are
// re-parented, and ghost-parent drift is reported for step 6 to repair.
func (d *Deps) reconcile(ctx context.Context, g *stackgraph.Graph, defaultBranch branchname.Name) (*ReconcileResult, error) {
	tracked := g.Manifest().Branches
	numbers := make([]int, 0, len(tracked))
	for _, b := range tracked {
		if b.PR != nil {
			numbers = append(numbers, int(*b.PR))
		}
	}

	prs, err := d.fetchPRs(ctx, numbers)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{}
	mergedNames := map[string]struct{}{}
	for _, b := range tracked {
		if b.PR == nil {
			continue
		}
		pr, ok := prs[int(*b.PR)]
		if !ok {
			continue
		}
		switch pr.State {
		case github.Merged:
			result.Merged = append(result.Merged, MergedRecord{
				Branch:     b.Name,
				PR:         *b.PR,
				MergedInto: branchname.MustParse(pr.Base),
			})
			mergedNames[b.Name.String()] = struct{}{}
		case github.Open:
			expected := defaultBranch
			if b.Parent != nil {
				expected = *b.Parent
			}
			if pr.Base != expected.String() {
				result.Repaired = append(result.Repaired, RepairRecord{
					Branch:  b.Name,
					PR:      *b.PR,
					OldBase: pr.Base,
					NewBase: expected.String(),
				})
			}
		case github.Closed:
			// Closed without merging: neither a merge nor a base-mismatch
			// repair applies.
		}
	}

	mergedAt := nowUTC()
	for _, mr := range result.Merged {
		children := g.ChildrenOf(mr.Branch)
		if _, ok := g.MarkMerged(mr.Branch, mergedAt); !ok {
			continue
		}
		for _, child := range children {
			oldParent := child.Parent
			dest := mr.MergedInto
			var newParent *branchname.Name // nil: merged into the default branch
			if !dest.Equal(defaultBranch) {
				newParent = &dest
			}
			if err := g.Reparent(child.Name, newParent); err != nil {
				return nil, fmt.Errorf("reparent %s after %s merged: %w", child.Name, mr.Branch, err)
			}
			result.Reparented = append(result.Reparented, ReparentRecord{
				Branch: child.Name, OldParent: oldParent, NewParent: dest, PR: child.PR,
			})
		}
	}
	g.ClearMergedIfEmpty()

	return result, nil
}

// fetchPRs fetches numbers serially via GetPR, or in one batch via GetPRs
// once the set exceeds batchThreshold (spec §4.3).
func (d *Deps) fetchPRs(ctx context.Context, numbers []int) (map[int]*github.PullRequest, error) {
	if len(numbers) > batchThreshold {
		return d.Forge.GetPRs(ctx, numbers)
	}
	out := make(map[int]*github.PullRequest, len(numbers))
	for _, n := range numbers {
		pr, err := d.Forge.GetPR(ctx, n)
		if err != nil {
			return nil, err
		}
		out[n] = pr
	}
	return out, nil
}

// SyncResult is sync's final accounting, reported back to the CLI.
type SyncResult struct {
	Reconcile *ReconcileResult
	Removed   []branchname.Name // stale branches dropped from the manifest
	Rebased   []branchname.Name
	Skipped   []branchname.Name // skipped because an ancestor's rebase failed
}

// SyncOutcome mirrors RestackResult's shape for the CLI's rendering.
type SyncOutcome int

const (
	SyncDone SyncOutcome = iota
	SyncConflict
)

// RunSync implements spec §4.2.2 end to end.
func (d *Deps) RunSync(ctx context.Context, pushForce bool) (SyncOutcome, *SyncResult, error) {
	cfg, err := d.Store.LoadConfig()
	if err != nil {
		return SyncConflict, nil, err
	}
	defaultBranch, err := cfg.DefaultBranchName()
	if err != nil {
		return SyncConflict, nil, err
	}
	remote := cfg.General.DefaultRemote
	if remote == "" {
		remote = "origin"
	}

	if err := d.Repo.FetchBranch(ctx, remote, defaultBranch.String()); err != nil {
		return SyncConflict, nil, fmt.Errorf("fetch %s: %w", defaultBranch, err)
	}

	g, err := d.loadGraph()
	if err != nil {
		return SyncConflict, nil, err
	}

	reconcileResult, err := d.reconcile(ctx, g, defaultBranch)
	if err != nil {
		return SyncConflict, nil, err
	}

	removed, err := d.removeStaleBranches(ctx, g, defaultBranch)
	if err != nil {
		return SyncConflict, nil, err
	}

	if err := d.Store.SaveManifest(g.Manifest()); err != nil {
		return SyncConflict, nil, err
	}

	result := &SyncResult{Reconcile: reconcileResult, Removed: removed}
	pending := pendingBaseUpdates(reconcileResult)

	outcome, err := d.runSyncRebase(ctx, g, defaultBranch, remote, pushForce, result, pending)
	if err != nil || outcome == SyncConflict {
		return outcome, result, err
	}

	if err := d.submitBaseUpdates(ctx, pending); err != nil {
		d.Log.Warn("submitting base updates: %v", err)
	}

	return SyncDone, result, nil
}

// removeStaleBranches drops branches tracked in the manifest but absent
// from git (spec §4.2.2 step 3), re-parenting any surviving children to the
// stale branch's own parent so the manifest stays valid (I2).
func (d *Deps) removeStaleBranches(ctx context.Context, g *stackgraph.Graph, defaultBranch branchname.Name) ([]branchname.Name, error) {
	var removed []branchname.Name
	for _, b := range g.Manifest().Branches {
		exists, err := d.Repo.BranchExists(ctx, b.Name.String())
		if err != nil {
			return removed, fmt.Errorf("check existence of %s: %w", b.Name, err)
		}
		if exists {
			continue
		}
		children := g.ChildrenOf(b.Name)
		var newParent *branchname.Name // nil when b itself sat on the default branch
		if b.Parent != nil {
			dest := *b.Parent
			newParent = &dest
		}
		for _, child := range children {
			if err := g.Reparent(child.Name, newParent); err != nil {
				return removed, fmt.Errorf("reparent %s after dropping stale %s: %w", child.Name, b.Name, err)
			}
		}
		g.Remove(b.Name)
		removed = append(removed, b.Name)
	}
	return removed, nil
}

// runSyncRebase implements spec §4.2.2 steps 4-5 and 7: rebase every active
// branch whose parent's tip has advanced, in topological order, persisting
// SyncState (including pending, reconcile's still-owed forge base
// corrections) for crash-safe resume exactly as restack does.
func (d *Deps) runSyncRebase(ctx context.Context, g *stackgraph.Graph, defaultBranch branchname.Name, remote string, pushForce bool, result *SyncResult, pending []state.PendingBaseUpdate) (SyncOutcome, error) {
	branches := g.Manifest().Branches
	queue := make([]branchname.Name, 0, len(branches))
	roots := make([]branchname.Name, 0)
	for _, b := range branches {
		// A branch is a root of this walk when it has no parent, or its
		// parent is the default branch (or any other untracked branch) —
		// reparenting in reconcile/removeStaleBranches can leave a branch
		// pointing at a name that was never itself added to the graph.
		if b.Parent == nil {
			roots = append(roots, b.Name)
			continue
		}
		if _, ok := g.Find(*b.Parent); !ok {
			roots = append(roots, b.Name)
		}
	}
	for _, root := range roots {
		queue = append(queue, root)
		for _, desc := range g.Descendants(root) {
			queue = append(queue, desc.Name)
		}
	}

	originalBranch, _, err := d.Repo.CurrentBranch(ctx)
	if err != nil {
		return SyncConflict, err
	}

	backup, err := d.createBackup(ctx, queue)
	if err != nil {
		return SyncConflict, err
	}

	ss := &state.SyncState{
		OpCommon: state.OpCommon{
			StartedAt:      nowUTC(),
			BackupID:       backup.BackupID,
			OriginalBranch: branchname.MustParse(originalBranch),
			Remaining:      namesOf(queue),
		},
		ForgeBaseUpdatesPending: pending,
	}
	if err := d.Store.SaveOpState(state.OperationSync, ss); err != nil {
		return SyncConflict, err
	}

	failedParents := map[string]bool{}
	for ss.Advance() {
		branch := branchname.MustParse(ss.Current)
		sb, ok := g.Find(branch)
		if !ok {
			continue
		}
		baseName := defaultBranch
		if sb.Parent != nil {
			baseName = *sb.Parent
		}
		if failedParents[baseName.String()] {
			failedParents[branch.String()] = true
			result.Skipped = append(result.Skipped, branch)
			continue
		}

		baseTip, err := d.Repo.TipCommit(ctx, baseName.String())
		if err != nil {
			return SyncConflict, err
		}
		mergeBase, err := d.Repo.MergeBase(ctx, branch.String(), baseName.String())
		if err != nil {
			return SyncConflict, err
		}
		if mergeBase == baseTip {
			continue // already based; nothing to rebase
		}

		if err := d.checkoutAndRebase(ctx, branch.String(), baseName.String()); err != nil {
			if c, isConflict := asConflict(err); isConflict {
				if saveErr := d.Store.SaveOpState(state.OperationSync, ss); saveErr != nil {
					return SyncConflict, saveErr
				}
				return SyncConflict, c
			}
			return SyncConflict, err
		}

		if err := d.Repo.Push(ctx, remote, branch.String(), pushForce); err != nil {
			d.Log.Warn("push %s: %v", branch, err)
		}
		result.Rebased = append(result.Rebased, branch)
	}

	if err := d.Store.ClearOpState(state.OperationSync); err != nil {
		return SyncConflict, err
	}
	if err := d.retireBackup(); err != nil {
		return SyncConflict, err
	}
	return SyncDone, nil
}

// ContinueSync resumes an interrupted sync rebase (spec §4.2.2 step 5,
// mirroring restack's --continue contract).
func (d *Deps) ContinueSync(ctx context.Context, pushForce bool) (SyncOutcome, *SyncResult, error) {
	var ss state.SyncState
	ok, err := d.Store.LoadOpState(state.OperationSync, &ss)
	if err != nil {
		return SyncConflict, nil, err
	}
	if !ok {
		return SyncConflict, nil, rerrors.ErrStaleOperationState
	}

	if err := d.Repo.RebaseContinue(ctx); err != nil {
		if c, isConflict := asConflict(err); isConflict {
			d.Log.Warn("still conflicted on %s", c.Branch)
			return SyncConflict, nil, c
		}
		return SyncConflict, nil, err
	}

	cfg, err := d.Store.LoadConfig()
	if err != nil {
		return SyncConflict, nil, err
	}
	defaultBranch, err := cfg.DefaultBranchName()
	if err != nil {
		return SyncConflict, nil, err
	}
	remote := cfg.General.DefaultRemote
	if remote == "" {
		remote = "origin"
	}

	g, err := d.loadGraph()
	if err != nil {
		return SyncConflict, nil, err
	}

	result := &SyncResult{}
	outcome, err := d.runSyncRebase(ctx, g, defaultBranch, remote, pushForce, result, ss.ForgeBaseUpdatesPending)
	if err != nil || outcome == SyncConflict {
		return outcome, result, err
	}

	if err := d.submitBaseUpdates(ctx, ss.ForgeBaseUpdatesPending); err != nil {
		d.Log.Warn("submitting base updates: %v", err)
	}

	return SyncDone, result, nil
}

// pendingBaseUpdates flattens a ReconcileResult's Reparented/Repaired
// records into the forge PR base corrections spec §4.2.2 step 6 owes, so
// the list can be persisted in SyncState and survive a conflict pause.
func pendingBaseUpdates(rr *ReconcileResult) []state.PendingBaseUpdate {
	var updates []state.PendingBaseUpdate
	for _, r := range rr.Reparented {
		if r.PR != nil {
			updates = append(updates, state.PendingBaseUpdate{PR: *r.PR, NewBase: r.NewParent.String()})
		}
	}
	for _, r := range rr.Repaired {
		updates = append(updates, state.PendingBaseUpdate{PR: r.PR, NewBase: r.NewBase})
	}
	return updates
}

// submitBaseUpdates implements spec §4.3's closing step and spec §4.2.2
// step 6: for every pending PR base correction, re-read its current base
// (skipping a no-op) and submit the expected one. Individual failures are
// warnings, never fatal (spec §4.3).
func (d *Deps) submitBaseUpdates(ctx context.Context, updates []state.PendingBaseUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	numbers := make([]int, len(updates))
	for i, u := range updates {
		numbers[i] = int(u.PR)
	}
	current, err := d.fetchPRs(ctx, numbers)
	if err != nil {
		return err
	}

	for _, u := range updates {
		pr, ok := current[int(u.PR)]
		if !ok || pr.Base == u.NewBase {
			continue
		}
		dst := u.NewBase
		if err := d.Forge.UpdatePR(ctx, int(u.PR), github.UpdatePROptions{Base: &dst}); err != nil {
			d.Log.Warn("update base of PR #%d to %s: %v", u.PR, dst, err)
		}
	}
	return nil
}
