package orchestrator

import (
	"context"
	"fmt"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/rerrors"
	"github.com/rung-dev/rung/internal/state"
)

// SplitPlan is the immutable output of PlanSplit (spec §4.2.4): divide
// source's commit range into len(SplitPoints)+1 segments, materializing
// a new branch at each split point and leaving source re-parented onto
// the last one. Commit-level selection UI is explicitly out of scope;
// callers supply SplitPoints directly (e.g. parsed from `--at <sha>`
// flags given multiple times).
type SplitPlan struct {
	Source         branchname.Name
	OriginalParent *branchname.Name
	SplitPoints    []string // commit ids, oldest to newest, strictly between source's base and tip
	NewBranches    []branchname.Name
}

// SplitResult reports what RunSplit did, for the CLI to render.
type SplitResult struct {
	Source      branchname.Name
	NewBranches []branchname.Name
}

// PlanSplit validates splitPoints against source's commit range and
// names the new intermediate branches source-split-1, source-split-2, ...
// oldest to newest.
func (d *Deps) PlanSplit(ctx context.Context, source branchname.Name, splitPoints []string) (*SplitPlan, error) {
	if len(splitPoints) == 0 {
		return nil, ErrNothingToDo
	}
	g, err := d.loadGraph()
	if err != nil {
		return nil, err
	}
	sb, ok := g.Find(source)
	if !ok {
		return nil, &rerrors.BranchNotFoundError{Branch: source.String()}
	}

	baseName := d.defaultBranchOrParent(ctx, sb.Parent)
	commits, err := d.Repo.CommitsBetween(ctx, baseName, source.String())
	if err != nil {
		return nil, fmt.Errorf("enumerate commits on %s: %w", source, err)
	}
	known := make(map[string]bool, len(commits))
	for _, c := range commits {
		known[c] = true
	}
	for _, sp := range splitPoints {
		if !known[sp] {
			return nil, fmt.Errorf("split %s: %s is not a commit on %s between %s and its tip", source, sp, source, baseName)
		}
	}

	newBranches := make([]branchname.Name, 0, len(splitPoints))
	for i := range splitPoints {
		name, err := branchname.Parse(fmt.Sprintf("%s-split-%d", source, i+1))
		if err != nil {
			return nil, err
		}
		newBranches = append(newBranches, name)
	}

	return &SplitPlan{
		Source:         source,
		OriginalParent: sb.Parent,
		SplitPoints:    append([]string(nil), splitPoints...),
		NewBranches:    newBranches,
	}, nil
}

func (d *Deps) defaultBranchOrParent(ctx context.Context, parent *branchname.Name) string {
	if parent != nil {
		return parent.String()
	}
	cfg, err := d.Store.LoadConfig()
	if err != nil {
		return "main"
	}
	name, err := cfg.DefaultBranchName()
	if err != nil {
		return "main"
	}
	return name.String()
}

// RunSplit executes Prepare, Execute, and Commit for plan (spec §4.2.4):
// backup source, persist SplitState, create each new branch at its split
// point chained off the previous one (or source's original parent for
// the first), re-parent source onto the last new branch, insert the new
// branches into the manifest, then clear state.
func (d *Deps) RunSplit(ctx context.Context, plan *SplitPlan) (*SplitResult, error) {
	originalBranch, _, err := d.Repo.CurrentBranch(ctx)
	if err != nil {
		return nil, err
	}

	backup, err := d.createBackup(ctx, []branchname.Name{plan.Source})
	if err != nil {
		return nil, err
	}

	ss := &state.SplitState{
		OpCommon: state.OpCommon{
			StartedAt:      nowUTC(),
			BackupID:       backup.BackupID,
			OriginalBranch: branchname.MustParse(originalBranch),
			Remaining:      namesOf(plan.NewBranches),
		},
		SourceBranch: plan.Source,
		SplitPoints:  plan.SplitPoints,
		NewBranches:  plan.NewBranches,
	}
	if err := d.Store.SaveOpState(state.OperationSplit, ss); err != nil {
		return nil, err
	}

	return d.commitSplit(ctx, plan, ss)
}

// ContinueSplit resumes a split after a crash. Branches already created
// are skipped on replay since CreateBranchAt targets are idempotent
// (creating at the same commit a second time is a no-op for our purposes).
func (d *Deps) ContinueSplit(ctx context.Context) (*SplitResult, error) {
	var ss state.SplitState
	ok, err := d.Store.LoadOpState(state.OperationSplit, &ss)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, rerrors.ErrStaleOperationState
	}
	g, err := d.loadGraph()
	if err != nil {
		return nil, err
	}
	sb, found := g.Find(ss.SourceBranch)
	var parent *branchname.Name
	if found {
		parent = sb.Parent
	}
	plan := &SplitPlan{
		Source:         ss.SourceBranch,
		OriginalParent: parent,
		SplitPoints:    ss.SplitPoints,
		NewBranches:    ss.NewBranches,
	}
	return d.commitSplit(ctx, plan, &ss)
}

func (d *Deps) commitSplit(ctx context.Context, plan *SplitPlan, ss *state.SplitState) (*SplitResult, error) {
	for i, newBranch := range plan.NewBranches {
		exists, err := d.Repo.BranchExists(ctx, newBranch.String())
		if err != nil {
			return nil, err
		}
		if !exists {
			if err := d.Repo.CreateBranchAt(ctx, newBranch.String(), plan.SplitPoints[i]); err != nil {
				return nil, fmt.Errorf("create split branch %s: %w", newBranch, err)
			}
		}
		ss.Completed = append(ss.Completed, newBranch.String())
		if err := d.Store.SaveOpState(state.OperationSplit, ss); err != nil {
			return nil, err
		}
	}

	g, err := d.loadGraph()
	if err != nil {
		return nil, err
	}
	for i, newBranch := range plan.NewBranches {
		var parent *branchname.Name
		if i == 0 {
			parent = plan.OriginalParent
		} else {
			parent = &plan.NewBranches[i-1]
		}
		if _, ok := g.Find(newBranch); ok {
			if err := g.Reparent(newBranch, parent); err != nil {
				return nil, err
			}
		} else {
			g.Add(state.StackBranch{Name: newBranch, Parent: parent, Created: nowUTC()})
		}
	}
	lastNew := plan.NewBranches[len(plan.NewBranches)-1]
	if err := g.Reparent(plan.Source, &lastNew); err != nil {
		return nil, err
	}
	ss.StackUpdated = true
	if err := d.Store.SaveManifest(g.Manifest()); err != nil {
		return nil, err
	}
	if err := d.Store.SaveOpState(state.OperationSplit, ss); err != nil {
		return nil, err
	}

	if err := d.Store.ClearOpState(state.OperationSplit); err != nil {
		return nil, err
	}
	if err := d.retireBackup(); err != nil {
		return nil, err
	}

	return &SplitResult{Source: plan.Source, NewBranches: plan.NewBranches}, nil
}
