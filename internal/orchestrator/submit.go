package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/forge/github"
	"github.com/rung-dev/rung/internal/stackgraph"
	"github.com/rung-dev/rung/internal/view"
)

// SubmitAction classifies a branch's plan item (spec §4.2.5).
type SubmitAction int

const (
	SubmitCreate SubmitAction = iota
	SubmitUpdate
)

// SubmitItem is one branch's plan entry.
type SubmitItem struct {
	Branch     branchname.Name
	BaseBranch string
	Action     SubmitAction
	ExistingPR *github.PullRequest // set when Action == SubmitUpdate
}

// SubmitPlan is the immutable output of PlanSubmit.
type SubmitPlan struct {
	Items []SubmitItem
}

// SubmitOutcome reports what happened to one branch during Execute.
type SubmitOutcome struct {
	Branch  branchname.Name
	Action  SubmitAction
	PR      uint64
	Warning string
}

// SubmitResult is the aggregate Execute/Commit report.
type SubmitResult struct {
	Outcomes []SubmitOutcome
}

// PlanSubmit reads every active branch named (or every active branch, when
// branches is empty) and queries the forge for an existing open PR whose
// head matches, classifying each as Create or Update (spec §4.2.5 Plan
// pass).
func (d *Deps) PlanSubmit(ctx context.Context, branches []branchname.Name) (*SubmitPlan, error) {
	g, err := d.loadGraph()
	if err != nil {
		return nil, err
	}
	cfg, err := d.Store.LoadConfig()
	if err != nil {
		return nil, err
	}
	defaultBranch, err := cfg.DefaultBranchName()
	if err != nil {
		return nil, err
	}

	targets := branches
	if len(targets) == 0 {
		for _, b := range g.Manifest().Branches {
			targets = append(targets, b.Name)
		}
	}

	var items []SubmitItem
	for _, name := range targets {
		sb, ok := g.Find(name)
		if !ok {
			return nil, fmt.Errorf("submit: %s is not a tracked stack branch", name)
		}
		base := defaultBranch.String()
		if sb.Parent != nil {
			base = sb.Parent.String()
		}

		existing, err := d.Forge.FindOpenPRForBranch(ctx, name.String())
		if err != nil {
			return nil, fmt.Errorf("query existing PR for %s: %w", name, err)
		}
		action := SubmitCreate
		if existing != nil {
			action = SubmitUpdate
		}
		items = append(items, SubmitItem{Branch: name, BaseBranch: base, Action: action, ExistingPR: existing})
	}

	return &SubmitPlan{Items: items}, nil
}

// RunSubmit walks the plan in order (spec §4.2.5 Execute pass). Submit
// tolerates partial success: a per-branch failure is recorded as a warning
// on that branch's outcome and execution continues with the next branch,
// rather than aborting the whole submit.
func (d *Deps) RunSubmit(ctx context.Context, plan *SubmitPlan, pushForce bool) (*SubmitResult, error) {
	result := &SubmitResult{}
	g, err := d.loadGraph()
	if err != nil {
		return nil, err
	}

	for _, item := range plan.Items {
		outcome, err := d.submitOne(ctx, g, item, pushForce)
		if err != nil {
			d.Log.Warn("submit %s: %v", item.Branch, err)
			outcome = SubmitOutcome{Branch: item.Branch, Action: item.Action, Warning: err.Error()}
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	if err := d.Store.SaveManifest(g.Manifest()); err != nil {
		return nil, err
	}

	d.regenerateStackComments(ctx, g)

	return result, nil
}

func (d *Deps) submitOne(ctx context.Context, g *stackgraph.Graph, item SubmitItem, pushForce bool) (SubmitOutcome, error) {
	if remoteTip, err := d.Repo.RemoteTipCommit(ctx, "origin", item.Branch.String()); err == nil {
		if localTip, err := d.Repo.TipCommit(ctx, item.Branch.String()); err == nil && localTip != remoteTip && !pushForce {
			d.Log.Warn("%s has diverged from origin/%s; pushing anyway", item.Branch, item.Branch)
		}
	}
	if err := d.Repo.Push(ctx, "origin", item.Branch.String(), pushForce); err != nil {
		return SubmitOutcome{}, fmt.Errorf("push: %w", err)
	}

	switch item.Action {
	case SubmitUpdate:
		// Between Plan and Execute an external actor may have closed the
		// PR; re-query so we never patch a stale one.
		current, err := d.Forge.GetPR(ctx, item.ExistingPR.Number)
		if err != nil {
			return SubmitOutcome{}, fmt.Errorf("re-read PR #%d: %w", item.ExistingPR.Number, err)
		}
		if current.State != github.Open {
			return d.createPR(ctx, g, item)
		}
		if current.Base != item.BaseBranch {
			base := item.BaseBranch
			if err := d.Forge.UpdatePR(ctx, current.Number, github.UpdatePROptions{Base: &base}); err != nil {
				return SubmitOutcome{}, fmt.Errorf("update PR #%d base: %w", current.Number, err)
			}
		}
		d.recordPR(g, item.Branch, uint64(current.Number))
		return SubmitOutcome{Branch: item.Branch, Action: SubmitUpdate, PR: uint64(current.Number)}, nil
	default:
		return d.createPR(ctx, g, item)
	}
}

// createPR re-queries for an externally created PR immediately before
// opening a new one (spec §12: "the re-query between plan and execute in
// submit is essential... a second submit after a network hiccup would
// create duplicate PRs").
func (d *Deps) createPR(ctx context.Context, g *stackgraph.Graph, item SubmitItem) (SubmitOutcome, error) {
	existing, err := d.Forge.FindOpenPRForBranch(ctx, item.Branch.String())
	if err != nil {
		return SubmitOutcome{}, fmt.Errorf("re-query before create: %w", err)
	}
	if existing != nil {
		if existing.Base != item.BaseBranch {
			base := item.BaseBranch
			if err := d.Forge.UpdatePR(ctx, existing.Number, github.UpdatePROptions{Base: &base}); err != nil {
				return SubmitOutcome{}, fmt.Errorf("update PR #%d base: %w", existing.Number, err)
			}
		}
		d.recordPR(g, item.Branch, uint64(existing.Number))
		return SubmitOutcome{Branch: item.Branch, Action: SubmitUpdate, PR: uint64(existing.Number)}, nil
	}

	created, err := d.Forge.CreatePR(ctx, github.CreatePROptions{
		Title: item.Branch.String(),
		Head:  item.Branch.String(),
		Base:  item.BaseBranch,
	})
	if err != nil {
		return SubmitOutcome{}, fmt.Errorf("create PR: %w", err)
	}
	d.recordPR(g, item.Branch, uint64(created.Number))
	return SubmitOutcome{Branch: item.Branch, Action: SubmitCreate, PR: uint64(created.Number)}, nil
}

func (d *Deps) recordPR(g *stackgraph.Graph, branch branchname.Name, pr uint64) {
	sb, ok := g.Find(branch)
	if !ok {
		return
	}
	sb.PR = &pr
	_ = g.Update(sb)
}

// regenerateStackComments rebuilds the stack-navigation comment on every
// PR in the stack. Best-effort: a failure on one PR is logged and does not
// fail the submit (spec §4.2.5).
func (d *Deps) regenerateStackComments(ctx context.Context, g *stackgraph.Graph) {
	m := g.Manifest()
	chains := view.BuildChains(m)
	for _, chain := range chains {
		for i, b := range chain {
			if b.PR == nil {
				continue
			}
			body := view.RenderStackComment(chain, i, m)
			if err := d.upsertStackComment(ctx, int(*b.PR), body); err != nil {
				d.Log.Warn("update stack comment on #%d: %v", *b.PR, err)
			}
		}
	}
}

func (d *Deps) upsertStackComment(ctx context.Context, prNumber int, body string) error {
	comments, err := d.Forge.ListComments(ctx, prNumber)
	if err != nil {
		return err
	}
	for _, c := range comments {
		if strings.HasPrefix(c.Body, view.StackCommentMarker) {
			return d.Forge.UpdateComment(ctx, c.ID, body)
		}
	}
	_, err = d.Forge.CreateComment(ctx, prNumber, body)
	return err
}
