package cli

import (
	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/stackgraph"
)

// needsRestackMap computes, for every active branch, whether its tip has
// drifted from its parent: the same merge-base-vs-parent-tip comparison
// PlanRestack uses to decide RestackAlreadyBased, applied read-only across
// the whole graph for `log`/`status` rendering.
func (a *appContext) needsRestackMap(g *stackgraph.Graph, defaultBranch branchname.Name) map[string]bool {
	out := map[string]bool{}
	for _, b := range g.Manifest().Branches {
		parent := defaultBranch
		if b.Parent != nil {
			parent = *b.Parent
		}
		base, err := a.repo.MergeBase(a.ctx, b.Name.String(), parent.String())
		if err != nil {
			continue
		}
		tip, err := a.repo.TipCommit(a.ctx, parent.String())
		if err != nil {
			continue
		}
		out[b.Name.String()] = base != tip
	}
	return out
}
