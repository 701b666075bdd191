// Package stackgraph implements the pure, in-memory stack graph: a forest
// of branches with topology operations and invariant enforcement
// (spec §4.1). It operates on state.Manifest values but never touches
// disk, git, or the forge.
package stackgraph

import (
	"fmt"
	"time"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/state"
)

// ErrCycle reports that a reparent would create a cycle.
var ErrCycle = fmt.Errorf("would create a cycle")

// Graph is the in-memory stack graph. Mutations operate on a copy of the
// manifest's branch list; call Manifest to read the result back out.
//
// Linear scans are acceptable at current expected sizes (<=20 branches);
// the index map below is the extension point mentioned in spec §4.1 for
// larger stacks.
type Graph struct {
	branches []state.StackBranch
	merged   []state.MergedBranch
	index    map[string]int // name -> position in branches, rebuilt on mutation
}

// New builds a Graph from a manifest snapshot.
func New(m state.Manifest) *Graph {
	g := &Graph{
		branches: append([]state.StackBranch(nil), m.Branches...),
		merged:   append([]state.MergedBranch(nil), m.Merged...),
	}
	g.reindex()
	return g
}

func (g *Graph) reindex() {
	g.index = make(map[string]int, len(g.branches))
	for i, b := range g.branches {
		g.index[b.Name.String()] = i
	}
}

// Manifest returns the current state as a manifest snapshot.
func (g *Graph) Manifest() state.Manifest {
	return state.Manifest{
		Branches: append([]state.StackBranch(nil), g.branches...),
		Merged:   append([]state.MergedBranch(nil), g.merged...),
	}
}

// Find returns the active branch named name.
func (g *Graph) Find(name branchname.Name) (state.StackBranch, bool) {
	i, ok := g.index[name.String()]
	if !ok {
		return state.StackBranch{}, false
	}
	return g.branches[i], true
}

// ChildrenOf returns the direct active children of name.
func (g *Graph) ChildrenOf(name branchname.Name) []state.StackBranch {
	var children []state.StackBranch
	for _, b := range g.branches {
		if b.Parent != nil && b.Parent.Equal(name) {
			children = append(children, b)
		}
	}
	return children
}

// Descendants returns all descendants of name, parents before children
// (a topological, breadth-first order).
func (g *Graph) Descendants(name branchname.Name) []state.StackBranch {
	var out []state.StackBranch
	frontier := []branchname.Name{name}
	for len(frontier) > 0 {
		var next []branchname.Name
		for _, n := range frontier {
			for _, c := range g.ChildrenOf(n) {
				out = append(out, c)
				next = append(next, c.Name)
			}
		}
		frontier = next
	}
	return out
}

// Ancestry returns the chain from the root-most tracked ancestor down to
// (and including) name, or nil when name is not in the graph. The first
// element's Parent is either nil (rooted at the default branch) or names a
// branch that is not in the graph.
func (g *Graph) Ancestry(name branchname.Name) []state.StackBranch {
	b, ok := g.Find(name)
	if !ok {
		return nil
	}
	chain := []state.StackBranch{b}
	for b.Parent != nil {
		parent, ok := g.Find(*b.Parent)
		if !ok {
			break
		}
		chain = append([]state.StackBranch{parent}, chain...)
		b = parent
	}
	return chain
}

// Add appends a new active branch. The caller must ensure name is not
// already present; Add does not check.
func (g *Graph) Add(b state.StackBranch) {
	g.index[b.Name.String()] = len(g.branches)
	g.branches = append(g.branches, b)
}

// Update replaces the existing active branch with the same name as b in
// place, preserving its position. It fails if no branch named b.Name is
// currently present; callers that mean to add a new branch must use Add.
func (g *Graph) Update(b state.StackBranch) error {
	i, ok := g.index[b.Name.String()]
	if !ok {
		return fmt.Errorf("update %q: %w", b.Name, errBranchNotFound(b.Name))
	}
	g.branches[i] = b
	return nil
}

// Remove deletes the branch named name, preserving the order of the
// remainder.
func (g *Graph) Remove(name branchname.Name) (state.StackBranch, bool) {
	i, ok := g.index[name.String()]
	if !ok {
		return state.StackBranch{}, false
	}
	removed := g.branches[i]
	g.branches = append(g.branches[:i], g.branches[i+1:]...)
	g.reindex()
	return removed, true
}

// WouldCreateCycle reports whether setting candidateParent as target's
// parent would introduce a cycle: true if candidateParent equals target or
// is a descendant of target.
func (g *Graph) WouldCreateCycle(target, candidateParent branchname.Name) bool {
	if target.Equal(candidateParent) {
		return true
	}
	for _, d := range g.Descendants(target) {
		if d.Name.Equal(candidateParent) {
			return true
		}
	}
	return false
}

// Reparent changes name's parent to newParent (nil meaning the default
// branch). It fails with ErrCycle if newParent is target or a descendant
// of target.
func (g *Graph) Reparent(name branchname.Name, newParent *branchname.Name) error {
	i, ok := g.index[name.String()]
	if !ok {
		return fmt.Errorf("reparent %q: %w", name, errBranchNotFound(name))
	}
	if newParent != nil && g.WouldCreateCycle(name, *newParent) {
		return fmt.Errorf("reparent %q onto %q: %w", name, *newParent, ErrCycle)
	}
	g.branches[i].Parent = newParent
	return nil
}

func errBranchNotFound(name branchname.Name) error {
	return fmt.Errorf("branch %q not found", name)
}

// MarkMerged moves name from branches to merged iff it has a PR recorded;
// branches without a PR are dropped outright (they were never submitted).
// Children are NOT re-parented here — that is the orchestrator's job, since
// re-parenting destination depends on context (the branch's former parent,
// or the default branch) that this pure graph doesn't carry.
func (g *Graph) MarkMerged(name branchname.Name, mergedAt time.Time) (state.MergedBranch, bool) {
	b, ok := g.Remove(name)
	if !ok {
		return state.MergedBranch{}, false
	}
	if b.PR == nil {
		return state.MergedBranch{}, false
	}
	mb := state.MergedBranch{
		Name:     b.Name,
		Parent:   b.Parent,
		PR:       *b.PR,
		MergedAt: mergedAt,
	}
	g.merged = append(g.merged, mb)
	return mb, true
}

// ClearMergedIfEmpty enforces I7: merged is cleared atomically once
// branches becomes empty.
func (g *Graph) ClearMergedIfEmpty() {
	if len(g.branches) == 0 {
		g.merged = nil
	}
}
