package stackgraph

import (
	"testing"
	"time"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/state"
	"github.com/stretchr/testify/require"
)

func mustName(s string) branchname.Name { return branchname.MustParse(s) }

func chain(names ...string) state.Manifest {
	var branches []state.StackBranch
	var parent *branchname.Name
	for _, n := range names {
		name := mustName(n)
		branches = append(branches, state.StackBranch{Name: name, Parent: parent})
		p := name
		parent = &p
	}
	return state.Manifest{Branches: branches}
}

func TestDescendantsOrderedParentsBeforeChildren(t *testing.T) {
	g := New(chain("a", "b", "c"))
	d := g.Descendants(mustName("a"))
	require.Len(t, d, 2)
	require.Equal(t, "b", d[0].Name.String())
	require.Equal(t, "c", d[1].Name.String())
}

func TestAncestryRootToName(t *testing.T) {
	g := New(chain("a", "b", "c"))
	anc := g.Ancestry(mustName("c"))
	require.Equal(t, []string{"a", "b", "c"}, namesOf(anc))
}

func namesOf(bs []state.StackBranch) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.Name.String()
	}
	return out
}

func TestWouldCreateCycle(t *testing.T) {
	g := New(chain("a", "b", "c"))
	require.True(t, g.WouldCreateCycle(mustName("a"), mustName("c")))
	require.True(t, g.WouldCreateCycle(mustName("a"), mustName("a")))
	require.False(t, g.WouldCreateCycle(mustName("c"), mustName("a")))
}

func TestReparentRejectsCycle(t *testing.T) {
	g := New(chain("a", "b", "c"))
	c := mustName("c")
	err := g.Reparent(mustName("a"), &c)
	require.ErrorIs(t, err, ErrCycle)
}

func TestReparentToBase(t *testing.T) {
	g := New(chain("a", "b"))
	require.NoError(t, g.Reparent(mustName("b"), nil))
	b, ok := g.Find(mustName("b"))
	require.True(t, ok)
	require.Nil(t, b.Parent)
}

func TestMarkMergedRequiresPR(t *testing.T) {
	m := chain("a", "b")
	g := New(m)
	_, ok := g.MarkMerged(mustName("a"), time.Now())
	require.False(t, ok, "branch without a PR should be dropped, not merged")
	_, stillThere := g.Find(mustName("a"))
	require.False(t, stillThere)
}

func TestMarkMergedWithPR(t *testing.T) {
	pr := uint64(42)
	m := state.Manifest{Branches: []state.StackBranch{{Name: mustName("a"), PR: &pr}}}
	g := New(m)
	mb, ok := g.MarkMerged(mustName("a"), time.Unix(100, 0))
	require.True(t, ok)
	require.Equal(t, uint64(42), mb.PR)
	g.ClearMergedIfEmpty()
	require.Empty(t, g.Manifest().Merged, "I7: merged must clear once branches is empty")
}

func TestRemovePreservesOrder(t *testing.T) {
	g := New(chain("a", "b", "c"))
	_, ok := g.Remove(mustName("b"))
	require.True(t, ok)
	require.Equal(t, []string{"a", "c"}, namesOf(g.Manifest().Branches))
}
