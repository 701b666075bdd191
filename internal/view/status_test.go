package view

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/stackgraph"
	"github.com/rung-dev/rung/internal/state"
)

func TestBuildStatusIncludesAncestryAndChildren(t *testing.T) {
	g := stackgraph.New(state.Manifest{Branches: []state.StackBranch{
		sbLog("a", ""),
		sbLog("b", "a"),
		sbLog("c", "b"),
	}})

	lines := BuildStatus(g, branchname.MustParse("b"))
	var names []string
	for _, l := range lines {
		names = append(names, l.Branch.String())
	}
	require.Equal(t, []string{"a", "b", "c"}, names)
	require.True(t, lines[1].IsCurrent)
	require.False(t, lines[0].IsCurrent)
}

func TestRenderStatusMarksCurrent(t *testing.T) {
	pr := uint64(7)
	lines := []StatusLine{
		{Branch: branchname.MustParse("a")},
		{Branch: branchname.MustParse("b"), IsCurrent: true, PR: &pr},
	}
	out := RenderStatus(lines)
	require.Contains(t, out, "  a")
	require.Contains(t, out, "▸ b (#7)")
}
