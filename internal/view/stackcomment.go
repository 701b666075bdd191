package view

import (
	"fmt"
	"strings"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/state"
)

// StackCommentMarker is matched against a PR comment's first line to find
// the existing stack-navigation comment to update in place (spec §6).
const StackCommentMarker = "<!-- rung-stack -->"

// BuildChains groups manifest branches into root-to-tip paths, forking
// into one chain per child whenever a branch has more than one, so a
// forked stack gets a comment thread per leaf-to-root path rather than one
// comment trying to render a tree.
func BuildChains(m state.Manifest) [][]state.StackBranch {
	byParent := map[string][]state.StackBranch{}
	var roots []state.StackBranch
	for _, b := range m.Branches {
		key := ""
		if b.Parent != nil {
			key = b.Parent.String()
		}
		byParent[key] = append(byParent[key], b)
		if b.Parent == nil {
			roots = append(roots, b)
		}
	}
	var chains [][]state.StackBranch
	var walk func(chain []state.StackBranch, cur state.StackBranch)
	walk = func(chain []state.StackBranch, cur state.StackBranch) {
		chain = append(chain, cur)
		children := byParent[cur.Name.String()]
		if len(children) == 0 {
			chains = append(chains, chain)
			return
		}
		for _, c := range children {
			walk(append([]state.StackBranch(nil), chain...), c)
		}
	}
	for _, r := range roots {
		walk(nil, r)
	}
	return chains
}

// RenderStackComment builds the navigation comment body for the PR
// belonging to chain[current] (spec §6): the marker on its own first
// line, then every branch in the chain bulleted base-to-tip, the current
// PR suffixed with a pointer glyph, merged PRs struck through, and a
// final bullet naming the base branch.
func RenderStackComment(chain []state.StackBranch, current int, m state.Manifest) string {
	var sb strings.Builder
	sb.WriteString(StackCommentMarker)
	sb.WriteByte('\n')
	for i, b := range chain {
		line := fmt.Sprintf("- %s", b.Name)
		if isMerged(m, b.Name) {
			line = fmt.Sprintf("- ~~%s~~", b.Name)
		}
		if i == current {
			line += " 👈"
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	base := "the default branch"
	if len(chain) > 0 && chain[0].Parent != nil {
		base = chain[0].Parent.String()
	}
	sb.WriteString(fmt.Sprintf("- %s\n", base))
	return sb.String()
}

func isMerged(m state.Manifest, name branchname.Name) bool {
	for _, mb := range m.Merged {
		if mb.Name.Equal(name) {
			return true
		}
	}
	return false
}
