package view

import (
	"fmt"
	"strings"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/stackgraph"
)

// StatusLine is one entry in a status chain: the target branch's full
// ancestry plus its direct children, oldest to newest.
type StatusLine struct {
	Branch    branchname.Name
	IsCurrent bool
	PR        *uint64
}

// BuildStatus returns the chain from the stack's root down through
// branch's direct children: ancestors, the branch itself, then children,
// each flagged if it equals branch.
func BuildStatus(g *stackgraph.Graph, branch branchname.Name) []StatusLine {
	ancestry := g.Ancestry(branch)
	var lines []StatusLine
	for _, b := range ancestry {
		lines = append(lines, StatusLine{Branch: b.Name, IsCurrent: b.Name.Equal(branch), PR: b.PR})
	}
	for _, child := range g.ChildrenOf(branch) {
		lines = append(lines, StatusLine{Branch: child.Name, PR: child.PR})
	}
	return lines
}

// RenderStatus formats a status chain as an indented list, the current
// branch marked with an arrow, matching rung's terse single-branch-context
// rendering (as opposed to RenderLog's whole-tree view).
func RenderStatus(lines []StatusLine) string {
	var sb strings.Builder
	for i, l := range lines {
		marker := "  "
		if l.IsCurrent {
			marker = "▸ "
		}
		line := marker + l.Branch.String()
		if l.PR != nil {
			line += fmt.Sprintf(" (#%d)", *l.PR)
		}
		sb.WriteString(line)
		if i < len(lines)-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
