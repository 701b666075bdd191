// Package view builds read-only derived representations of the stack
// graph for rendering: the `log` tree, the `status` chain, and the
// stack-navigation PR comment body (spec §6's component J, "status & log
// view models"). Nothing here touches git or the forge directly; callers
// supply whatever git-derived facts (current branch, needs-restack) the
// view needs, keeping this package a pure function of already-loaded
// state.
package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/stackgraph"
	"github.com/rung-dev/rung/internal/state"
)

var (
	currentStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	needsRestackStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// LogLine is one rendered row of the stack tree, in print order: each
// branch comes before its children (roots first, depth-first).
type LogLine struct {
	Branch       branchname.Name
	Depth        int
	IsCurrent    bool
	NeedsRestack bool
	PR           *uint64
}

// LogOptions configures BuildLog.
type LogOptions struct {
	Current      branchname.Name
	NeedsRestack map[string]bool // branch name -> true if its tip has drifted from its parent
	Color        bool
}

// BuildLog walks the manifest's forest depth-first from every root,
// children before their own continuation, mirroring the teacher's
// getStackLines upstack/branch/downstack composition collapsed into a
// single recursive descent (this package has no "current branch" detached
// subtree concept to preserve, so one DFS suffices).
func BuildLog(g *stackgraph.Graph, opts LogOptions) []LogLine {
	m := g.Manifest()
	var roots []state.StackBranch
	for _, b := range m.Branches {
		if b.Parent == nil {
			roots = append(roots, b)
		}
	}

	var lines []LogLine
	var walk func(b state.StackBranch, depth int)
	walk = func(b state.StackBranch, depth int) {
		lines = append(lines, LogLine{
			Branch:       b.Name,
			Depth:        depth,
			IsCurrent:    b.Name.Equal(opts.Current),
			NeedsRestack: opts.NeedsRestack[b.Name.String()],
			PR:           b.PR,
		})
		for _, child := range g.ChildrenOf(b.Name) {
			walk(child, depth+1)
		}
	}
	for _, r := range roots {
		walk(r, 0)
	}
	return lines
}

// RenderLog formats lines in the teacher's glyph style: ◉ for the current
// branch, ◯ otherwise, "│  " indent per depth, a trailing "(needs
// restack)" hint, and PR numbers in parens.
func RenderLog(lines []LogLine, color bool) string {
	var sb strings.Builder
	for i, l := range lines {
		prefix := strings.Repeat("│  ", l.Depth)
		symbol := "◯"
		name := l.Branch.String()
		if l.IsCurrent {
			symbol = "◉"
			if color {
				name = currentStyle.Render(name)
			}
		}
		line := prefix + symbol + " " + name
		if l.PR != nil {
			line += fmt.Sprintf(" (#%d)", *l.PR)
		}
		if l.NeedsRestack {
			hint := "(needs restack)"
			if color {
				hint = needsRestackStyle.Render(hint)
			}
			line += " " + hint
		}
		sb.WriteString(line)
		if i < len(lines)-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
