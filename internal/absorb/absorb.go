// Package absorb implements the blame-directed fixup router (spec §4.4):
// given staged hunks, route each to the unique existing commit in the
// active branch's range that last touched its lines, and emit a single
// fixup! commit.
package absorb

import (
	"context"
	"fmt"

	"github.com/rung-dev/rung/internal/git"
)

// UnmappedReason names why a hunk couldn't be routed to a commit.
type UnmappedReason string

const (
	ReasonNewFile            UnmappedReason = "NewFile"
	ReasonBlameError         UnmappedReason = "BlameError"
	ReasonMultipleCommits    UnmappedReason = "MultipleCommits"
	ReasonCommitOnBaseBranch UnmappedReason = "CommitOnBaseBranch"
	ReasonCommitNotInStack   UnmappedReason = "CommitNotInStack"
)

// Unmapped is a hunk that could not be routed to a single target commit.
type Unmapped struct {
	Hunk   git.Hunk
	Reason UnmappedReason
}

// Action routes one hunk to its target commit.
type Action struct {
	Hunk          git.Hunk
	Target        string
	TargetMessage string
}

// Plan is the result of routing every staged hunk.
type Plan struct {
	Actions  []Action
	Unmapped []Unmapped
}

// repository is the subset of git.Repository absorb needs. Declared
// locally so absorb can be tested against a minimal double as well as the
// full gittest.Fake.
type repository interface {
	IsAncestor(ctx context.Context, ancestor, commit string) (bool, error)
	CommitsBetween(ctx context.Context, base, head string) ([]string, error)
	Blame(ctx context.Context, file string, startLine, endLine int) ([]string, error)
	CommitMessage(ctx context.Context, id string) (string, error)
	CreateFixupCommit(ctx context.Context, target string) error
}

// BuildPlan routes every hunk in hunks against the commit range
// (baseTip, headTip] (spec §4.4 steps 1-4).
func BuildPlan(ctx context.Context, repo repository, baseTip, headTip string, hunks []git.Hunk) (Plan, error) {
	inStack, err := repo.CommitsBetween(ctx, baseTip, headTip)
	if err != nil {
		return Plan{}, fmt.Errorf("list commits between base and head: %w", err)
	}
	inStackSet := make(map[string]struct{}, len(inStack))
	for _, c := range inStack {
		inStackSet[c] = struct{}{}
	}

	var plan Plan
	for _, h := range hunks {
		action, unmapped, err := routeHunk(ctx, repo, baseTip, inStackSet, h)
		if err != nil {
			return Plan{}, err
		}
		if unmapped != nil {
			plan.Unmapped = append(plan.Unmapped, *unmapped)
			continue
		}
		plan.Actions = append(plan.Actions, *action)
	}
	return plan, nil
}

func routeHunk(ctx context.Context, repo repository, baseTip string, inStack map[string]struct{}, h git.Hunk) (*Action, *Unmapped, error) {
	if h.IsNewFile {
		return nil, &Unmapped{Hunk: h, Reason: ReasonNewFile}, nil
	}

	start, end := blameRange(h)
	commits, err := repo.Blame(ctx, h.File, start, end)
	if err != nil {
		return nil, &Unmapped{Hunk: h, Reason: ReasonBlameError}, nil
	}
	if len(commits) == 0 {
		return nil, &Unmapped{Hunk: h, Reason: ReasonBlameError}, nil
	}
	if len(commits) > 1 {
		return nil, &Unmapped{Hunk: h, Reason: ReasonMultipleCommits}, nil
	}

	target := commits[0]

	isAncestorOfBase, err := repo.IsAncestor(ctx, target, baseTip)
	if err != nil {
		return nil, nil, fmt.Errorf("check ancestor of base: %w", err)
	}
	if isAncestorOfBase || target == baseTip {
		return nil, &Unmapped{Hunk: h, Reason: ReasonCommitOnBaseBranch}, nil
	}

	if _, ok := inStack[target]; !ok {
		return nil, &Unmapped{Hunk: h, Reason: ReasonCommitNotInStack}, nil
	}

	message, err := repo.CommitMessage(ctx, target)
	if err != nil {
		message = ""
	}

	return &Action{Hunk: h, Target: target, TargetMessage: message}, nil, nil
}

// blameRange implements spec §4.4 step 2: a modification/deletion hunk
// blames [old_start, old_start+old_lines-1]; a pure insertion (old_lines=0)
// blames the single adjacent line max(old_start, 1) (B2).
func blameRange(h git.Hunk) (start, end int) {
	if h.OldLines == 0 {
		line := h.OldStart
		if line < 1 {
			line = 1
		}
		return line, line
	}
	return h.OldStart, h.OldStart + h.OldLines - 1
}

// Execute groups Plan's actions by target and creates a single fixup!
// commit. Per spec §4.4, more than one distinct target across all actions
// is refused outright: the backend commit operation consumes the whole
// index, so per-target fixups would require per-hunk staging, which is not
// supported.
func Execute(ctx context.Context, repo repository, plan Plan) error {
	if len(plan.Actions) == 0 {
		return fmt.Errorf("nothing to absorb: no staged hunk maps to a commit in the stack")
	}

	targets := map[string]struct{}{}
	for _, a := range plan.Actions {
		targets[a.Target] = struct{}{}
	}
	if len(targets) > 1 {
		names := make([]string, 0, len(targets))
		for t := range targets {
			names = append(names, t)
		}
		return fmt.Errorf("staged changes touch multiple commits (%v): stage each separately and absorb again", names)
	}

	target := plan.Actions[0].Target
	return repo.CreateFixupCommit(ctx, target)
}
