// Package git is rung's typed facade over a git repository (spec §6's git
// collaborator contract): branches, commits, rebase, diff, blame, and
// remote operations. Read-heavy queries go through go-git directly; rebase,
// push, pull, and commit-creation shell out to the git binary, which is the
// only thing that implements interactive-rebase-compatible history rewrites.
package git

import "context"

// Hunk is one staged diff hunk, as consumed by the absorb router (spec
// §4.4, §6).
type Hunk struct {
	File      string
	OldStart  int
	OldLines  int
	NewStart  int
	NewLines  int
	IsNewFile bool
}

// DivergenceKind classifies how a local branch relates to its
// remote-tracking counterpart.
type DivergenceKind int

const (
	InSync DivergenceKind = iota
	Ahead
	Behind
	Diverged
	NoRemote
)

// Divergence describes local-vs-remote-tracking branch drift.
type Divergence struct {
	Kind   DivergenceKind
	Ahead  int
	Behind int
}

// Repository is the full surface rung's engine consumes from git, matching
// spec §6 one-for-one. Tests substitute gittest.Fake, which implements the
// same contract without touching a real repository.
type Repository interface {
	// Repository info.
	WorkingDir() string
	CurrentBranch(ctx context.Context) (name string, detached bool, err error)
	IsRebaseInProgress(ctx context.Context) (bool, error)

	// Branch ops.
	BranchExists(ctx context.Context, name string) (bool, error)
	CreateBranchAt(ctx context.Context, name, commit string) error
	ResetBranchTo(ctx context.Context, name, commit string) error
	Checkout(ctx context.Context, name string) error
	DeleteBranch(ctx context.Context, name string, force bool) error
	ListBranches(ctx context.Context) ([]string, error)
	TipCommit(ctx context.Context, name string) (string, error)
	RemoteTipCommit(ctx context.Context, remote, name string) (string, error)
	TipCommitMessage(ctx context.Context, name string) (string, error)

	// Commit ops.
	FindCommit(ctx context.Context, id string) (bool, error)
	CommitMessage(ctx context.Context, id string) (string, error)
	MergeBase(ctx context.Context, a, b string) (string, error)
	CommitsBetween(ctx context.Context, base, head string) ([]string, error)
	CountCommitsBetween(ctx context.Context, base, head string) (int, error)
	IsAncestor(ctx context.Context, ancestor, commit string) (bool, error)

	// Working dir.
	IsClean(ctx context.Context) (bool, error)
	StageAll(ctx context.Context) error
	HasStagedChanges(ctx context.Context) (bool, error)
	CreateCommit(ctx context.Context, message string) error
	CreateFixupCommit(ctx context.Context, target string) error

	// Rebase.
	RebaseOnto(ctx context.Context, branch, onto string) error
	RebaseOntoFrom(ctx context.Context, onto, from string) error
	RebaseAbort(ctx context.Context) error
	RebaseContinue(ctx context.Context) error
	ConflictedFiles(ctx context.Context) ([]string, error)

	// Diff.
	StagedHunks(ctx context.Context) ([]Hunk, error)
	Blame(ctx context.Context, file string, startLine, endLine int) ([]string, error)

	// Remote.
	RemoteURL(ctx context.Context, remote string) (string, error)
	Divergence(ctx context.Context, local, remote string) (Divergence, error)
	FetchAll(ctx context.Context) error
	FetchBranch(ctx context.Context, remote, branch string) error
	PullFastForward(ctx context.Context, remote, branch string) error
	Push(ctx context.Context, remote, branch string, force bool) error
}
