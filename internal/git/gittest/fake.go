// Package gittest provides an in-memory fake of git.Repository for testing
// the orchestrator, sync reconciler, and absorb router without a real git
// process. Spec §9: "Tests substitute in-memory fakes that implement the
// same contracts."
package gittest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rung-dev/rung/internal/git"
)

// commit is a minimal in-memory commit: a parent pointer and a message.
type commit struct {
	id      string
	parent  string // "" for a root commit
	message string
}

// Fake is an in-memory git.Repository. Commit ids are small integers
// rendered as hex-looking strings so tests can assert on them directly.
type Fake struct {
	branches       map[string]string // name -> commit id
	remoteBranches map[string]string // "remote/name" -> commit id
	commits        map[string]commit
	current        string
	detached       bool
	rebasing       bool
	rebaseConflict *git.Hunk
	conflictFiles  []string
	clean          bool
	staged         []git.Hunk
	hasStaged      bool
	blame          map[string][]string // "file:start-end" -> commit ids
	nextCommitID   int
	remoteURL      string
	pushed         map[string]string // branch -> last pushed commit id
}

var _ git.Repository = (*Fake)(nil)

// New builds an empty Fake repository with a single root commit on
// trunkBranch.
func New(trunkBranch string) *Fake {
	f := &Fake{
		branches:       map[string]string{},
		remoteBranches: map[string]string{},
		commits:        map[string]commit{},
		clean:          true,
		blame:          map[string][]string{},
		pushed:         map[string]string{},
	}
	root := f.newCommit("", "root")
	f.branches[trunkBranch] = root
	f.current = trunkBranch
	return f
}

func (f *Fake) newCommit(parent, message string) string {
	f.nextCommitID++
	id := fmt.Sprintf("%040x", f.nextCommitID)
	f.commits[id] = commit{id: id, parent: parent, message: message}
	return id
}

// --- test setup helpers (not part of git.Repository) ---

// Commit adds a new commit onto branch's current tip and moves the branch
// forward.
func (f *Fake) Commit(branch, message string) string {
	id := f.newCommit(f.branches[branch], message)
	f.branches[branch] = id
	if f.current == branch {
		// no-op; current branch tip tracked via f.branches
	}
	return id
}

// Tip returns a branch's current commit id.
func (f *Fake) Tip(branch string) string { return f.branches[branch] }

// SetRemoteTip sets remote/branch's tracked tip, for Divergence tests.
func (f *Fake) SetRemoteTip(branch, commitID string) {
	f.remoteBranches[branch] = commitID
}

// SetDirty marks the working tree as having uncommitted changes.
func (f *Fake) SetDirty(dirty bool) { f.clean = !dirty }

// SetBlame registers the commit ids returned by Blame for a given
// file/line-range key ("file:start-end").
func (f *Fake) SetBlame(file string, start, end int, commits []string) {
	f.blame[blameKey(file, start, end)] = commits
}

func blameKey(file string, start, end int) string {
	return file + ":" + strconv.Itoa(start) + "-" + strconv.Itoa(end)
}

// SetStagedHunks installs the hunks StagedHunks will return.
func (f *Fake) SetStagedHunks(hunks []git.Hunk) {
	f.staged = hunks
	f.hasStaged = len(hunks) > 0
}

// QueueConflict arranges for the next RebaseOnto/RebaseOntoFrom call
// targeting the given branch to fail with a conflict on files.
func (f *Fake) QueueConflict(branch string, files []string) {
	f.conflictFiles = files
	f.rebaseConflict = &git.Hunk{File: branch}
}

// RemoteURL test setter.
func (f *Fake) SetRemoteURL(url string) { f.remoteURL = url }

// PushedTip returns what was last pushed for branch, for assertions.
func (f *Fake) PushedTip(branch string) (string, bool) {
	id, ok := f.pushed[branch]
	return id, ok
}

// --- git.Repository implementation ---

func (f *Fake) WorkingDir() string { return "/fake" }

func (f *Fake) CurrentBranch(ctx context.Context) (string, bool, error) {
	return f.current, f.detached, nil
}

func (f *Fake) IsRebaseInProgress(ctx context.Context) (bool, error) { return f.rebasing, nil }

func (f *Fake) BranchExists(ctx context.Context, name string) (bool, error) {
	_, ok := f.branches[name]
	return ok, nil
}

func (f *Fake) CreateBranchAt(ctx context.Context, name, commitID string) error {
	if _, ok := f.commits[commitID]; !ok {
		return fmt.Errorf("unknown commit %s", commitID)
	}
	f.branches[name] = commitID
	return nil
}

func (f *Fake) ResetBranchTo(ctx context.Context, name, commitID string) error {
	if _, ok := f.commits[commitID]; !ok {
		return fmt.Errorf("unknown commit %s", commitID)
	}
	f.branches[name] = commitID
	return nil
}

func (f *Fake) Checkout(ctx context.Context, name string) error {
	if _, ok := f.branches[name]; !ok {
		return fmt.Errorf("unknown branch %s", name)
	}
	f.current = name
	f.detached = false
	return nil
}

func (f *Fake) DeleteBranch(ctx context.Context, name string, force bool) error {
	delete(f.branches, name)
	return nil
}

func (f *Fake) ListBranches(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(f.branches))
	for n := range f.branches {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (f *Fake) TipCommit(ctx context.Context, name string) (string, error) {
	id, ok := f.branches[name]
	if !ok {
		return "", fmt.Errorf("unknown branch %s", name)
	}
	return id, nil
}

func (f *Fake) RemoteTipCommit(ctx context.Context, remote, name string) (string, error) {
	id, ok := f.remoteBranches[name]
	if !ok {
		return "", fmt.Errorf("unknown remote branch %s/%s", remote, name)
	}
	return id, nil
}

func (f *Fake) TipCommitMessage(ctx context.Context, name string) (string, error) {
	id, ok := f.branches[name]
	if !ok {
		return "", fmt.Errorf("unknown branch %s", name)
	}
	return f.commits[id].message, nil
}

func (f *Fake) CommitMessage(ctx context.Context, id string) (string, error) {
	c, ok := f.commits[id]
	if !ok {
		return "", fmt.Errorf("unknown commit %s", id)
	}
	return c.message, nil
}

func (f *Fake) FindCommit(ctx context.Context, id string) (bool, error) {
	_, ok := f.commits[id]
	return ok, nil
}

func (f *Fake) MergeBase(ctx context.Context, a, b string) (string, error) {
	aChain := f.ancestryOf(a)
	bSeen := map[string]struct{}{}
	for _, c := range f.ancestryOf(b) {
		bSeen[c] = struct{}{}
	}
	for _, c := range aChain {
		if _, ok := bSeen[c]; ok {
			return c, nil
		}
	}
	return "", fmt.Errorf("no common ancestor between %s and %s", a, b)
}

func (f *Fake) ancestryOf(commitID string) []string {
	var chain []string
	cur := commitID
	for cur != "" {
		chain = append(chain, cur)
		cur = f.commits[cur].parent
	}
	return chain
}

func (f *Fake) CommitsBetween(ctx context.Context, base, head string) ([]string, error) {
	baseSeen := map[string]struct{}{}
	for _, c := range f.ancestryOf(base) {
		baseSeen[c] = struct{}{}
	}
	var out []string
	for _, c := range f.ancestryOf(head) {
		if _, ok := baseSeen[c]; ok {
			break
		}
		out = append([]string{c}, out...) // prepend to get oldest..newest
	}
	return out, nil
}

func (f *Fake) CountCommitsBetween(ctx context.Context, base, head string) (int, error) {
	commits, err := f.CommitsBetween(ctx, base, head)
	return len(commits), err
}

func (f *Fake) IsAncestor(ctx context.Context, ancestor, commitID string) (bool, error) {
	for _, c := range f.ancestryOf(commitID) {
		if c == ancestor {
			return true, nil
		}
	}
	return false, nil
}

func (f *Fake) IsClean(ctx context.Context) (bool, error) { return f.clean, nil }

func (f *Fake) StageAll(ctx context.Context) error {
	f.hasStaged = len(f.staged) > 0
	return nil
}

func (f *Fake) HasStagedChanges(ctx context.Context) (bool, error) { return f.hasStaged, nil }

func (f *Fake) CreateCommit(ctx context.Context, message string) error {
	id := f.newCommit(f.branches[f.current], message)
	f.branches[f.current] = id
	f.hasStaged = false
	f.staged = nil
	return nil
}

func (f *Fake) CreateFixupCommit(ctx context.Context, target string) error {
	targetCommit, ok := f.commits[target]
	if !ok {
		return fmt.Errorf("unknown target commit %s", target)
	}
	return f.CreateCommit(ctx, "fixup! "+strings.SplitN(targetCommit.message, "\n", 2)[0])
}

func (f *Fake) RebaseOnto(ctx context.Context, branch, onto string) error {
	if err := f.Checkout(ctx, branch); err != nil {
		return err
	}
	return f.rebase(branch, onto)
}

func (f *Fake) RebaseOntoFrom(ctx context.Context, onto, from string) error {
	return f.rebase(f.current, onto)
}

func (f *Fake) rebase(branch, onto string) error {
	if f.rebaseConflict != nil && f.rebaseConflict.File == branch {
		f.rebasing = true
		conflict := f.conflictFiles
		f.rebaseConflict = nil
		f.conflictFiles = nil
		return &conflictError{branch: branch, files: conflict}
	}
	ontoTip, ok := f.branches[onto]
	if !ok {
		ontoTip = onto // allow rebasing directly onto a raw commit id
	}
	f.branches[branch] = ontoTip
	return nil
}

func (f *Fake) RebaseAbort(ctx context.Context) error {
	f.rebasing = false
	return nil
}

func (f *Fake) RebaseContinue(ctx context.Context) error {
	f.rebasing = false
	return nil
}

func (f *Fake) ConflictedFiles(ctx context.Context) ([]string, error) { return f.conflictFiles, nil }

func (f *Fake) StagedHunks(ctx context.Context) ([]git.Hunk, error) { return f.staged, nil }

func (f *Fake) Blame(ctx context.Context, file string, start, end int) ([]string, error) {
	return f.blame[blameKey(file, start, end)], nil
}

func (f *Fake) RemoteURL(ctx context.Context, remote string) (string, error) { return f.remoteURL, nil }

func (f *Fake) Divergence(ctx context.Context, local, remote string) (git.Divergence, error) {
	remoteBranch := strings.TrimPrefix(remote, "origin/")
	remoteTip, ok := f.remoteBranches[remoteBranch]
	if !ok {
		return git.Divergence{Kind: git.NoRemote}, nil
	}
	localTip := f.branches[local]
	if localTip == remoteTip {
		return git.Divergence{Kind: git.InSync}, nil
	}
	localAncestry := map[string]struct{}{}
	for _, c := range f.ancestryOf(localTip) {
		localAncestry[c] = struct{}{}
	}
	_, remoteInLocal := localAncestry[remoteTip]
	remoteAncestry := map[string]struct{}{}
	for _, c := range f.ancestryOf(remoteTip) {
		remoteAncestry[c] = struct{}{}
	}
	_, localInRemote := remoteAncestry[localTip]
	switch {
	case remoteInLocal && !localInRemote:
		return git.Divergence{Kind: git.Ahead, Ahead: 1}, nil
	case localInRemote && !remoteInLocal:
		return git.Divergence{Kind: git.Behind, Behind: 1}, nil
	default:
		return git.Divergence{Kind: git.Diverged, Ahead: 1, Behind: 1}, nil
	}
}

func (f *Fake) FetchAll(ctx context.Context) error                           { return nil }
func (f *Fake) FetchBranch(ctx context.Context, remote, branch string) error { return nil }

func (f *Fake) PullFastForward(ctx context.Context, remote, branch string) error {
	if id, ok := f.remoteBranches[branch]; ok {
		f.branches[branch] = id
	}
	return nil
}

func (f *Fake) Push(ctx context.Context, remote, branch string, force bool) error {
	f.pushed[branch] = f.branches[branch]
	f.remoteBranches[branch] = f.branches[branch]
	return nil
}

// conflictError is returned by rebase operations to signal a paused
// rebase; orchestrator code converts it to *rerrors.Conflict.
type conflictError struct {
	branch string
	files  []string
}

func (e *conflictError) Error() string { return fmt.Sprintf("conflict on %s", e.branch) }

// Branch and Files let callers (orchestrator) build an *rerrors.Conflict
// without gittest depending on rerrors (avoiding an import cycle risk).
func (e *conflictError) Branch() string  { return e.branch }
func (e *conflictError) Files() []string { return e.files }
