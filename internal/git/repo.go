package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/rung-dev/rung/internal/rerrors"
)

// classifyRebaseErr turns a failed `git rebase` invocation into a
// *rerrors.Conflict when the failure left conflicted files behind,
// matching spec §7's distinct Conflict error class. branchHint names the
// branch being rebased, for the Conflict's Branch field; if empty, the
// current branch is queried.
func classifyRebaseErr(ctx context.Context, r *Repo, branchHint string, err error) error {
	if err == nil {
		return nil
	}
	files, confErr := r.ConflictedFiles(ctx)
	if confErr != nil || len(files) == 0 {
		return err
	}
	branch := branchHint
	if branch == "" {
		if name, detached, cbErr := r.CurrentBranch(ctx); cbErr == nil && !detached {
			branch = name
		}
	}
	return &rerrors.Conflict{Branch: branch, Files: files}
}

// Repo is the real Repository implementation: go-git for repository
// discovery and read-only queries, the git binary (via runner) for
// anything that mutates history or talks to a remote.
type Repo struct {
	repo *gogit.Repository
	dir  string // repository working directory (top-level)
	run  *runner
}

var _ Repository = (*Repo)(nil)

// Open discovers and opens the git repository containing path.
func Open(path string) (*Repo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	r, err := gogit.PlainOpenWithOptions(absPath, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	wt, err := r.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	return &Repo{repo: r, dir: wt.Filesystem.Root(), run: newRunner(wt.Filesystem.Root())}, nil
}

// GitDir returns the repository's .git directory, where rung's state lives.
func (r *Repo) GitDir() (string, error) {
	out, err := r.run.runTrim(context.Background(), "rev-parse", "--git-dir")
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(out) {
		return out, nil
	}
	return filepath.Join(r.dir, out), nil
}

func (r *Repo) WorkingDir() string { return r.dir }

func (r *Repo) CurrentBranch(ctx context.Context) (string, bool, error) {
	head, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", true, nil
		}
		return "", false, err
	}
	if head.Name() == plumbing.HEAD || !head.Name().IsBranch() {
		return "", true, nil
	}
	return head.Name().Short(), false, nil
}

func (r *Repo) IsRebaseInProgress(ctx context.Context) (bool, error) {
	gitDir, err := r.GitDir()
	if err != nil {
		return false, err
	}
	for _, name := range []string{"rebase-merge", "rebase-apply"} {
		if _, err := dirExists(filepath.Join(gitDir, name)); err == nil {
			return true, nil
		}
	}
	return false, nil
}

func (r *Repo) BranchExists(ctx context.Context, name string) (bool, error) {
	_, err := r.repo.Reference(plumbing.NewBranchReferenceName(name), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *Repo) CreateBranchAt(ctx context.Context, name, commit string) error {
	_, err := r.run.run(ctx, "branch", name, commit)
	return err
}

func (r *Repo) ResetBranchTo(ctx context.Context, name, commit string) error {
	_, err := r.run.run(ctx, "branch", "-f", name, commit)
	return err
}

func (r *Repo) Checkout(ctx context.Context, name string) error {
	_, err := r.run.run(ctx, "checkout", name)
	return err
}

func (r *Repo) DeleteBranch(ctx context.Context, name string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := r.run.run(ctx, "branch", flag, name)
	return err
}

func (r *Repo) ListBranches(ctx context.Context) ([]string, error) {
	refs, err := r.repo.Branches()
	if err != nil {
		return nil, err
	}
	var out []string
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		out = append(out, ref.Name().Short())
		return nil
	})
	return out, err
}

func (r *Repo) TipCommit(ctx context.Context, name string) (string, error) {
	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(name), true)
	if err != nil {
		return "", fmt.Errorf("tip commit of %s: %w", name, err)
	}
	return ref.Hash().String(), nil
}

func (r *Repo) RemoteTipCommit(ctx context.Context, remote, name string) (string, error) {
	ref, err := r.repo.Reference(plumbing.NewRemoteReferenceName(remote, name), true)
	if err != nil {
		return "", fmt.Errorf("remote tip commit of %s/%s: %w", remote, name, err)
	}
	return ref.Hash().String(), nil
}

func (r *Repo) TipCommitMessage(ctx context.Context, name string) (string, error) {
	hash, err := r.TipCommit(ctx, name)
	if err != nil {
		return "", err
	}
	commit, err := r.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return "", err
	}
	return commit.Message, nil
}

func (r *Repo) CommitMessage(ctx context.Context, id string) (string, error) {
	commit, err := r.repo.CommitObject(plumbing.NewHash(id))
	if err != nil {
		return "", err
	}
	return commit.Message, nil
}

func (r *Repo) FindCommit(ctx context.Context, id string) (bool, error) {
	_, err := r.repo.CommitObject(plumbing.NewHash(id))
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *Repo) MergeBase(ctx context.Context, a, b string) (string, error) {
	out, err := r.run.runTrim(ctx, "merge-base", a, b)
	if err != nil {
		return "", err
	}
	return out, nil
}

func (r *Repo) CommitsBetween(ctx context.Context, base, head string) ([]string, error) {
	return r.run.runLines(ctx, "rev-list", "--reverse", base+".."+head)
}

func (r *Repo) CountCommitsBetween(ctx context.Context, base, head string) (int, error) {
	out, err := r.run.runTrim(ctx, "rev-list", "--count", base+".."+head)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("parse rev-list count: %w", err)
	}
	return n, nil
}

// IsAncestor reports whether ancestor is reachable from commit. `git
// merge-base --is-ancestor` exits 1 (not 0) for "no", which is not a
// command failure; only a non-exit-status error (git missing, bad repo) is
// propagated.
func (r *Repo) IsAncestor(ctx context.Context, ancestor, commit string) (bool, error) {
	_, err := r.run.run(ctx, "merge-base", "--is-ancestor", ancestor, commit)
	if err == nil {
		return true, nil
	}
	var gitErr *rerrors.GitCommandError
	if errors.As(err, &gitErr) {
		var exitErr *exec.ExitError
		if errors.As(gitErr.Err, &exitErr) && exitErr.ExitCode() == 1 {
			return false, nil
		}
	}
	return false, err
}

func (r *Repo) IsClean(ctx context.Context) (bool, error) {
	out, err := r.run.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "", nil
}

func (r *Repo) StageAll(ctx context.Context) error {
	_, err := r.run.run(ctx, "add", "-A")
	return err
}

func (r *Repo) HasStagedChanges(ctx context.Context) (bool, error) {
	_, err := r.run.run(ctx, "diff", "--cached", "--quiet")
	if err == nil {
		return false, nil
	}
	return true, nil
}

func (r *Repo) CreateCommit(ctx context.Context, message string) error {
	_, err := r.run.run(ctx, "commit", "-m", message)
	return err
}

func (r *Repo) CreateFixupCommit(ctx context.Context, target string) error {
	_, err := r.run.run(ctx, "commit", "--fixup="+target)
	return err
}

func (r *Repo) RebaseOnto(ctx context.Context, branch, onto string) error {
	if err := r.Checkout(ctx, branch); err != nil {
		return err
	}
	_, err := r.run.run(ctx, "rebase", onto)
	return classifyRebaseErr(ctx, r, branch, err)
}

func (r *Repo) RebaseOntoFrom(ctx context.Context, onto, from string) error {
	_, err := r.run.run(ctx, "rebase", "--onto", onto, from)
	return classifyRebaseErr(ctx, r, "", err)
}

func (r *Repo) RebaseAbort(ctx context.Context) error {
	_, err := r.run.run(ctx, "rebase", "--abort")
	return err
}

func (r *Repo) RebaseContinue(ctx context.Context) error {
	_, err := r.run.run(ctx, "rebase", "--continue")
	return classifyRebaseErr(ctx, r, "", err)
}

func (r *Repo) ConflictedFiles(ctx context.Context) ([]string, error) {
	return r.run.runLines(ctx, "diff", "--name-only", "--diff-filter=U")
}

func (r *Repo) RemoteURL(ctx context.Context, remote string) (string, error) {
	return r.run.runTrim(ctx, "remote", "get-url", remote)
}

func (r *Repo) FetchAll(ctx context.Context) error {
	_, err := r.run.run(ctx, "fetch", "--all", "--prune")
	return err
}

func (r *Repo) FetchBranch(ctx context.Context, remote, branch string) error {
	_, err := r.run.run(ctx, "fetch", remote, branch)
	return err
}

func (r *Repo) PullFastForward(ctx context.Context, remote, branch string) error {
	_, err := r.run.run(ctx, "pull", "--ff-only", remote, branch)
	return err
}

func (r *Repo) Push(ctx context.Context, remote, branch string, force bool) error {
	args := []string{"push", remote, branch}
	if force {
		args = []string{"push", "--force-with-lease", remote, branch}
	}
	_, err := r.run.run(ctx, args...)
	return err
}

// Divergence compares local against remoteTracking, a ref such as
// "origin/feature" (spec §6).
func (r *Repo) Divergence(ctx context.Context, local, remoteTracking string) (Divergence, error) {
	if _, err := r.repo.Reference(plumbing.ReferenceName("refs/remotes/"+remoteTracking), true); err != nil {
		return Divergence{Kind: NoRemote}, nil
	}
	aheadStr, err := r.run.runTrim(ctx, "rev-list", "--count", remoteTracking+".."+local)
	if err != nil {
		return Divergence{Kind: NoRemote}, nil
	}
	behindStr, err := r.run.runTrim(ctx, "rev-list", "--count", local+".."+remoteTracking)
	if err != nil {
		return Divergence{Kind: NoRemote}, nil
	}
	ahead, _ := strconv.Atoi(aheadStr)
	behind, _ := strconv.Atoi(behindStr)
	switch {
	case ahead == 0 && behind == 0:
		return Divergence{Kind: InSync}, nil
	case ahead > 0 && behind == 0:
		return Divergence{Kind: Ahead, Ahead: ahead}, nil
	case ahead == 0 && behind > 0:
		return Divergence{Kind: Behind, Behind: behind}, nil
	default:
		return Divergence{Kind: Diverged, Ahead: ahead, Behind: behind}, nil
	}
}

func dirExists(path string) (bool, error) {
	_, err := os.Stat(path)
	return err == nil, err
}
