// Package cli wires rung's cobra command tree to the orchestrator, doctor,
// and view packages (spec §6's command surface, component K). Each
// command builds an *appContext from the ambient repository, then calls
// straight into the already-tested collaborators; this package owns no
// stack-mutation logic of its own.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rung-dev/rung/internal/doctor"
	"github.com/rung-dev/rung/internal/forge/github"
	"github.com/rung-dev/rung/internal/git"
	"github.com/rung-dev/rung/internal/orchestrator"
	"github.com/rung-dev/rung/internal/rlog"
	"github.com/rung-dev/rung/internal/state"
)

// nowUTCForCLI is the single clock read for CLI-created manifest entries
// (e.g. `create`), mirroring orchestrator's own single-clock-read
// convention.
func nowUTCForCLI() time.Time { return time.Now().UTC() }

// globalFlags holds the persistent flags every command shares (spec §6).
type globalFlags struct {
	quiet bool
	json  bool
}

// appContext bundles everything a command needs: the repo, the state
// store, the orchestrator/doctor facades built on top of them, and the
// logger. Built fresh per invocation.
type appContext struct {
	ctx    context.Context
	repo   *git.Repo
	store  *state.Store
	forge  github.Forge // nil when no token could be resolved
	log    *rlog.Logger
	orch   *orchestrator.Deps
	doc    *doctor.Deps
	asJSON bool
}

// newAppContext discovers the repository rooted at the working directory,
// opens (or requires) rung's state store, and resolves an optional GitHub
// forge client. requireInit, when true, fails if `rung init` hasn't run
// yet (every command except init and update needs this).
func newAppContext(ctx context.Context, flags globalFlags, requireInit bool) (*appContext, error) {
	repo, err := git.Open(".")
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %w", err)
	}
	gitDir, err := repo.GitDir()
	if err != nil {
		return nil, fmt.Errorf("locate .git directory: %w", err)
	}
	store := state.NewStore(gitDir)
	if requireInit && !store.Initialised() {
		return nil, fmt.Errorf("rung is not initialized in this repository; run `rung init` first")
	}
	if err := store.EnsureDirs(); err != nil {
		return nil, err
	}

	log := rlog.New(rlog.Options{Quiet: flags.quiet})

	var forge github.Forge
	if client, err := newForgeClient(ctx, repo); err == nil {
		forge = client
	}

	orch := &orchestrator.Deps{Repo: repo, Forge: forge, Store: store, Log: log}
	doc := &doctor.Deps{Repo: repo, Store: store}

	return &appContext{ctx: ctx, repo: repo, store: store, forge: forge, log: log, orch: orch, doc: doc, asJSON: flags.json}, nil
}

// newForgeClient resolves a token and the owner/repo pair from the
// `origin` remote, building a real GitHub client. Commands that need the
// forge (submit, merge, sync) check forge == nil themselves and fail with
// a clear message rather than panicking on a nil Forge.
func newForgeClient(ctx context.Context, repo *git.Repo) (github.Forge, error) {
	token, err := github.ResolveToken(ctx, "")
	if err != nil {
		return nil, err
	}
	remoteURL, err := repo.RemoteURL(ctx, "origin")
	if err != nil {
		return nil, fmt.Errorf("read origin remote: %w", err)
	}
	ref, err := github.ParseRemoteURL(remoteURL)
	if err != nil {
		return nil, err
	}
	return github.NewClient(ctx, token, "", ref.Owner, ref.Repo)
}

// requireForge fails fast with a clear message instead of a nil-pointer
// dereference when a command needs the forge but none could be built.
func (a *appContext) requireForge() error {
	if a.forge == nil {
		return fmt.Errorf("no GitHub forge available; set GITHUB_TOKEN or authenticate `gh` and ensure an `origin` remote points at GitHub")
	}
	return nil
}

// currentBranchName returns the checked-out branch, failing on a detached
// HEAD (every command that needs "the current branch" goes through this).
func (a *appContext) currentBranchName() (string, error) {
	name, detached, err := a.repo.CurrentBranch(a.ctx)
	if err != nil {
		return "", err
	}
	if detached {
		return "", fmt.Errorf("not currently on a branch (detached HEAD)")
	}
	return name, nil
}

// addGlobalFlags registers the persistent flags spec §6 mandates on every
// command.
func addGlobalFlags(cmd *cobra.Command, flags *globalFlags) {
	cmd.PersistentFlags().BoolVar(&flags.quiet, "quiet", false, "Suppress non-essential output")
	cmd.PersistentFlags().BoolVar(&flags.json, "json", false, "Accepted by every command; output is human-readable text, not JSON")
}

// fail prints err via the logger (if available) and returns it so cobra
// reports a non-zero exit code (spec §6's exit-code contract).
func fail(log *rlog.Logger, err error) error {
	if log != nil {
		log.Error("%v", err)
	} else {
		fmt.Fprintln(os.Stderr, err)
	}
	return err
}

// abortOperation implements `--abort` for every resumable operation
// (restack, sync, split, fold): load kind's persisted state, recover the
// full branch set a backup covers from the manifest sidecar rather than
// Remaining (which may have already drained below what's in the backup),
// and hand it to Deps.Abort.
func (a *appContext) abortOperation(kind state.OperationKind) error {
	var common state.OpCommon
	ok, err := a.store.LoadOpState(kind, &common)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no %s operation is in progress", kind)
	}
	branchNames, err := a.store.BackupBranches(common.BackupID)
	if err != nil {
		return err
	}
	if err := a.orch.Abort(a.ctx, kind, common.BackupID, branchNames, common.OriginalBranch.String()); err != nil {
		return err
	}
	a.log.Success("aborted the in-progress %s", kind)
	return nil
}
