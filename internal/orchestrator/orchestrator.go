// Package orchestrator implements the five-phase transactional contract
// (Plan, Prepare, Execute, Commit, Restore) shared by every destructive
// stack mutation, and the concrete operations built on it: restack, sync,
// merge, fold, split, and submit (spec §4.2).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/forge/github"
	"github.com/rung-dev/rung/internal/git"
	"github.com/rung-dev/rung/internal/rerrors"
	"github.com/rung-dev/rung/internal/rlog"
	"github.com/rung-dev/rung/internal/stackgraph"
	"github.com/rung-dev/rung/internal/state"
)

// Deps bundles the collaborators every operation needs. It holds no
// operation-specific state; a fresh Deps is safe to reuse across
// operations within a single process invocation.
type Deps struct {
	Repo  git.Repository
	Forge github.Forge
	Store *state.Store
	Log   *rlog.Logger
}

// loadGraph reads the manifest and wraps it in a stackgraph.Graph.
func (d *Deps) loadGraph() (*stackgraph.Graph, error) {
	m, err := d.Store.LoadManifest()
	if err != nil {
		return nil, err
	}
	return stackgraph.New(m), nil
}

// asConflict extracts a *rerrors.Conflict from err, whether it arrived as
// that concrete type (the real git backend) or as a duck-typed
// Branch()/Files() error (gittest.Fake, to avoid an import cycle with
// rerrors from the test package).
func asConflict(err error) (*rerrors.Conflict, bool) {
	if c, ok := rerrors.AsConflict(err); ok {
		return c, true
	}
	var duck interface {
		Branch() string
		Files() []string
	}
	if errors.As(err, &duck) {
		return &rerrors.Conflict{Branch: duck.Branch(), Files: duck.Files()}, true
	}
	return nil, false
}

// nowUTC is the single clock read used when stamping operation state, so a
// future resume/replay path has one place to override it in tests.
func nowUTC() time.Time { return time.Now().UTC() }

// newBackupID returns a monotonic-enough unix-nanosecond id for a new
// backup directory (spec §6: "refs/<unix-timestamp>/...").
func newBackupID() int64 { return time.Now().UTC().UnixNano() }

// createBackup snapshots the current tip of every named branch and
// persists it, returning the backup so its id can be recorded in the
// operation state (spec §4.2 Prepare).
func (d *Deps) createBackup(ctx context.Context, branches []branchname.Name) (state.Backup, error) {
	tips := make(map[branchname.Name]string, len(branches))
	for _, b := range branches {
		tip, err := d.Repo.TipCommit(ctx, b.String())
		if err != nil {
			return state.Backup{}, fmt.Errorf("snapshot tip of %s: %w", b, err)
		}
		tips[b] = tip
	}
	backup := state.NewBackup(newBackupID(), tips)
	if err := d.Store.CreateBackup(backup); err != nil {
		return state.Backup{}, err
	}
	return backup, nil
}

// restoreBackup implements the Restore (abort) phase: reset every recorded
// branch to its backed-up tip, checkout originalBranch, and report which
// branches were restored so the caller can decide whether it's safe to
// delete the backup (spec §4.2 step 5).
func (d *Deps) restoreBackup(ctx context.Context, backup state.Backup, originalBranch string) (restored []string, err error) {
	for branch, tip := range backup.Refs {
		if resetErr := d.Repo.ResetBranchTo(ctx, branch, tip); resetErr != nil {
			return restored, fmt.Errorf("restore %s to %s: %w", branch, tip, resetErr)
		}
		restored = append(restored, branch)
	}
	if originalBranch != "" {
		if checkoutErr := d.Repo.Checkout(ctx, originalBranch); checkoutErr != nil {
			return restored, fmt.Errorf("checkout original branch %s after restore: %w", originalBranch, checkoutErr)
		}
	}
	return restored, nil
}

// retireBackup replaces the just-completed operation's unconditional
// backup delete with a prune, so the most recent backups survive a
// successful Commit for `undo` (spec §6) to act on afterwards. Retention
// comes from config, falling back to the default if config can't be read.
func (d *Deps) retireBackup() error {
	retention := state.DefaultBackupRetention
	if cfg, err := d.Store.LoadConfig(); err == nil {
		retention = cfg.Retention()
	}
	return d.Store.PruneBackups(retention)
}

// Abort restores from a backup and clears operation state for kind. It is
// the entry point for `--abort`.
func (d *Deps) Abort(ctx context.Context, kind state.OperationKind, backupID int64, branchNames []string, originalBranch string) error {
	backup, err := d.Store.LoadBackup(backupID, branchNames)
	if err != nil {
		return err
	}
	restored, restoreErr := d.restoreBackup(ctx, backup, originalBranch)
	if restoreErr != nil {
		d.Log.Warn("restore incomplete: only %d/%d branches were reset", len(restored), len(branchNames))
		return restoreErr
	}
	if err := d.Store.ClearOpState(kind); err != nil {
		return err
	}
	return d.Store.DeleteBackup(backupID)
}

// UndoResult reports which branches Undo reset and to what backup.
type UndoResult struct {
	BackupID int64
	Branches []string
}

// ErrNoBackups signals there is nothing for `undo` to restore.
var ErrNoBackups = errors.New("no backups available to undo")

// Undo implements `rung undo` (spec §6): reset every branch in the most
// recent surviving backup to its recorded tip, then delete that backup so
// a second `undo` steps one backup further back rather than repeating.
// Unlike Abort, there is no in-progress operation state to clear; Undo acts
// purely on completed operations.
func (d *Deps) Undo(ctx context.Context) (*UndoResult, error) {
	ids, err := d.Store.ListBackupIDs()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoBackups
	}
	backupID := ids[len(ids)-1]

	branchNames, err := d.Store.BackupBranches(backupID)
	if err != nil {
		return nil, err
	}
	backup, err := d.Store.LoadBackup(backupID, branchNames)
	if err != nil {
		return nil, err
	}

	originalBranch, _, err := d.Repo.CurrentBranch(ctx)
	if err != nil {
		originalBranch = ""
	}
	restored, err := d.restoreBackup(ctx, backup, originalBranch)
	if err != nil {
		return &UndoResult{BackupID: backupID, Branches: restored}, err
	}
	if err := d.Store.DeleteBackup(backupID); err != nil {
		return nil, err
	}
	return &UndoResult{BackupID: backupID, Branches: restored}, nil
}

// checkoutAndRebase checks out branch and rebases it onto onto, turning a
// paused rebase into a *rerrors.Conflict rather than a generic error.
func (d *Deps) checkoutAndRebase(ctx context.Context, branch, onto string) error {
	if err := d.Repo.Checkout(ctx, branch); err != nil {
		return err
	}
	if err := d.Repo.RebaseOnto(ctx, branch, onto); err != nil {
		if c, ok := asConflict(err); ok {
			return c
		}
		return err
	}
	return nil
}

// ErrNothingToDo signals a plan with no work items (e.g. restack onto the
// current parent already at the right merge-base).
var ErrNothingToDo = errors.New("nothing to do")
