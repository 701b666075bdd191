// Package doctor audits a repository's .git/rung/ metadata against the
// invariants in spec §8 and the recovery-rule table in spec §7: manifest
// shape, operation-state consistency, and backup hygiene. It never mutates
// git refs; --fix (Options.Fix) only prunes stale on-disk bookkeeping.
package doctor

import (
	"context"
	"fmt"

	"github.com/rung-dev/rung/internal/git"
	"github.com/rung-dev/rung/internal/state"
)

// Severity classifies a Finding for CLI rendering (spec §7's red/yellow/blue
// convention).
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// Finding is one diagnostic result.
type Finding struct {
	Severity Severity
	Code     string // e.g. "I2", "I6", matching the spec §8 invariant it checks
	Message  string
	Fixed    bool
}

// Report is the aggregate result of Run.
type Report struct {
	Findings []Finding
}

// HasErrors reports whether any finding is SeverityError.
func (r Report) HasErrors() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Options configures a doctor run.
type Options struct {
	// Fix clears operation state whose stack_updated is true (deleting its
	// backup) and prunes backups no in-progress operation references; it
	// never rewrites branch refs or the manifest's topology.
	Fix bool
}

// Deps bundles doctor's read (and, with Options.Fix, light write) access.
type Deps struct {
	Repo  git.Repository
	Store *state.Store
}

// Run executes every check and returns the aggregate report. Checks run
// independently; one check's error does not block the others.
func (d *Deps) Run(ctx context.Context, opts Options) (*Report, error) {
	r := &Report{}

	m, err := d.Store.LoadManifest()
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}

	r.Findings = append(r.Findings, checkNoDuplicateNames(m)...)
	r.Findings = append(r.Findings, checkParentsExist(m)...)
	r.Findings = append(r.Findings, checkAcyclic(m)...)
	r.Findings = append(r.Findings, checkMergedNotParent(m)...)
	r.Findings = append(r.Findings, checkMergedEmptyWhenBranchesEmpty(m)...)

	existFindings, err := d.checkBranchesExist(ctx, m)
	if err != nil {
		return nil, err
	}
	r.Findings = append(r.Findings, existFindings...)

	opFindings, err := d.checkOperationState(opts)
	if err != nil {
		return nil, err
	}
	r.Findings = append(r.Findings, opFindings...)

	backupFindings, err := d.checkBackupHygiene(opts)
	if err != nil {
		return nil, err
	}
	r.Findings = append(r.Findings, backupFindings...)

	return r, nil
}

// checkNoDuplicateNames implements I1.
func checkNoDuplicateNames(m state.Manifest) []Finding {
	seen := make(map[string]bool, len(m.Branches))
	var findings []Finding
	for _, b := range m.Branches {
		key := b.Name.String()
		if seen[key] {
			findings = append(findings, Finding{
				Severity: SeverityError,
				Code:     "I1",
				Message:  fmt.Sprintf("duplicate branch name %q in the manifest", key),
			})
			continue
		}
		seen[key] = true
	}
	return findings
}

// checkParentsExist implements I2: every active branch's non-null parent
// must name another active branch.
func checkParentsExist(m state.Manifest) []Finding {
	var findings []Finding
	for _, b := range m.Branches {
		if b.Parent == nil {
			continue
		}
		if _, ok := m.Find(*b.Parent); !ok {
			findings = append(findings, Finding{
				Severity: SeverityError,
				Code:     "I2",
				Message:  fmt.Sprintf("branch %q has parent %q which is not an active branch", b.Name, b.Parent),
			})
		}
	}
	return findings
}

// checkAcyclic implements I3 via DFS over the parent relation, in the
// teacher's doctor.detectCycles style.
func checkAcyclic(m state.Manifest) []Finding {
	parent := make(map[string]string, len(m.Branches))
	for _, b := range m.Branches {
		if b.Parent != nil {
			parent[b.Name.String()] = b.Parent.String()
		}
	}

	visited := make(map[string]bool)
	var findings []Finding
	for _, b := range m.Branches {
		name := b.Name.String()
		if visited[name] {
			continue
		}
		path := []string{}
		onPath := make(map[string]bool)
		cur := name
		for {
			if onPath[cur] {
				findings = append(findings, Finding{
					Severity: SeverityError,
					Code:     "I3",
					Message:  fmt.Sprintf("cycle detected in stack graph: %s -> %s", joinArrow(path), cur),
				})
				break
			}
			if visited[cur] {
				break
			}
			visited[cur] = true
			onPath[cur] = true
			path = append(path, cur)
			next, ok := parent[cur]
			if !ok {
				break
			}
			cur = next
		}
	}
	return findings
}

func joinArrow(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += " -> "
		}
		out += p
	}
	return out
}

// checkMergedNotParent implements I4: after mark_merged(b), no active
// branch's parent should still equal b (merge/sync must have re-parented
// b's children before recording it merged).
func checkMergedNotParent(m state.Manifest) []Finding {
	mergedNames := make(map[string]bool, len(m.Merged))
	for _, mb := range m.Merged {
		mergedNames[mb.Name.String()] = true
	}
	var findings []Finding
	for _, b := range m.Branches {
		if b.Parent != nil && mergedNames[b.Parent.String()] {
			findings = append(findings, Finding{
				Severity: SeverityError,
				Code:     "I4",
				Message:  fmt.Sprintf("branch %q has parent %q which was already recorded merged", b.Name, b.Parent),
			})
		}
	}
	return findings
}

// checkMergedEmptyWhenBranchesEmpty implements I7.
func checkMergedEmptyWhenBranchesEmpty(m state.Manifest) []Finding {
	if len(m.Branches) == 0 && len(m.Merged) > 0 {
		return []Finding{{
			Severity: SeverityWarning,
			Code:     "I7",
			Message:  fmt.Sprintf("manifest has no active branches but %d merged entr(ies) remain", len(m.Merged)),
		}}
	}
	return nil
}

// checkBranchesExist flags manifest branches whose git ref has disappeared
// out of band (the condition `rung sync` repairs by dropping them), in the
// teacher's orphaned-metadata check style.
func (d *Deps) checkBranchesExist(ctx context.Context, m state.Manifest) ([]Finding, error) {
	var findings []Finding
	for _, b := range m.Branches {
		exists, err := d.Repo.BranchExists(ctx, b.Name.String())
		if err != nil {
			return nil, fmt.Errorf("check branch %s exists: %w", b.Name, err)
		}
		if !exists {
			findings = append(findings, Finding{
				Severity: SeverityWarning,
				Code:     "stale-branch",
				Message:  fmt.Sprintf("branch %q is tracked in the manifest but no longer exists; run 'rung sync' to reconcile", b.Name),
			})
		}
	}
	return findings, nil
}

// checkOperationState implements I5 and the recovery-rule table (spec §7):
// an operation state file should only exist when its kind reports
// in-progress, and StackUpdated=true with the file still present means a
// crash landed between the manifest write and the state clear, which Fix
// resolves by clearing the state (I5's "after a successful operation, the
// state file is absent" restored).
func (d *Deps) checkOperationState(opts Options) ([]Finding, error) {
	var findings []Finding
	kinds := []state.OperationKind{state.OperationSync, state.OperationRestack, state.OperationSplit, state.OperationFold}
	for _, kind := range kinds {
		inProgress, err := d.Store.IsInProgress(kind)
		if err != nil {
			return nil, fmt.Errorf("check %s in-progress: %w", kind, err)
		}
		if !inProgress {
			continue
		}
		var common state.OpCommon
		if _, err := d.Store.LoadOpState(kind, &common); err != nil {
			return nil, fmt.Errorf("load %s state: %w", kind, err)
		}
		if common.StackUpdated {
			f := Finding{
				Severity: SeverityWarning,
				Code:     "I5",
				Message:  fmt.Sprintf("%s is interrupted after its manifest write but before clearing state; safe to clear", kind),
			}
			if opts.Fix {
				if err := d.Store.ClearOpState(kind); err != nil {
					return nil, fmt.Errorf("clear %s state: %w", kind, err)
				}
				if err := d.Store.DeleteBackup(common.BackupID); err != nil {
					return nil, fmt.Errorf("delete backup %d: %w", common.BackupID, err)
				}
				f.Fixed = true
				f.Message += " (fixed)"
			} else {
				f.Message += fmt.Sprintf("; run 'rung %s --continue' or 'rung doctor --fix'", kind)
			}
			findings = append(findings, f)
		} else {
			findings = append(findings, Finding{
				Severity: SeverityInfo,
				Code:     "recovery-table",
				Message:  fmt.Sprintf("%s is interrupted before its commit phase; resume with 'rung %s --continue'", kind, kind),
			})
		}
	}
	return findings, nil
}

// checkBackupHygiene implements I6: no operation-state file may reference
// a backup that has been deleted, and (informationally) flags backups that
// no operation state references, which PruneBackups would eventually
// collect on its own retention schedule.
func (d *Deps) checkBackupHygiene(opts Options) ([]Finding, error) {
	referenced := map[int64]bool{}
	kinds := []state.OperationKind{state.OperationSync, state.OperationRestack, state.OperationSplit, state.OperationFold}
	for _, kind := range kinds {
		inProgress, err := d.Store.IsInProgress(kind)
		if err != nil {
			return nil, fmt.Errorf("check %s in-progress: %w", kind, err)
		}
		if !inProgress {
			continue
		}
		var common state.OpCommon
		if _, err := d.Store.LoadOpState(kind, &common); err != nil {
			return nil, fmt.Errorf("load %s state: %w", kind, err)
		}
		referenced[common.BackupID] = true
	}

	ids, err := d.Store.ListBackupIDs()
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	present := make(map[int64]bool, len(ids))
	for _, id := range ids {
		present[id] = true
	}

	var findings []Finding
	for id := range referenced {
		if !present[id] {
			findings = append(findings, Finding{
				Severity: SeverityError,
				Code:     "I6",
				Message:  fmt.Sprintf("an in-progress operation references backup %d, which no longer exists", id),
			})
		}
	}
	for _, id := range ids {
		if referenced[id] {
			continue
		}
		f := Finding{
			Severity: SeverityInfo,
			Code:     "I6",
			Message:  fmt.Sprintf("backup %d is not referenced by any in-progress operation", id),
		}
		if opts.Fix {
			if err := d.Store.DeleteBackup(id); err != nil {
				return nil, fmt.Errorf("delete backup %d: %w", id, err)
			}
			f.Fixed = true
			f.Message += " (pruned)"
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// BranchTipsMatchBackup implements I9: after an abort, every branch named
// in the backup must have its tip at the backed-up commit id. Callers
// invoke this right after an --abort rather than as part of the general
// Run sweep, since it needs the specific backup id the abort restored from.
func (d *Deps) BranchTipsMatchBackup(ctx context.Context, backup state.Backup) ([]Finding, error) {
	var findings []Finding
	for name, wantTip := range backup.Refs {
		gotTip, err := d.Repo.TipCommit(ctx, name)
		if err != nil {
			findings = append(findings, Finding{
				Severity: SeverityError,
				Code:     "I9",
				Message:  fmt.Sprintf("branch %q from backup %d no longer exists: %v", name, backup.BackupID, err),
			})
			continue
		}
		if gotTip != wantTip {
			findings = append(findings, Finding{
				Severity: SeverityError,
				Code:     "I9",
				Message:  fmt.Sprintf("branch %q is at %s, expected backed-up tip %s", name, gotTip, wantTip),
			})
		}
	}
	return findings, nil
}
