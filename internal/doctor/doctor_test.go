package doctor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/git/gittest"
	"github.com/rung-dev/rung/internal/state"
)

func newTestDeps(t *testing.T) (*Deps, *gittest.Fake, *state.Store) {
	t.Helper()
	repo := gittest.New("main")
	store := state.NewStore(t.TempDir())
	require.NoError(t, store.EnsureDirs())
	return &Deps{Repo: repo, Store: store}, repo, store
}

func ptrName(s string) *branchname.Name {
	n := branchname.MustParse(s)
	return &n
}

// writeManifestUnchecked writes m straight to stack.json, bypassing
// SaveManifest's validation, to seed the corrupted manifests doctor audits.
func writeManifestUnchecked(store *state.Store, m state.Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(store.Root(), "stack.json"), data, 0o644)
}

func TestRunCleanManifestHasNoFindings(t *testing.T) {
	ctx := context.Background()
	d, repo, store := newTestDeps(t)
	require.NoError(t, repo.CreateBranchAt(ctx, "a", repo.Tip("main")))
	require.NoError(t, store.SaveManifest(state.Manifest{Branches: []state.StackBranch{
		{Name: branchname.MustParse("a")},
	}}))

	report, err := d.Run(ctx, Options{})
	require.NoError(t, err)
	require.False(t, report.HasErrors())
	require.Empty(t, report.Findings)
}

func TestRunDetectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	d, _, store := newTestDeps(t)
	require.NoError(t, writeManifestUnchecked(store, state.Manifest{Branches: []state.StackBranch{
		{Name: branchname.MustParse("a")},
		{Name: branchname.MustParse("a")},
	}}))

	report, err := d.Run(ctx, Options{})
	require.NoError(t, err)
	require.True(t, report.HasErrors())
	require.Contains(t, codes(report), "I1")
}

func TestRunDetectsMissingParent(t *testing.T) {
	ctx := context.Background()
	d, _, store := newTestDeps(t)
	require.NoError(t, writeManifestUnchecked(store, state.Manifest{Branches: []state.StackBranch{
		{Name: branchname.MustParse("b"), Parent: ptrName("ghost")},
	}}))

	report, err := d.Run(ctx, Options{})
	require.NoError(t, err)
	require.True(t, report.HasErrors())
	require.Contains(t, codes(report), "I2")
}

func TestRunDetectsCycle(t *testing.T) {
	ctx := context.Background()
	d, _, store := newTestDeps(t)
	require.NoError(t, writeManifestUnchecked(store, state.Manifest{Branches: []state.StackBranch{
		{Name: branchname.MustParse("a"), Parent: ptrName("b")},
		{Name: branchname.MustParse("b"), Parent: ptrName("a")},
	}}))

	report, err := d.Run(ctx, Options{})
	require.NoError(t, err)
	require.True(t, report.HasErrors())
	require.Contains(t, codes(report), "I3")
}

func TestRunDetectsStaleBranch(t *testing.T) {
	ctx := context.Background()
	d, _, store := newTestDeps(t)
	require.NoError(t, store.SaveManifest(state.Manifest{Branches: []state.StackBranch{
		{Name: branchname.MustParse("ghost")},
	}}))

	report, err := d.Run(ctx, Options{})
	require.NoError(t, err)
	require.False(t, report.HasErrors(), "a stale branch is a warning, not an error")
	require.Contains(t, codes(report), "stale-branch")
}

func TestRunFixClearsInterruptedStateAfterStackUpdated(t *testing.T) {
	ctx := context.Background()
	d, repo, store := newTestDeps(t)
	require.NoError(t, repo.CreateBranchAt(ctx, "a", repo.Tip("main")))
	require.NoError(t, store.SaveManifest(state.Manifest{Branches: []state.StackBranch{
		{Name: branchname.MustParse("a")},
	}}))

	require.NoError(t, store.CreateBackup(state.NewBackup(1, map[branchname.Name]string{
		branchname.MustParse("a"): repo.Tip("a"),
	})))
	require.NoError(t, store.SaveOpState(state.OperationRestack, &state.RestackState{
		OpCommon:     state.OpCommon{BackupID: 1, StackUpdated: true, OriginalBranch: branchname.MustParse("a")},
		TargetBranch: branchname.MustParse("a"),
		NewParent:    branchname.MustParse("main"),
	}))

	report, err := d.Run(ctx, Options{Fix: false})
	require.NoError(t, err)
	require.Contains(t, codes(report), "I5")

	report, err = d.Run(ctx, Options{Fix: true})
	require.NoError(t, err)
	var fixed bool
	for _, f := range report.Findings {
		if f.Code == "I5" && f.Fixed {
			fixed = true
		}
	}
	require.True(t, fixed)

	inProgress, err := store.IsInProgress(state.OperationRestack)
	require.NoError(t, err)
	require.False(t, inProgress)
}

func codes(r *Report) []string {
	out := make([]string, len(r.Findings))
	for i, f := range r.Findings {
		out[i] = f.Code
	}
	return out
}
