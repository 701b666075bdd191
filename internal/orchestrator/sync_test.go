package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/forge/github"
	"github.com/rung-dev/rung/internal/forge/github/githubtest"
	"github.com/rung-dev/rung/internal/git/gittest"
	"github.com/rung-dev/rung/internal/state"
)

func seedConfig(t *testing.T, store *state.Store, defaultBranch string) {
	t.Helper()
	require.NoError(t, store.SaveConfig(state.DefaultConfig(defaultBranch)))
}

func TestRunSyncReconcilesMergedBranch(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	require.NoError(t, repo.CreateBranchAt(ctx, "a", repo.Tip("main")))
	require.NoError(t, repo.CreateBranchAt(ctx, "b", repo.Tip("a")))

	forge := githubtest.New("main")
	forge.AddPR(pr(1, "a", "main"))
	p1 := forge.PRs[1]
	p1.State = github.Merged
	forge.AddPR(pr(2, "b", "a"))

	d, store := newMergeDeps(t, repo, forge)
	seedConfig(t, store, "main")
	n1, n2 := uint64(1), uint64(2)
	require.NoError(t, store.SaveManifest(state.Manifest{Branches: []state.StackBranch{
		{Name: branchname.MustParse("a"), PR: &n1},
		{Name: branchname.MustParse("b"), Parent: ptrName("a"), PR: &n2},
	}}))

	outcome, result, err := d.RunSync(ctx, false)
	require.NoError(t, err)
	require.Equal(t, SyncDone, outcome)
	require.Len(t, result.Reconcile.Merged, 1)
	require.Equal(t, branchname.MustParse("a"), result.Reconcile.Merged[0].Branch)
	require.Len(t, result.Reconcile.Reparented, 1)
	require.Equal(t, branchname.MustParse("b"), result.Reconcile.Reparented[0].Branch)

	m, err := store.LoadManifest()
	require.NoError(t, err)
	_, stillActive := m.Find(branchname.MustParse("a"))
	require.False(t, stillActive)
	b, ok := m.Find(branchname.MustParse("b"))
	require.True(t, ok)
	require.Nil(t, b.Parent, "b now sits directly on the default branch")

	bPR, err := forge.GetPR(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "main", bPR.Base)
}

func TestRunSyncRepairsGhostParent(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	require.NoError(t, repo.CreateBranchAt(ctx, "a", repo.Tip("main")))
	require.NoError(t, repo.CreateBranchAt(ctx, "b", repo.Tip("a")))

	forge := githubtest.New("main")
	forge.AddPR(pr(1, "a", "main"))
	// b's PR base drifted to main instead of a: a ghost parent.
	forge.AddPR(pr(2, "b", "main"))

	d, store := newMergeDeps(t, repo, forge)
	seedConfig(t, store, "main")
	n1, n2 := uint64(1), uint64(2)
	require.NoError(t, store.SaveManifest(state.Manifest{Branches: []state.StackBranch{
		{Name: branchname.MustParse("a"), PR: &n1},
		{Name: branchname.MustParse("b"), Parent: ptrName("a"), PR: &n2},
	}}))

	outcome, result, err := d.RunSync(ctx, false)
	require.NoError(t, err)
	require.Equal(t, SyncDone, outcome)
	require.Len(t, result.Reconcile.Repaired, 1)
	require.Equal(t, uint64(2), result.Reconcile.Repaired[0].PR)
	require.Equal(t, "a", result.Reconcile.Repaired[0].NewBase)

	bPR, err := forge.GetPR(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "a", bPR.Base, "repair must submit the expected base to the forge")
}

func TestRunSyncRemovesStaleBranch(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	require.NoError(t, repo.CreateBranchAt(ctx, "a", repo.Tip("main")))
	// "b" is tracked in the manifest but was deleted from git out of band;
	// "c" (b's child) still exists and must survive, re-parented onto a.
	require.NoError(t, repo.CreateBranchAt(ctx, "c", repo.Tip("a")))

	forge := githubtest.New("main")
	d, store := newMergeDeps(t, repo, forge)
	seedConfig(t, store, "main")
	require.NoError(t, store.SaveManifest(state.Manifest{Branches: []state.StackBranch{
		{Name: branchname.MustParse("a")},
		{Name: branchname.MustParse("b"), Parent: ptrName("a")},
		{Name: branchname.MustParse("c"), Parent: ptrName("b")},
	}}))

	outcome, result, err := d.RunSync(ctx, false)
	require.NoError(t, err)
	require.Equal(t, SyncDone, outcome)
	require.Contains(t, result.Removed, branchname.MustParse("b"))

	m, err := store.LoadManifest()
	require.NoError(t, err)
	_, bStillActive := m.Find(branchname.MustParse("b"))
	require.False(t, bStillActive)
	c, ok := m.Find(branchname.MustParse("c"))
	require.True(t, ok)
	require.Equal(t, "a", c.Parent.String(), "c must be reparented onto b's former parent")
}

func TestContinueSyncSubmitsPendingBaseUpdates(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	require.NoError(t, repo.CreateBranchAt(ctx, "a", repo.Tip("main")))
	repo.Commit("a", "a work")
	require.NoError(t, repo.CreateBranchAt(ctx, "b", repo.Tip("a")))
	repo.Commit("b", "b work")
	require.NoError(t, repo.CreateBranchAt(ctx, "c", repo.Tip("b")))
	repo.Commit("c", "c work")
	repo.Commit("main", "trunk moved on")
	require.NoError(t, repo.Checkout(ctx, "c"))
	repo.QueueConflict("c", []string{"x.go"})

	forge := githubtest.New("main")
	forge.AddPR(pr(1, "a", "main"))
	forge.PRs[1].State = github.Merged
	forge.AddPR(pr(2, "b", "a"))
	forge.AddPR(pr(3, "c", "b"))

	d, store := newMergeDeps(t, repo, forge)
	seedConfig(t, store, "main")
	n1, n2, n3 := uint64(1), uint64(2), uint64(3)
	require.NoError(t, store.SaveManifest(state.Manifest{Branches: []state.StackBranch{
		{Name: branchname.MustParse("a"), PR: &n1},
		{Name: branchname.MustParse("b"), Parent: ptrName("a"), PR: &n2},
		{Name: branchname.MustParse("c"), Parent: ptrName("b"), PR: &n3},
	}}))

	outcome, result, err := d.RunSync(ctx, false)
	require.Equal(t, SyncConflict, outcome)
	require.Error(t, err)
	require.Len(t, result.Reconcile.Reparented, 1, "b must be reparented onto main before the rebase even starts")

	// Reconcile's base correction for b is still pending; it must not have
	// been submitted while the cascade is paused on c's conflict.
	bPR, err := forge.GetPR(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "a", bPR.Base, "b's base update must wait for the conflict to resolve")

	outcome, result, err = d.ContinueSync(ctx, false)
	require.NoError(t, err)
	require.Equal(t, SyncDone, outcome)
	require.Contains(t, result.Rebased, branchname.MustParse("c"))

	bPR, err = forge.GetPR(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "main", bPR.Base, "ContinueSync must still perform step 6 after the resumed rebase finishes")

	inProgress, err := store.IsInProgress(state.OperationSync)
	require.NoError(t, err)
	require.False(t, inProgress)
}

func TestRunSyncRebasesBehindBranch(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	require.NoError(t, repo.CreateBranchAt(ctx, "a", repo.Tip("main")))
	repo.Commit("a", "a work")
	repo.Commit("main", "trunk moved on")

	forge := githubtest.New("main")
	d, store := newMergeDeps(t, repo, forge)
	seedConfig(t, store, "main")
	require.NoError(t, store.SaveManifest(state.Manifest{Branches: []state.StackBranch{
		{Name: branchname.MustParse("a")},
	}}))

	outcome, result, err := d.RunSync(ctx, false)
	require.NoError(t, err)
	require.Equal(t, SyncDone, outcome)
	require.Contains(t, result.Rebased, branchname.MustParse("a"))
	require.Equal(t, repo.Tip("main"), repo.Tip("a"))

	inProgress, err := store.IsInProgress(state.OperationSync)
	require.NoError(t, err)
	require.False(t, inProgress)
}
