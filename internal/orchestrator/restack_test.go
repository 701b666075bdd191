package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/git/gittest"
	"github.com/rung-dev/rung/internal/rlog"
	"github.com/rung-dev/rung/internal/state"
)

func newTestDeps(t *testing.T, repo *gittest.Fake) (*Deps, *state.Store) {
	t.Helper()
	store := state.NewStore(t.TempDir())
	require.NoError(t, store.EnsureDirs())
	return &Deps{Repo: repo, Store: store, Log: rlog.New(rlog.Options{Quiet: true})}, store
}

func seedStack(t *testing.T, store *state.Store, branches ...state.StackBranch) {
	t.Helper()
	require.NoError(t, store.SaveManifest(state.Manifest{Branches: branches}))
}

func sb(name string, parent string) state.StackBranch {
	n := branchname.MustParse(name)
	b := state.StackBranch{Name: n, Created: time.Now().UTC()}
	if parent != "" {
		p := branchname.MustParse(parent)
		b.Parent = &p
	}
	return b
}

func TestPlanRestackAlreadyBased(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	repo.Commit("main", "base")
	// branch "feature" created at main's current tip: already based.
	require.NoError(t, repo.CreateBranchAt(ctx, "feature", repo.Tip("main")))

	d, store := newTestDeps(t, repo)
	seedStack(t, store, sb("feature", ""))

	plan, err := d.PlanRestack(ctx, branchname.MustParse("feature"), branchname.MustParse("main"), false)
	require.NoError(t, err)
	require.Equal(t, RestackAlreadyBased, plan.Result)
}

func TestPlanRestackNeedsRebase(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	require.NoError(t, repo.CreateBranchAt(ctx, "feature", repo.Tip("main")))
	repo.Commit("feature", "feature work")
	repo.Commit("main", "trunk moved on")

	d, store := newTestDeps(t, repo)
	seedStack(t, store, sb("feature", ""))

	plan, err := d.PlanRestack(ctx, branchname.MustParse("feature"), branchname.MustParse("main"), false)
	require.NoError(t, err)
	require.Equal(t, RestackDone, plan.Result)
	require.True(t, plan.NeedsRebase)
	require.Equal(t, []branchname.Name{branchname.MustParse("feature")}, plan.WorkQueue)
}

func TestPlanRestackIncludesDescendants(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	require.NoError(t, repo.CreateBranchAt(ctx, "a", repo.Tip("main")))
	repo.Commit("a", "a work")
	require.NoError(t, repo.CreateBranchAt(ctx, "b", repo.Tip("a")))
	repo.Commit("b", "b work")
	repo.Commit("main", "trunk moved on")

	d, store := newTestDeps(t, repo)
	seedStack(t, store, sb("a", ""), sb("b", "a"))

	plan, err := d.PlanRestack(ctx, branchname.MustParse("a"), branchname.MustParse("main"), true)
	require.NoError(t, err)
	require.Len(t, plan.WorkQueue, 2)
	require.Equal(t, branchname.MustParse("a"), plan.WorkQueue[0])
	require.Equal(t, branchname.MustParse("b"), plan.WorkQueue[1])
}

func TestPlanRestackDetectsCycle(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	require.NoError(t, repo.CreateBranchAt(ctx, "a", repo.Tip("main")))
	require.NoError(t, repo.CreateBranchAt(ctx, "b", repo.Tip("main")))

	d, store := newTestDeps(t, repo)
	seedStack(t, store, sb("a", ""), sb("b", "a"))

	_, err := d.PlanRestack(ctx, branchname.MustParse("a"), branchname.MustParse("b"), false)
	require.Error(t, err)
}

func TestRunRestackManifestOnlyWhenAlreadyBased(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	repo.Commit("main", "base")
	require.NoError(t, repo.CreateBranchAt(ctx, "feature", repo.Tip("main")))

	d, store := newTestDeps(t, repo)
	seedStack(t, store, sb("feature", ""))

	plan, err := d.PlanRestack(ctx, branchname.MustParse("feature"), branchname.MustParse("main"), false)
	require.NoError(t, err)
	require.Equal(t, RestackAlreadyBased, plan.Result)

	result, err := d.RunRestack(ctx, plan)
	require.NoError(t, err)
	require.Equal(t, RestackAlreadyBased, result)
}

func TestRunRestackRebasesAndUpdatesManifest(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	require.NoError(t, repo.CreateBranchAt(ctx, "feature", repo.Tip("main")))
	repo.Commit("feature", "feature work")
	repo.Commit("main", "trunk moved on")
	require.NoError(t, repo.Checkout(ctx, "feature"))

	d, store := newTestDeps(t, repo)
	seedStack(t, store, sb("feature", ""))

	plan, err := d.PlanRestack(ctx, branchname.MustParse("feature"), branchname.MustParse("main"), false)
	require.NoError(t, err)
	require.True(t, plan.NeedsRebase)

	result, err := d.RunRestack(ctx, plan)
	require.NoError(t, err)
	require.Equal(t, RestackDone, result)

	m, err := store.LoadManifest()
	require.NoError(t, err)
	b, ok := m.Find(branchname.MustParse("feature"))
	require.True(t, ok)
	require.Nil(t, b.Parent, "a branch restacked onto the default branch is stored as a root")

	inProgress, err := store.IsInProgress(state.OperationRestack)
	require.NoError(t, err)
	require.False(t, inProgress)

	require.Equal(t, repo.Tip("main"), repo.Tip("feature"))
}

func TestRunRestackPersistsStateOnConflict(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	require.NoError(t, repo.CreateBranchAt(ctx, "feature", repo.Tip("main")))
	repo.Commit("feature", "feature work")
	repo.Commit("main", "trunk moved on")
	require.NoError(t, repo.Checkout(ctx, "feature"))
	repo.QueueConflict("feature", []string{"a.go"})

	d, store := newTestDeps(t, repo)
	seedStack(t, store, sb("feature", ""))

	plan, err := d.PlanRestack(ctx, branchname.MustParse("feature"), branchname.MustParse("main"), false)
	require.NoError(t, err)

	result, err := d.RunRestack(ctx, plan)
	require.Equal(t, RestackConflict, result)
	require.Error(t, err)

	inProgress, err := store.IsInProgress(state.OperationRestack)
	require.NoError(t, err)
	require.True(t, inProgress)
}

func TestContinueRestackResumesAfterConflict(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	require.NoError(t, repo.CreateBranchAt(ctx, "feature", repo.Tip("main")))
	repo.Commit("feature", "feature work")
	repo.Commit("main", "trunk moved on")
	require.NoError(t, repo.Checkout(ctx, "feature"))
	repo.QueueConflict("feature", []string{"a.go"})

	d, store := newTestDeps(t, repo)
	seedStack(t, store, sb("feature", ""))

	plan, err := d.PlanRestack(ctx, branchname.MustParse("feature"), branchname.MustParse("main"), false)
	require.NoError(t, err)
	result, err := d.RunRestack(ctx, plan)
	require.Equal(t, RestackConflict, result)
	require.Error(t, err)

	result, err = d.ContinueRestack(ctx)
	require.NoError(t, err)
	require.Equal(t, RestackDone, result)

	inProgress, err := store.IsInProgress(state.OperationRestack)
	require.NoError(t, err)
	require.False(t, inProgress)
}
