package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/forge/github"
	"github.com/rung-dev/rung/internal/forge/github/githubtest"
	"github.com/rung-dev/rung/internal/git/gittest"
	"github.com/rung-dev/rung/internal/rlog"
	"github.com/rung-dev/rung/internal/state"
)

func newMergeDeps(t *testing.T, repo *gittest.Fake, forge *githubtest.Fake) (*Deps, *state.Store) {
	t.Helper()
	store := state.NewStore(t.TempDir())
	require.NoError(t, store.EnsureDirs())
	return &Deps{Repo: repo, Forge: forge, Store: store, Log: rlog.New(rlog.Options{Quiet: true})}, store
}

func pr(number int, head, base string) github.PullRequest {
	return github.PullRequest{Number: number, Head: head, Base: base, State: github.Open, Mergeable: github.MergeableYes}
}

func TestRunMergeRootBranchRetargetsChildAndCascades(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	require.NoError(t, repo.CreateBranchAt(ctx, "a", repo.Tip("main")))
	repo.Commit("a", "a work")
	require.NoError(t, repo.CreateBranchAt(ctx, "b", repo.Tip("a")))
	repo.Commit("b", "b work")

	forge := githubtest.New("main")
	forge.AddPR(pr(1, "a", "main"))
	forge.AddPR(pr(2, "b", "a"))

	d, store := newMergeDeps(t, repo, forge)
	n1, n2 := uint64(1), uint64(2)
	require.NoError(t, store.SaveManifest(state.Manifest{Branches: []state.StackBranch{
		{Name: branchname.MustParse("a"), PR: &n1},
		{Name: branchname.MustParse("b"), Parent: ptrName("a"), PR: &n2},
	}}))

	result, err := d.RunMerge(ctx, branchname.MustParse("a"), github.MergeMethodSquash)
	require.NoError(t, err)
	require.Equal(t, branchname.MustParse("a"), result.MergedBranch)
	require.Equal(t, branchname.MustParse("main"), result.Destination)

	// b's PR base should now point at main, having been retargeted before
	// the merge and rebased onto main's tip afterward.
	updatedPR, err := forge.GetPR(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "main", updatedPR.Base)

	m, err := store.LoadManifest()
	require.NoError(t, err)
	_, stillActive := m.Find(branchname.MustParse("a"))
	require.False(t, stillActive)
	b, ok := m.Find(branchname.MustParse("b"))
	require.True(t, ok)
	require.Nil(t, b.Parent, "b now sits directly on the default branch")
	require.Len(t, m.Merged, 1)
	require.Equal(t, branchname.MustParse("a"), m.Merged[0].Name)

	mergedPR, err := forge.GetPR(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, github.Merged, mergedPR.State)

	require.Contains(t, result.RebasedDescendants, branchname.MustParse("b"))
}

func TestRunMergeCascadeConflictSurfacesDistinctlyFromSkip(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	require.NoError(t, repo.CreateBranchAt(ctx, "a", repo.Tip("main")))
	repo.Commit("a", "a work")
	require.NoError(t, repo.CreateBranchAt(ctx, "b", repo.Tip("a")))
	repo.Commit("b", "b work")
	require.NoError(t, repo.CreateBranchAt(ctx, "c", repo.Tip("b")))
	repo.Commit("c", "c work")
	require.NoError(t, repo.Checkout(ctx, "c"))
	repo.QueueConflict("c", []string{"x.go"})

	forge := githubtest.New("main")
	forge.AddPR(pr(1, "a", "main"))
	forge.AddPR(pr(2, "b", "a"))
	forge.AddPR(pr(3, "c", "b"))

	d, store := newMergeDeps(t, repo, forge)
	n1, n2, n3 := uint64(1), uint64(2), uint64(3)
	require.NoError(t, store.SaveManifest(state.Manifest{Branches: []state.StackBranch{
		{Name: branchname.MustParse("a"), PR: &n1},
		{Name: branchname.MustParse("b"), Parent: ptrName("a"), PR: &n2},
		{Name: branchname.MustParse("c"), Parent: ptrName("b"), PR: &n3},
	}}))

	result, err := d.RunMerge(ctx, branchname.MustParse("a"), github.MergeMethodSquash)
	require.Error(t, err, "b's rebase succeeding then c's conflicting must surface as an error (spec S6)")
	require.Contains(t, err.Error(), "rung sync")

	require.Contains(t, result.RebasedDescendants, branchname.MustParse("b"))
	require.Empty(t, result.SkippedDescendants, "c conflicted, it was not skipped because an ancestor failed")

	mergedPR, mErr := forge.GetPR(ctx, 1)
	require.NoError(t, mErr)
	require.Equal(t, github.Merged, mergedPR.State, "the merge of a itself must still have gone through")

	m, err := store.LoadManifest()
	require.NoError(t, err)
	b, ok := m.Find(branchname.MustParse("b"))
	require.True(t, ok)
	require.Nil(t, b.Parent, "b now sits directly on the default branch")
}

func TestRunMergeRefusesWhenNotMergeable(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	require.NoError(t, repo.CreateBranchAt(ctx, "a", repo.Tip("main")))

	forge := githubtest.New("main")
	badPR := pr(1, "a", "main")
	badPR.Mergeable = github.MergeableNo
	badPR.MergeableState = "dirty"
	forge.AddPR(badPR)

	d, store := newMergeDeps(t, repo, forge)
	n1 := uint64(1)
	require.NoError(t, store.SaveManifest(state.Manifest{Branches: []state.StackBranch{
		{Name: branchname.MustParse("a"), PR: &n1},
	}}))

	_, err := d.RunMerge(ctx, branchname.MustParse("a"), github.MergeMethodMerge)
	require.Error(t, err)

	m, err := store.LoadManifest()
	require.NoError(t, err)
	_, ok := m.Find(branchname.MustParse("a"))
	require.True(t, ok, "branch must remain active when merge is refused")
}

func TestRunMergeRollsBackBaseUpdatesWhenMergeFails(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	require.NoError(t, repo.CreateBranchAt(ctx, "a", repo.Tip("main")))
	require.NoError(t, repo.CreateBranchAt(ctx, "b", repo.Tip("a")))

	forge := githubtest.New("main")
	forge.AddPR(pr(1, "a", "main"))
	forge.AddPR(pr(2, "b", "a"))
	forge.FailMerge = assertErr{}

	d, store := newMergeDeps(t, repo, forge)
	n1, n2 := uint64(1), uint64(2)
	require.NoError(t, store.SaveManifest(state.Manifest{Branches: []state.StackBranch{
		{Name: branchname.MustParse("a"), PR: &n1},
		{Name: branchname.MustParse("b"), Parent: ptrName("a"), PR: &n2},
	}}))

	_, err := d.RunMerge(ctx, branchname.MustParse("a"), github.MergeMethodMerge)
	require.Error(t, err)

	bPR, err := forge.GetPR(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "a", bPR.Base, "base update must be rolled back when the merge itself fails")
}

type assertErr struct{}

func (assertErr) Error() string { return "merge rejected by forge" }

func ptrName(s string) *branchname.Name {
	n := branchname.MustParse(s)
	return &n
}
