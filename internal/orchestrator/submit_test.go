package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/forge/github/githubtest"
	"github.com/rung-dev/rung/internal/git/gittest"
	"github.com/rung-dev/rung/internal/state"
	"github.com/rung-dev/rung/internal/view"
)

func TestPlanSubmitClassifiesCreateAndUpdate(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	require.NoError(t, repo.CreateBranchAt(ctx, "a", repo.Tip("main")))
	require.NoError(t, repo.CreateBranchAt(ctx, "b", repo.Tip("a")))

	forge := githubtest.New("main")
	forge.AddPR(pr(1, "a", "main"))

	d, store := newMergeDeps(t, repo, forge)
	seedConfig(t, store, "main")
	n1 := uint64(1)
	require.NoError(t, store.SaveManifest(state.Manifest{Branches: []state.StackBranch{
		{Name: branchname.MustParse("a"), PR: &n1},
		{Name: branchname.MustParse("b"), Parent: ptrName("a")},
	}}))

	plan, err := d.PlanSubmit(ctx, nil)
	require.NoError(t, err)
	require.Len(t, plan.Items, 2)

	byName := map[string]SubmitItem{}
	for _, it := range plan.Items {
		byName[it.Branch.String()] = it
	}
	require.Equal(t, SubmitUpdate, byName["a"].Action)
	require.Equal(t, SubmitCreate, byName["b"].Action)
	require.Equal(t, "a", byName["b"].BaseBranch)
}

func TestRunSubmitCreatesPRAndComment(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	require.NoError(t, repo.CreateBranchAt(ctx, "a", repo.Tip("main")))

	forge := githubtest.New("main")
	d, store := newMergeDeps(t, repo, forge)
	seedConfig(t, store, "main")
	require.NoError(t, store.SaveManifest(state.Manifest{Branches: []state.StackBranch{
		{Name: branchname.MustParse("a")},
	}}))

	plan, err := d.PlanSubmit(ctx, nil)
	require.NoError(t, err)
	require.Len(t, plan.Items, 1)
	require.Equal(t, SubmitCreate, plan.Items[0].Action)

	result, err := d.RunSubmit(ctx, plan, false)
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 1)
	require.Empty(t, result.Outcomes[0].Warning)
	require.Equal(t, SubmitCreate, result.Outcomes[0].Action)
	require.NotZero(t, result.Outcomes[0].PR)

	m, err := store.LoadManifest()
	require.NoError(t, err)
	require.Len(t, m.Branches, 1, "recordPR must update the existing entry in place, not append a duplicate")
	b, ok := m.Find(branchname.MustParse("a"))
	require.True(t, ok)
	require.NotNil(t, b.PR)

	comments, err := forge.ListComments(ctx, int(*b.PR))
	require.NoError(t, err)
	require.Len(t, comments, 1)
	require.Contains(t, comments[0].Body, view.StackCommentMarker)
}

func TestRunSubmitReupdatesExistingCommentInPlace(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	require.NoError(t, repo.CreateBranchAt(ctx, "a", repo.Tip("main")))

	forge := githubtest.New("main")
	forge.AddPR(pr(1, "a", "main"))
	_, err := forge.CreateComment(ctx, 1, view.StackCommentMarker+"\nstale content\n")
	require.NoError(t, err)

	d, store := newMergeDeps(t, repo, forge)
	seedConfig(t, store, "main")
	n1 := uint64(1)
	require.NoError(t, store.SaveManifest(state.Manifest{Branches: []state.StackBranch{
		{Name: branchname.MustParse("a"), PR: &n1},
	}}))

	plan, err := d.PlanSubmit(ctx, nil)
	require.NoError(t, err)
	_, err = d.RunSubmit(ctx, plan, false)
	require.NoError(t, err)

	comments, err := forge.ListComments(ctx, 1)
	require.NoError(t, err)
	require.Len(t, comments, 1, "existing stack comment must be updated in place, not duplicated")
	require.NotContains(t, comments[0].Body, "stale content")
}

func TestRunSubmitContinuesPastOnePerBranchFailure(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	require.NoError(t, repo.CreateBranchAt(ctx, "a", repo.Tip("main")))
	require.NoError(t, repo.CreateBranchAt(ctx, "b", repo.Tip("a")))

	forge := githubtest.New("main")
	forge.FailCreateFor = map[string]error{"b": assertErr{}}
	d, store := newMergeDeps(t, repo, forge)
	seedConfig(t, store, "main")
	require.NoError(t, store.SaveManifest(state.Manifest{Branches: []state.StackBranch{
		{Name: branchname.MustParse("a")},
		{Name: branchname.MustParse("b"), Parent: ptrName("a")},
	}}))

	plan, err := d.PlanSubmit(ctx, nil)
	require.NoError(t, err)

	result, err := d.RunSubmit(ctx, plan, false)
	require.NoError(t, err, "a per-branch push/create failure must not abort the whole submit")
	require.Len(t, result.Outcomes, 2)

	byName := map[string]SubmitOutcome{}
	for _, o := range result.Outcomes {
		byName[o.Branch.String()] = o
	}
	require.Empty(t, byName["a"].Warning)
	require.NotEmpty(t, byName["b"].Warning, "b's create failure must surface as a warning, not abort a")
	require.NotZero(t, byName["a"].PR, "a must still succeed despite b's failure")
}
