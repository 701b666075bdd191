package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/rung-dev/rung/internal/git/gittest"
	"github.com/rung-dev/rung/internal/state"
)

func TestPlanFoldCollapsesLinearChain(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	require.NoError(t, repo.CreateBranchAt(ctx, "a", repo.Tip("main")))
	repo.Commit("a", "a work")
	require.NoError(t, repo.CreateBranchAt(ctx, "b", repo.Tip("a")))
	repo.Commit("b", "b work")
	require.NoError(t, repo.CreateBranchAt(ctx, "c", repo.Tip("b")))
	repo.Commit("c", "c work")

	d, store := newTestDeps(t, repo)
	n1, n2 := uint64(1), uint64(2)
	seedStack(t, store,
		state.StackBranch{Name: branchname.MustParse("a"), PR: &n1},
		state.StackBranch{Name: branchname.MustParse("b"), Parent: ptrName("a"), PR: &n2},
		state.StackBranch{Name: branchname.MustParse("c"), Parent: ptrName("b")},
	)

	plan, err := d.PlanFold(ctx, branchname.MustParse("a"), branchname.MustParse("c"))
	require.NoError(t, err)
	require.Equal(t, []branchname.Name{
		branchname.MustParse("a"), branchname.MustParse("b"), branchname.MustParse("c"),
	}, plan.Chain)
	require.ElementsMatch(t, []uint64{1, 2}, plan.PRsToClose)
}

func TestPlanFoldRejectsBranchPoint(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	require.NoError(t, repo.CreateBranchAt(ctx, "a", repo.Tip("main")))
	require.NoError(t, repo.CreateBranchAt(ctx, "b", repo.Tip("a")))
	require.NoError(t, repo.CreateBranchAt(ctx, "c", repo.Tip("a")))

	d, store := newTestDeps(t, repo)
	seedStack(t, store,
		sb("a", ""),
		sb("b", "a"),
		sb("c", "a"),
	)

	_, err := d.PlanFold(ctx, branchname.MustParse("a"), branchname.MustParse("b"))
	require.Error(t, err)
}

func TestRunFoldResetsTargetAndReparentsSurvivingChildren(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	require.NoError(t, repo.CreateBranchAt(ctx, "a", repo.Tip("main")))
	repo.Commit("a", "a work")
	require.NoError(t, repo.CreateBranchAt(ctx, "b", repo.Tip("a")))
	repo.Commit("b", "b work")
	require.NoError(t, repo.CreateBranchAt(ctx, "c", repo.Tip("b")))
	repo.Commit("c", "c work")
	require.NoError(t, repo.CreateBranchAt(ctx, "d", repo.Tip("b")))
	repo.Commit("d", "d work")

	d, store := newTestDeps(t, repo)
	n1, n2 := uint64(1), uint64(2)
	seedStack(t, store,
		state.StackBranch{Name: branchname.MustParse("a"), PR: &n1},
		state.StackBranch{Name: branchname.MustParse("b"), Parent: ptrName("a"), PR: &n2},
		state.StackBranch{Name: branchname.MustParse("c"), Parent: ptrName("b")},
		state.StackBranch{Name: branchname.MustParse("d"), Parent: ptrName("b")},
	)

	plan, err := d.PlanFold(ctx, branchname.MustParse("a"), branchname.MustParse("b"))
	require.NoError(t, err)
	bTip := repo.Tip("b")

	result, err := d.RunFold(ctx, plan)
	require.NoError(t, err)
	require.Equal(t, branchname.MustParse("a"), result.Target)
	require.Contains(t, result.Folded, branchname.MustParse("b"))
	require.ElementsMatch(t, []uint64{2}, result.PRsToClose)

	require.Equal(t, bTip, repo.Tip("a"))

	m, err := store.LoadManifest()
	require.NoError(t, err)
	_, bActive := m.Find(branchname.MustParse("b"))
	require.False(t, bActive, "folded branch must be removed from the manifest")

	c, ok := m.Find(branchname.MustParse("c"))
	require.True(t, ok)
	require.Equal(t, "a", c.Parent.String())

	dd, ok := m.Find(branchname.MustParse("d"))
	require.True(t, ok)
	require.Equal(t, "a", dd.Parent.String())

	inProgress, err := store.IsInProgress(state.OperationFold)
	require.NoError(t, err)
	require.False(t, inProgress)
}

func TestContinueFoldResumesAfterCrash(t *testing.T) {
	ctx := context.Background()
	repo := gittest.New("main")
	require.NoError(t, repo.CreateBranchAt(ctx, "a", repo.Tip("main")))
	repo.Commit("a", "a work")
	require.NoError(t, repo.CreateBranchAt(ctx, "b", repo.Tip("a")))
	repo.Commit("b", "b work")

	d, store := newTestDeps(t, repo)
	n1 := uint64(1)
	snapshot := state.Manifest{Branches: []state.StackBranch{
		{Name: branchname.MustParse("a"), PR: &n1},
		{Name: branchname.MustParse("b"), Parent: ptrName("a")},
	}}
	require.NoError(t, store.SaveManifest(snapshot))

	backup, err := d.createBackup(ctx, []branchname.Name{branchname.MustParse("a"), branchname.MustParse("b")})
	require.NoError(t, err)
	fs := &state.FoldState{
		OpCommon: state.OpCommon{
			StartedAt:      nowUTC(),
			BackupID:       backup.BackupID,
			OriginalBranch: branchname.MustParse("a"),
		},
		TargetBranch:     branchname.MustParse("a"),
		FoldedBranches:   []branchname.Name{branchname.MustParse("b")},
		OriginalSnapshot: snapshot,
	}
	require.NoError(t, store.SaveOpState(state.OperationFold, fs))
	bTip := repo.Tip("b")

	result, err := d.ContinueFold(ctx)
	require.NoError(t, err)
	require.Equal(t, branchname.MustParse("a"), result.Target)
	require.Equal(t, bTip, repo.Tip("a"))

	inProgress, err := store.IsInProgress(state.OperationFold)
	require.NoError(t, err)
	require.False(t, inProgress)
}
