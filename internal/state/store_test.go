package state

import (
	"testing"
	"time"

	"github.com/rung-dev/rung/internal/branchname"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(t.TempDir())
	require.NoError(t, s.EnsureDirs())
	return s
}

func TestManifestRoundTrip(t *testing.T) {
	// R3: parse(serialise(m)) == m.
	s := newTestStore(t)
	a := branchname.MustParse("a")
	b := branchname.MustParse("b")
	pr := uint64(7)
	m := Manifest{
		Branches: []StackBranch{
			{Name: a, Created: time.Now().UTC().Truncate(time.Second)},
			{Name: b, Parent: &a, PR: &pr, Created: time.Now().UTC().Truncate(time.Second)},
		},
		Merged: []MergedBranch{},
	}
	require.NoError(t, s.SaveManifest(m))

	got, err := s.LoadManifest()
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestManifestCreateThenRemoveRoundTrip(t *testing.T) {
	// R1: create-then-remove a branch restores the starting manifest.
	s := newTestStore(t)
	start := Manifest{Branches: []StackBranch{}, Merged: []MergedBranch{}}
	require.NoError(t, s.SaveManifest(start))

	withBranch := start.Clone()
	withBranch.Branches = append(withBranch.Branches, StackBranch{
		Name: branchname.MustParse("feature"), Created: time.Now().UTC(),
	})
	require.NoError(t, s.SaveManifest(withBranch))

	require.NoError(t, s.SaveManifest(start))
	got, err := s.LoadManifest()
	require.NoError(t, err)
	require.Equal(t, start, got)
}

func TestManifestValidateRejectsCycle(t *testing.T) {
	a := branchname.MustParse("a")
	b := branchname.MustParse("b")
	m := Manifest{Branches: []StackBranch{
		{Name: a, Parent: &b},
		{Name: b, Parent: &a},
	}}
	require.Error(t, m.Validate())
}

func TestManifestValidateRejectsDanglingParent(t *testing.T) {
	a := branchname.MustParse("a")
	ghost := branchname.MustParse("ghost")
	m := Manifest{Branches: []StackBranch{{Name: a, Parent: &ghost}}}
	require.Error(t, m.Validate())
}

func TestOperationStateLifecycle(t *testing.T) {
	s := newTestStore(t)

	ok, err := s.IsInProgress(OperationRestack)
	require.NoError(t, err)
	require.False(t, ok)

	st := RestackState{
		OpCommon: OpCommon{
			StartedAt:      time.Now().UTC(),
			BackupID:       1,
			OriginalBranch: branchname.MustParse("main"),
			Remaining:      []string{"feature-a"},
		},
		TargetBranch: branchname.MustParse("feature-a"),
		NewParent:    branchname.MustParse("main"),
	}
	require.NoError(t, s.SaveOpState(OperationRestack, &st))

	ok, err = s.IsInProgress(OperationRestack)
	require.NoError(t, err)
	require.True(t, ok)

	kind, inProgress, err := s.AnyInProgress()
	require.NoError(t, err)
	require.True(t, inProgress)
	require.Equal(t, OperationRestack, kind)

	var got RestackState
	ok, err = s.LoadOpState(OperationRestack, &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, st.TargetBranch, got.TargetBranch)

	require.NoError(t, s.ClearOpState(OperationRestack))
	ok, err = s.IsInProgress(OperationRestack)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBackupLifecycle(t *testing.T) {
	s := newTestStore(t)
	b := NewBackup(123, map[branchname.Name]string{
		branchname.MustParse("feature/foo"): "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef",
	})
	require.NoError(t, s.CreateBackup(b))

	got, err := s.LoadBackup(123, []string{"feature/foo"})
	require.NoError(t, err)
	require.Equal(t, b.Refs, got.Refs)

	names, err := s.BackupBranches(123)
	require.NoError(t, err)
	require.Equal(t, []string{"feature/foo"}, names)

	require.NoError(t, s.DeleteBackup(123))
	got, err = s.LoadBackup(123, []string{"feature/foo"})
	require.NoError(t, err)
	require.Empty(t, got.Refs)
}

func TestPruneBackupsKeepsRetentionWindow(t *testing.T) {
	s := newTestStore(t)
	for i := int64(1); i <= 7; i++ {
		require.NoError(t, s.CreateBackup(NewBackup(i, map[branchname.Name]string{
			branchname.MustParse("a"): "c",
		})))
	}
	require.NoError(t, s.PruneBackups(5))
	ids, err := s.ListBackupIDs()
	require.NoError(t, err)
	require.Equal(t, []int64{3, 4, 5, 6, 7}, ids)
}

func TestConfigDefaults(t *testing.T) {
	s := newTestStore(t)
	cfg, err := s.LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "main", cfg.General.DefaultBranch)
	require.Equal(t, DefaultBackupRetention, cfg.Retention())
}

func TestConfigRoundTrip(t *testing.T) {
	s := newTestStore(t)
	cfg := DefaultConfig("develop")
	cfg.GitHub.APIURL = "https://github.example.com/api/v3"
	require.NoError(t, s.SaveConfig(cfg))

	got, err := s.LoadConfig()
	require.NoError(t, err)
	require.Equal(t, cfg, got)
}
