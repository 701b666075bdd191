package github_test

import (
	"context"
	"testing"

	"github.com/rung-dev/rung/internal/forge/github"
	"github.com/rung-dev/rung/internal/forge/github/githubtest"
	"github.com/stretchr/testify/require"
)

func TestWaitForMergeableRetriesThenSettles(t *testing.T) {
	f := githubtest.New("main")
	f.AddPR(github.PullRequest{Number: 1, State: github.Open, Mergeable: github.MergeableComputing})
	f.MergeabilityScript[1] = []github.Mergeable{
		github.MergeableComputing,
		github.MergeableComputing,
		github.MergeableYes,
	}

	pr, err := github.WaitForMergeable(context.Background(), f, 1)
	require.NoError(t, err)
	require.Equal(t, github.MergeableYes, pr.Mergeable)
}

func TestWaitForMergeableExhaustsRetries(t *testing.T) {
	// B4: retries up to 5 times then fails cleanly (returns the last
	// observed "computing" state rather than erroring).
	f := githubtest.New("main")
	f.AddPR(github.PullRequest{Number: 1, State: github.Open, Mergeable: github.MergeableComputing})

	pr, err := github.WaitForMergeable(context.Background(), f, 1)
	require.NoError(t, err)
	require.Equal(t, github.MergeableComputing, pr.Mergeable)
}
