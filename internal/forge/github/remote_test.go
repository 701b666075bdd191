package github

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRemoteURLHandlesSSHAndHTTPS(t *testing.T) {
	cases := []struct {
		url   string
		owner string
		repo  string
	}{
		{"git@github.com:rung-dev/rung.git", "rung-dev", "rung"},
		{"https://github.com/rung-dev/rung.git", "rung-dev", "rung"},
		{"https://github.com/rung-dev/rung", "rung-dev", "rung"},
		{"git@github.company.com:owner/repo.git", "owner", "repo"},
	}
	for _, c := range cases {
		ref, err := ParseRemoteURL(c.url)
		require.NoError(t, err, c.url)
		require.Equal(t, c.owner, ref.Owner, c.url)
		require.Equal(t, c.repo, ref.Repo, c.url)
	}
}

func TestParseRemoteURLRejectsMalformed(t *testing.T) {
	_, err := ParseRemoteURL("not-a-url")
	require.Error(t, err)
}
