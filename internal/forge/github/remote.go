package github

import (
	"fmt"
	"strings"
)

// RepoRef identifies a GitHub repository by owner and name, as recovered
// from a git remote URL.
type RepoRef struct {
	Owner string
	Repo  string
}

// ParseRemoteURL extracts owner/repo from a git remote URL, supporting
// both SSH (git@host:owner/repo.git) and HTTPS
// (https://host/owner/repo.git) forms.
func ParseRemoteURL(remoteURL string) (RepoRef, error) {
	url := strings.TrimSuffix(strings.TrimSpace(remoteURL), ".git")

	var path string
	switch {
	case strings.Contains(url, "@"):
		parts := strings.SplitN(url, "@", 2)
		if len(parts) != 2 {
			return RepoRef{}, fmt.Errorf("invalid SSH remote URL %q", remoteURL)
		}
		hostAndPath := parts[1]
		if i := strings.Index(hostAndPath, ":"); i >= 0 {
			path = hostAndPath[i+1:]
		} else if i := strings.Index(hostAndPath, "/"); i >= 0 {
			path = hostAndPath[i+1:]
		} else {
			return RepoRef{}, fmt.Errorf("invalid SSH remote URL %q: missing path", remoteURL)
		}
	default:
		url = strings.TrimPrefix(url, "https://")
		url = strings.TrimPrefix(url, "http://")
		if i := strings.Index(url, "/"); i >= 0 {
			path = url[i+1:]
		} else {
			return RepoRef{}, fmt.Errorf("invalid HTTPS remote URL %q: missing path", remoteURL)
		}
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 {
		return RepoRef{}, fmt.Errorf("invalid remote URL %q: expected owner/repo", remoteURL)
	}
	owner := segments[len(segments)-2]
	repo := segments[len(segments)-1]
	if owner == "" || repo == "" {
		return RepoRef{}, fmt.Errorf("invalid remote URL %q: empty owner or repo", remoteURL)
	}
	return RepoRef{Owner: owner, Repo: repo}, nil
}
