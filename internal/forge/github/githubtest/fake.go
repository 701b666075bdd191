// Package githubtest provides an in-memory fake of github.Forge for
// testing the sync reconciler, merge orchestrator, and submit action
// without a real GitHub API (spec §9).
package githubtest

import (
	"context"
	"fmt"

	"github.com/rung-dev/rung/internal/forge/github"
)

// Fake is an in-memory github.Forge.
type Fake struct {
	PRs           map[int]*github.PullRequest
	nextCommentID int64
	Comments      map[int][]github.Comment // issue number -> comments
	CheckRunsByS  map[string][]github.CheckRun
	DeletedRefs   []string
	Default       string

	// MergeabilityScript lets tests script a sequence of Mergeable
	// values returned on successive GetPR calls for a given PR number,
	// to exercise B4's retry-then-settle behaviour.
	MergeabilityScript map[int][]github.Mergeable

	// FailMerge, if set, is returned by MergePR instead of succeeding.
	FailMerge error

	// FailCreateFor, keyed by head branch name, is returned by CreatePR
	// instead of succeeding, letting a test exercise submit's per-branch
	// partial-failure tolerance.
	FailCreateFor map[string]error
}

var _ github.Forge = (*Fake)(nil)

// New builds an empty Fake with defaultBranch as DefaultBranch.
func New(defaultBranch string) *Fake {
	return &Fake{
		PRs:                map[int]*github.PullRequest{},
		Comments:           map[int][]github.Comment{},
		CheckRunsByS:       map[string][]github.CheckRun{},
		MergeabilityScript: map[int][]github.Mergeable{},
		Default:            defaultBranch,
	}
}

// AddPR registers a PR in the fake's state.
func (f *Fake) AddPR(pr github.PullRequest) {
	f.PRs[pr.Number] = &pr
}

func (f *Fake) GetPR(ctx context.Context, number int) (*github.PullRequest, error) {
	pr, ok := f.PRs[number]
	if !ok {
		return nil, fmt.Errorf("pr #%d not found", number)
	}
	cp := *pr
	if script := f.MergeabilityScript[number]; len(script) > 0 {
		cp.Mergeable = script[0]
		f.MergeabilityScript[number] = script[1:]
	}
	return &cp, nil
}

func (f *Fake) GetPRs(ctx context.Context, numbers []int) (map[int]*github.PullRequest, error) {
	out := make(map[int]*github.PullRequest, len(numbers))
	for _, n := range numbers {
		pr, err := f.GetPR(ctx, n)
		if err != nil {
			return nil, err
		}
		out[n] = pr
	}
	return out, nil
}

func (f *Fake) FindOpenPRForBranch(ctx context.Context, head string) (*github.PullRequest, error) {
	for _, pr := range f.PRs {
		if pr.Head == head && pr.State == github.Open {
			cp := *pr
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *Fake) CreatePR(ctx context.Context, opts github.CreatePROptions) (*github.PullRequest, error) {
	if err := f.FailCreateFor[opts.Head]; err != nil {
		return nil, err
	}
	number := len(f.PRs) + 1
	pr := &github.PullRequest{
		Number:    number,
		Title:     opts.Title,
		Body:      opts.Body,
		State:     github.Open,
		Draft:     opts.Draft,
		Head:      opts.Head,
		Base:      opts.Base,
		URL:       fmt.Sprintf("https://github.example/pr/%d", number),
		Mergeable: github.MergeableYes,
	}
	f.PRs[number] = pr
	cp := *pr
	return &cp, nil
}

func (f *Fake) UpdatePR(ctx context.Context, number int, opts github.UpdatePROptions) error {
	pr, ok := f.PRs[number]
	if !ok {
		return fmt.Errorf("pr #%d not found", number)
	}
	if opts.Title != nil {
		pr.Title = *opts.Title
	}
	if opts.Body != nil {
		pr.Body = *opts.Body
	}
	if opts.Base != nil {
		pr.Base = *opts.Base
	}
	return nil
}

func (f *Fake) MergePR(ctx context.Context, number int, method github.MergeMethod) error {
	if f.FailMerge != nil {
		return f.FailMerge
	}
	pr, ok := f.PRs[number]
	if !ok {
		return fmt.Errorf("pr #%d not found", number)
	}
	pr.State = github.Merged
	return nil
}

func (f *Fake) CheckRuns(ctx context.Context, commitSHA string) ([]github.CheckRun, error) {
	return f.CheckRunsByS[commitSHA], nil
}

func (f *Fake) ListComments(ctx context.Context, issueNumber int) ([]github.Comment, error) {
	return f.Comments[issueNumber], nil
}

func (f *Fake) CreateComment(ctx context.Context, issueNumber int, body string) (*github.Comment, error) {
	f.nextCommentID++
	c := github.Comment{ID: f.nextCommentID, Body: body}
	f.Comments[issueNumber] = append(f.Comments[issueNumber], c)
	return &c, nil
}

func (f *Fake) UpdateComment(ctx context.Context, commentID int64, body string) error {
	for issue, comments := range f.Comments {
		for i, c := range comments {
			if c.ID == commentID {
				comments[i].Body = body
				f.Comments[issue] = comments
				return nil
			}
		}
	}
	return fmt.Errorf("comment %d not found", commentID)
}

func (f *Fake) DeleteRef(ctx context.Context, branch string) error {
	f.DeletedRefs = append(f.DeletedRefs, branch)
	return nil
}

func (f *Fake) DefaultBranch(ctx context.Context) (string, error) { return f.Default, nil }
