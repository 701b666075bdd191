package github

import (
	"context"
	"fmt"

	gh "github.com/google/go-github/v62/github"
	"github.com/rung-dev/rung/internal/rerrors"
	"golang.org/x/oauth2"
)

// Client is the real Forge implementation, backed by go-github.
type Client struct {
	gh    *gh.Client
	owner string
	repo  string
}

var _ Forge = (*Client)(nil)

// NewClient builds a Client authenticated with token, targeting
// owner/repo. apiURL is used for GitHub Enterprise installations; an empty
// string means github.com.
func NewClient(ctx context.Context, token, apiURL, owner, repo string) (*Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(ctx, ts)

	client := gh.NewClient(httpClient)
	if apiURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(apiURL, apiURL)
		if err != nil {
			return nil, fmt.Errorf("configure enterprise github client: %w", err)
		}
	}
	return &Client{gh: client, owner: owner, repo: repo}, nil
}

func toState(pr *gh.PullRequest) State {
	if pr.GetMerged() {
		return Merged
	}
	if pr.GetState() == "closed" {
		return Closed
	}
	return Open
}

func toMergeable(pr *gh.PullRequest) Mergeable {
	if pr.Mergeable == nil {
		return MergeableComputing
	}
	if *pr.Mergeable {
		return MergeableYes
	}
	return MergeableNo
}

func fromGH(pr *gh.PullRequest) *PullRequest {
	return &PullRequest{
		Number:         pr.GetNumber(),
		Title:          pr.GetTitle(),
		Body:           pr.GetBody(),
		State:          toState(pr),
		Draft:          pr.GetDraft(),
		Head:           pr.GetHead().GetRef(),
		Base:           pr.GetBase().GetRef(),
		URL:            pr.GetHTMLURL(),
		Mergeable:      toMergeable(pr),
		MergeableState: pr.GetMergeableState(),
	}
}

func (c *Client) GetPR(ctx context.Context, number int) (*PullRequest, error) {
	pr, _, err := c.gh.PullRequests.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		return nil, &rerrors.ForgeError{Op: "get pull request", Err: err}
	}
	return fromGH(pr), nil
}

// GetPRs fetches multiple PRs with one REST GET per number, in sequence:
// go-github's REST surface has no batched-get endpoint. The reconciler
// calls it once its PR set exceeds its batching threshold, so even above
// that threshold the fetch costs one request per PR; rung remains
// single-threaded per spec §5.
func (c *Client) GetPRs(ctx context.Context, numbers []int) (map[int]*PullRequest, error) {
	out := make(map[int]*PullRequest, len(numbers))
	for _, n := range numbers {
		pr, err := c.GetPR(ctx, n)
		if err != nil {
			return nil, err
		}
		out[n] = pr
	}
	return out, nil
}

func (c *Client) FindOpenPRForBranch(ctx context.Context, head string) (*PullRequest, error) {
	prs, _, err := c.gh.PullRequests.List(ctx, c.owner, c.repo, &gh.PullRequestListOptions{
		State: "open",
		Head:  c.owner + ":" + head,
	})
	if err != nil {
		return nil, &rerrors.ForgeError{Op: "find pull request", Err: err}
	}
	if len(prs) == 0 {
		return nil, nil
	}
	return fromGH(prs[0]), nil
}

func (c *Client) CreatePR(ctx context.Context, opts CreatePROptions) (*PullRequest, error) {
	pr, _, err := c.gh.PullRequests.Create(ctx, c.owner, c.repo, &gh.NewPullRequest{
		Title: gh.String(opts.Title),
		Body:  gh.String(opts.Body),
		Head:  gh.String(opts.Head),
		Base:  gh.String(opts.Base),
		Draft: gh.Bool(opts.Draft),
	})
	if err != nil {
		return nil, &rerrors.ForgeError{Op: "create pull request", Err: err}
	}
	return fromGH(pr), nil
}

func (c *Client) UpdatePR(ctx context.Context, number int, opts UpdatePROptions) error {
	update := &gh.PullRequest{}
	if opts.Title != nil {
		update.Title = opts.Title
	}
	if opts.Body != nil {
		update.Body = opts.Body
	}
	if opts.Base != nil {
		update.Base = &gh.PullRequestBranch{Ref: opts.Base}
	}
	_, _, err := c.gh.PullRequests.Edit(ctx, c.owner, c.repo, number, update)
	if err != nil {
		return &rerrors.ForgeError{Op: "update pull request", Err: err}
	}
	return nil
}

func (c *Client) MergePR(ctx context.Context, number int, method MergeMethod) error {
	_, _, err := c.gh.PullRequests.Merge(ctx, c.owner, c.repo, number, "", &gh.PullRequestOptions{
		MergeMethod: string(method),
	})
	if err != nil {
		return &rerrors.ForgeError{Op: "merge pull request", Err: err}
	}
	return nil
}

func (c *Client) CheckRuns(ctx context.Context, commitSHA string) ([]CheckRun, error) {
	result, _, err := c.gh.Checks.ListCheckRunsForRef(ctx, c.owner, c.repo, commitSHA, nil)
	if err != nil {
		return nil, &rerrors.ForgeError{Op: "list check runs", Err: err}
	}
	out := make([]CheckRun, 0, len(result.CheckRuns))
	for _, cr := range result.CheckRuns {
		out = append(out, CheckRun{
			Name:       cr.GetName(),
			Status:     cr.GetStatus(),
			Conclusion: cr.GetConclusion(),
		})
	}
	return out, nil
}

func (c *Client) ListComments(ctx context.Context, issueNumber int) ([]Comment, error) {
	comments, _, err := c.gh.Issues.ListComments(ctx, c.owner, c.repo, issueNumber, nil)
	if err != nil {
		return nil, &rerrors.ForgeError{Op: "list comments", Err: err}
	}
	out := make([]Comment, 0, len(comments))
	for _, cm := range comments {
		out = append(out, Comment{ID: cm.GetID(), Body: cm.GetBody()})
	}
	return out, nil
}

func (c *Client) CreateComment(ctx context.Context, issueNumber int, body string) (*Comment, error) {
	cm, _, err := c.gh.Issues.CreateComment(ctx, c.owner, c.repo, issueNumber, &gh.IssueComment{Body: gh.String(body)})
	if err != nil {
		return nil, &rerrors.ForgeError{Op: "create comment", Err: err}
	}
	return &Comment{ID: cm.GetID(), Body: cm.GetBody()}, nil
}

func (c *Client) UpdateComment(ctx context.Context, commentID int64, body string) error {
	_, _, err := c.gh.Issues.EditComment(ctx, c.owner, c.repo, commentID, &gh.IssueComment{Body: gh.String(body)})
	if err != nil {
		return &rerrors.ForgeError{Op: "update comment", Err: err}
	}
	return nil
}

func (c *Client) DeleteRef(ctx context.Context, branch string) error {
	_, err := c.gh.Git.DeleteRef(ctx, c.owner, c.repo, "heads/"+branch)
	if err != nil {
		return &rerrors.ForgeError{Op: "delete ref", Err: err, Message: rerrors.ErrRefDeleteFailed.Error()}
	}
	return nil
}

func (c *Client) DefaultBranch(ctx context.Context) (string, error) {
	repo, _, err := c.gh.Repositories.Get(ctx, c.owner, c.repo)
	if err != nil {
		return "", &rerrors.ForgeError{Op: "get repository", Err: err}
	}
	return repo.GetDefaultBranch(), nil
}
