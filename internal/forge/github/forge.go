// Package github is rung's typed facade over the GitHub REST API (spec
// §6's forge collaborator contract): PR CRUD, issue comments, merge,
// ref-delete, default-branch lookup, and check-runs.
package github

import (
	"context"
	"time"
)

// State is the PR lifecycle state the engine consumes. The forge's own
// {state=closed, merged=true} response is folded into Merged at the client
// boundary (spec §6).
type State string

const (
	Open   State = "open"
	Closed State = "closed"
	Merged State = "merged"
)

// Mergeable is GitHub's tri-state mergeability flag: null means "still
// computing", not a failure (spec §4.2.3, §9).
type Mergeable string

const (
	MergeableYes       Mergeable = "yes"
	MergeableNo        Mergeable = "no"
	MergeableComputing Mergeable = "computing"
)

// MergeMethod selects how a PR is merged.
type MergeMethod string

const (
	MergeMethodMerge  MergeMethod = "merge"
	MergeMethodSquash MergeMethod = "squash"
	MergeMethodRebase MergeMethod = "rebase"
)

// PullRequest is the subset of a forge PR the engine operates on.
type PullRequest struct {
	Number         int
	Title          string
	Body           string
	State          State
	Draft          bool
	Head           string
	Base           string
	URL            string
	Mergeable      Mergeable
	MergeableState string
}

// Comment is an issue comment attached to a PR via its issue number.
type Comment struct {
	ID   int64
	Body string
}

// CheckRun is one CI check attached to a commit.
type CheckRun struct {
	Name       string
	Status     string
	Conclusion string
}

// CreatePROptions configures PR creation.
type CreatePROptions struct {
	Title string
	Body  string
	Head  string
	Base  string
	Draft bool
}

// UpdatePROptions configures a partial PR update; nil fields are left
// untouched.
type UpdatePROptions struct {
	Title *string
	Body  *string
	Base  *string
}

// Forge is the full surface rung's engine consumes from GitHub.
type Forge interface {
	GetPR(ctx context.Context, number int) (*PullRequest, error)
	GetPRs(ctx context.Context, numbers []int) (map[int]*PullRequest, error)
	FindOpenPRForBranch(ctx context.Context, head string) (*PullRequest, error)
	CreatePR(ctx context.Context, opts CreatePROptions) (*PullRequest, error)
	UpdatePR(ctx context.Context, number int, opts UpdatePROptions) error
	MergePR(ctx context.Context, number int, method MergeMethod) error
	CheckRuns(ctx context.Context, commitSHA string) ([]CheckRun, error)

	ListComments(ctx context.Context, issueNumber int) ([]Comment, error)
	CreateComment(ctx context.Context, issueNumber int, body string) (*Comment, error)
	UpdateComment(ctx context.Context, commentID int64, body string) error

	DeleteRef(ctx context.Context, branch string) error
	DefaultBranch(ctx context.Context) (string, error)
}

// RetryBackoff is how long WaitForMergeable waits between polls of a PR whose
// mergeable state is still "computing" (spec §4.2.3, B4).
const RetryBackoff = 1 * time.Second

// MaxMergeabilityRetries is the fixed retry budget for tri-state
// mergeability (spec §4.2.3, B4): 5 attempts.
const MaxMergeabilityRetries = 5
