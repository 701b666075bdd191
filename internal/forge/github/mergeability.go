package github

import (
	"context"
	"time"
)

// WaitForMergeable polls GetPR up to MaxMergeabilityRetries times, waiting
// RetryBackoff between attempts, until the PR's tri-state mergeability
// flag settles to yes or no (spec §4.2.3 step 1, B4). A null/"computing"
// response is not a failure; only running out of retries while still
// computing, or an explicit "no", ends the wait.
func WaitForMergeable(ctx context.Context, f Forge, number int) (*PullRequest, error) {
	var pr *PullRequest
	var err error
	for attempt := 0; attempt < MaxMergeabilityRetries; attempt++ {
		pr, err = f.GetPR(ctx, number)
		if err != nil {
			return nil, err
		}
		if pr.Mergeable != MergeableComputing {
			return pr, nil
		}
		if attempt < MaxMergeabilityRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(RetryBackoff):
			}
		}
	}
	return pr, nil
}
