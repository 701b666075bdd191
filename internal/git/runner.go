package git

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/rung-dev/rung/internal/rerrors"
)

// DefaultCommandTimeout bounds any single git invocation; spec §5 notes no
// per-call timeout is mandated beyond the HTTP stack's defaults for the
// forge, but local git calls still need a backstop against a genuinely
// hung process (e.g. a credential helper blocking on stdin).
const DefaultCommandTimeout = 5 * time.Minute

// runner executes git commands in a fixed working directory.
type runner struct {
	dir string
}

func newRunner(dir string) *runner { return &runner{dir: dir} }

func (r *runner) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), &rerrors.GitCommandError{
			Args:   args,
			Stdout: stdout.String(),
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return stdout.String(), nil
}

func (r *runner) runTrim(ctx context.Context, args ...string) (string, error) {
	out, err := r.run(ctx, args...)
	return strings.TrimSpace(out), err
}

func (r *runner) runLines(ctx context.Context, args ...string) ([]string, error) {
	out, err := r.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}
