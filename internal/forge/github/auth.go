package github

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/rung-dev/rung/internal/rerrors"
)

// ResolveToken implements spec §6's authentication order: an explicit
// token, then the GITHUB_TOKEN environment variable, then the `gh` CLI
// helper binary. The resolved token is never logged.
func ResolveToken(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv("GITHUB_TOKEN"); env != "" {
		return env, nil
	}
	if tok, err := ghCLIToken(ctx); err == nil && tok != "" {
		return tok, nil
	}
	return "", rerrors.ErrForgeAuthMissing
}

func ghCLIToken(ctx context.Context) (string, error) {
	path, err := exec.LookPath("gh")
	if err != nil {
		return "", err
	}
	cmd := exec.CommandContext(ctx, path, "auth", "token")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.String()), nil
}
