package git

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

var hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// StagedHunks parses `git diff --cached` into structured hunks (spec §6,
// consumed by the absorb router per §4.4).
func (r *Repo) StagedHunks(ctx context.Context) ([]Hunk, error) {
	out, err := r.run.run(ctx, "diff", "--cached", "--unified=0")
	if err != nil {
		return nil, err
	}
	return parseHunks(out), nil
}

func parseHunks(diff string) []Hunk {
	var hunks []Hunk
	var file string
	newFile := false

	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git"):
			newFile = false
			parts := strings.Fields(line)
			if len(parts) >= 4 {
				file = strings.TrimPrefix(parts[len(parts)-1], "b/")
			}
		case strings.HasPrefix(line, "new file mode"):
			newFile = true
		case hunkHeaderRegex.MatchString(line):
			m := hunkHeaderRegex.FindStringSubmatch(line)
			hunks = append(hunks, Hunk{
				File:      file,
				OldStart:  atoiDefault(m[1], 0),
				OldLines:  oldLinesFromHeader(m),
				NewStart:  atoiDefault(m[3], 0),
				NewLines:  atoiDefault(m[4], 1),
				IsNewFile: newFile,
			})
		}
	}
	return hunks
}

// oldLinesFromHeader returns the old-side line count, defaulting to 0 when
// the header omits it with an old_start of 0 (a pure insertion, per the
// unified diff format: "@@ -0,0 +1,3 @@" style headers use an explicit 0
// count, but "@@ -5 +5,2 @@" without a count means exactly one line).
func oldLinesFromHeader(m []string) int {
	if m[2] != "" {
		n, _ := strconv.Atoi(m[2])
		return n
	}
	if m[1] == "0" {
		return 0
	}
	return 1
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// Blame returns the set of distinct commit ids that last touched
// [startLine, endLine] of file, de-duplicated (spec §6).
func (r *Repo) Blame(ctx context.Context, file string, startLine, endLine int) ([]string, error) {
	rangeArg := strconv.Itoa(startLine) + "," + strconv.Itoa(endLine)
	out, err := r.run.run(ctx, "blame", "--porcelain", "-L", rangeArg, "--", file)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var commits []string
	for _, line := range strings.Split(out, "\n") {
		// Porcelain blame lines that start a new chunk look like:
		// "<sha> <orig-line> <final-line> [<num-lines>]"
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		sha := fields[0]
		if len(sha) != 40 || !isHex(sha) {
			continue
		}
		if _, ok := seen[sha]; !ok {
			seen[sha] = struct{}{}
			commits = append(commits, sha)
		}
	}
	return commits, nil
}

func isHex(s string) bool {
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return true
}
