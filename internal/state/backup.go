package state

import "github.com/rung-dev/rung/internal/branchname"

// Backup is a snapshot of branch tips taken before a destructive mutation
// (spec §3). BackupID is a monotonic unix timestamp; it also names the
// on-disk directory holding one file per branch under refs/<id>/.
type Backup struct {
	BackupID int64
	Refs     map[string]string // branch name -> commit id (hex, lowercase)
}

// NewBackup builds a Backup from a set of branch tips.
func NewBackup(id int64, tips map[branchname.Name]string) Backup {
	refs := make(map[string]string, len(tips))
	for name, commit := range tips {
		refs[name.String()] = commit
	}
	return Backup{BackupID: id, Refs: refs}
}

// refFileName encodes a branch name as the file name it is stored under in
// a backup's ref-storage directory: slashes become dashes, per spec §6's
// "refs/<unix-timestamp>/<branch-with-slash-to-dash>" layout.
func refFileName(branch string) string {
	out := make([]rune, 0, len(branch))
	for _, r := range branch {
		if r == '/' {
			out = append(out, '-')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
