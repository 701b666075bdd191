// Package state owns every on-disk file under a repository's .git/rung/
// metadata directory: the stack manifest, config, operation states, and
// branch-tip backups (spec §3, §6). Callers receive values by copy; no
// shared mutable handles escape the Store.
package state

import (
	"fmt"
	"time"

	"github.com/rung-dev/rung/internal/branchname"
)

// StackBranch is one active branch tracked by rung.
type StackBranch struct {
	Name    branchname.Name  `json:"name"`
	Parent  *branchname.Name `json:"parent,omitempty"`
	PR      *uint64          `json:"pr,omitempty"`
	Created time.Time        `json:"created"`
}

// MergedBranch is preserved after its PR merges, so comment generation can
// still render the lineage (spec §3).
type MergedBranch struct {
	Name     branchname.Name  `json:"name"`
	Parent   *branchname.Name `json:"parent,omitempty"`
	PR       uint64           `json:"pr"`
	MergedAt time.Time        `json:"merged_at"`
}

// Manifest is the persistent stack.json contents.
type Manifest struct {
	Branches []StackBranch  `json:"branches"`
	Merged   []MergedBranch `json:"merged"`
}

// Clone returns a deep copy, so mutation of the result never affects m.
func (m Manifest) Clone() Manifest {
	out := Manifest{
		Branches: make([]StackBranch, len(m.Branches)),
		Merged:   make([]MergedBranch, len(m.Merged)),
	}
	copy(out.Branches, m.Branches)
	copy(out.Merged, m.Merged)
	return out
}

// Find returns the active branch named name, if any.
func (m Manifest) Find(name branchname.Name) (StackBranch, bool) {
	for _, b := range m.Branches {
		if b.Name.Equal(name) {
			return b, true
		}
	}
	return StackBranch{}, false
}

// Validate enforces invariants I1-I3 and I7 over the manifest as a whole.
// I4, I5, I6, I8, I9 are enforced by the orchestrator and sync reconciler,
// which observe state the manifest alone doesn't carry (operation state,
// backups, forge PR bases).
func (m Manifest) Validate() error {
	seen := make(map[string]struct{}, len(m.Branches))
	for _, b := range m.Branches {
		key := b.Name.String()
		if _, ok := seen[key]; ok {
			return fmt.Errorf("duplicate branch %q in manifest", key) // I1
		}
		seen[key] = struct{}{}
	}
	for _, b := range m.Branches {
		if b.Parent == nil {
			continue
		}
		if _, ok := seen[b.Parent.String()]; !ok {
			return fmt.Errorf("branch %q has parent %q which is not active", b.Name, b.Parent) // I2
		}
	}
	if err := m.checkAcyclic(); err != nil {
		return err // I3
	}
	if len(m.Branches) == 0 && len(m.Merged) != 0 {
		return fmt.Errorf("merged is non-empty while branches is empty") // I7
	}
	return nil
}

func (m Manifest) checkAcyclic() error {
	parent := make(map[string]string, len(m.Branches))
	for _, b := range m.Branches {
		if b.Parent != nil {
			parent[b.Name.String()] = b.Parent.String()
		}
	}
	for start := range parent {
		seen := map[string]struct{}{start: {}}
		cur := start
		for {
			next, ok := parent[cur]
			if !ok {
				break
			}
			if _, looped := seen[next]; looped {
				return fmt.Errorf("cycle detected in parent relation starting at %q", start)
			}
			seen[next] = struct{}{}
			cur = next
		}
	}
	return nil
}
