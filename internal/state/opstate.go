package state

import (
	"time"

	"github.com/rung-dev/rung/internal/branchname"
)

// OperationKind names the four operation-state shapes. Per spec §4.2/§9,
// each operation type has its own state record shape rather than a single
// tagged-variant record; OperationKind is only used to pick which file the
// Store reads/writes, never serialized into the state itself.
type OperationKind string

const (
	OperationSync    OperationKind = "sync"
	OperationRestack OperationKind = "restack"
	OperationSplit   OperationKind = "split"
	OperationFold    OperationKind = "fold"
)

// fileName returns the on-disk file name for the given operation kind,
// matching spec §6's exact layout.
func (k OperationKind) fileName() string {
	switch k {
	case OperationSync:
		return "sync_state"
	case OperationRestack:
		return "restack_state"
	case OperationSplit:
		return "split_state"
	case OperationFold:
		return "fold_state"
	default:
		panic("rung: unknown operation kind " + string(k))
	}
}

// OpCommon holds the fields every operation state carries.
type OpCommon struct {
	StartedAt      time.Time       `json:"started_at"`
	BackupID       int64           `json:"backup_id"`
	OriginalBranch branchname.Name `json:"original_branch"`

	// StackUpdated is set true once the manifest mutation for this
	// operation has been persisted, per the §4.2 Commit phase's crash
	// recovery contract: true means a crash before the state file is
	// cleared is safe to resolve by just clearing the state.
	StackUpdated bool `json:"stack_updated"`

	Completed []string `json:"completed"`
	Current   string   `json:"current,omitempty"`
	Remaining []string `json:"remaining"`
}

// Advance moves Current into Completed and pops the next entry off
// Remaining into Current. Returns false when Remaining is empty, meaning
// the plan is exhausted.
func (o *OpCommon) Advance() bool {
	if o.Current != "" {
		o.Completed = append(o.Completed, o.Current)
		o.Current = ""
	}
	if len(o.Remaining) == 0 {
		return false
	}
	o.Current, o.Remaining = o.Remaining[0], o.Remaining[1:]
	return true
}

// RestackState is the on-disk shape of restack_state.
type RestackState struct {
	OpCommon
	TargetBranch    branchname.Name `json:"target_branch"`
	NewParent       branchname.Name `json:"new_parent"`
	IncludeChildren bool            `json:"include_children"`
}

// PendingBaseUpdate is one forge PR base correction reconcile found owed,
// still to be submitted once the local rebase finishes (spec §4.2.2 step
// 6). Carried in SyncState so it survives a conflict pause: ContinueSync
// must still perform step 6 on the branches reconcile already found, not
// just the ones whose rebase happened to be interrupted.
type PendingBaseUpdate struct {
	PR      uint64 `json:"pr"`
	NewBase string `json:"new_base"`
}

// SyncState is the on-disk shape of sync_state.
type SyncState struct {
	OpCommon
	// ForgeBaseUpdatesPending records PRs whose base still needs
	// submitting to the forge (spec §4.2.2 step 6), surviving a crash
	// between the local rebase and the forge call.
	ForgeBaseUpdatesPending []PendingBaseUpdate `json:"forge_base_updates_pending,omitempty"`
}

// FoldState is the on-disk shape of fold_state. It embeds a snapshot of the
// manifest as it stood before the fold, so Commit can be replayed
// idempotently on resume (spec §4.2.4).
type FoldState struct {
	OpCommon
	TargetBranch     branchname.Name   `json:"target_branch"`
	FoldedBranches   []branchname.Name `json:"folded_branches"`
	OriginalSnapshot Manifest          `json:"original_snapshot"`
	PRsToClose       []uint64          `json:"prs_to_close,omitempty"`
}

// SplitState is the on-disk shape of split_state.
type SplitState struct {
	OpCommon
	SourceBranch branchname.Name   `json:"source_branch"`
	SplitPoints  []string          `json:"split_points"` // commit ids, base to tip
	NewBranches  []branchname.Name `json:"new_branches"`
}
