package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Store is the exclusive owner of every file under a repository's
// .git/rung/ directory. It never shares mutable handles with callers:
// every Load returns a copy, every Save replaces the file atomically.
type Store struct {
	root string // absolute path to .git/rung
}

// NewStore returns a Store rooted at <gitDir>/rung.
func NewStore(gitDir string) *Store {
	return &Store{root: filepath.Join(gitDir, "rung")}
}

// Root returns the store's root directory, for callers (e.g. doctor) that
// need to report file paths.
func (s *Store) Root() string { return s.root }

// EnsureDirs creates the store's root and refs directories if absent.
func (s *Store) EnsureDirs() error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create rung state dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(s.root, "refs"), 0o755); err != nil {
		return fmt.Errorf("create rung refs dir: %w", err)
	}
	return nil
}

// Initialised reports whether stack.json exists.
func (s *Store) Initialised() bool {
	_, err := os.Stat(filepath.Join(s.root, "stack.json"))
	return err == nil
}

// atomicWrite writes data to path via a temp file in the same directory,
// fsync, then rename — spec §5's locking discipline for manifest,
// operation-state, and backup writes.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func readFile(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// --- Manifest ---

func (s *Store) manifestPath() string { return filepath.Join(s.root, "stack.json") }

// LoadManifest reads stack.json. A missing file yields an empty manifest,
// matching a freshly-initialised repository.
func (s *Store) LoadManifest() (Manifest, error) {
	data, ok, err := readFile(s.manifestPath())
	if err != nil {
		return Manifest{}, fmt.Errorf("read stack.json: %w", err)
	}
	if !ok {
		return Manifest{Branches: []StackBranch{}, Merged: []MergedBranch{}}, nil
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse stack.json: %w", err)
	}
	return m, nil
}

// SaveManifest validates and atomically writes the manifest.
func (s *Store) SaveManifest(m Manifest) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("refusing to write invalid manifest: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stack.json: %w", err)
	}
	return atomicWrite(s.manifestPath(), data)
}

// --- Config ---

func (s *Store) configPath() string { return filepath.Join(s.root, "config.toml") }

// LoadConfig reads config.toml, defaulting default_branch to "main" when
// absent (mirrors the teacher's GetTrunk fallback).
func (s *Store) LoadConfig() (Config, error) {
	data, ok, err := readFile(s.configPath())
	if err != nil {
		return Config{}, fmt.Errorf("read config.toml: %w", err)
	}
	if !ok {
		return DefaultConfig("main"), nil
	}
	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config.toml: %w", err)
	}
	return c, nil
}

// SaveConfig atomically writes config.toml.
func (s *Store) SaveConfig(c Config) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config.toml: %w", err)
	}
	return atomicWrite(s.configPath(), data)
}

// --- Operation state ---

func (s *Store) opStatePath(kind OperationKind) string {
	return filepath.Join(s.root, kind.fileName())
}

// LoadOpState unmarshals the on-disk state for kind into dest, a pointer to
// one of {SyncState, RestackState, SplitState, FoldState}. It reports
// whether the file existed.
func (s *Store) LoadOpState(kind OperationKind, dest any) (bool, error) {
	data, ok, err := readFile(s.opStatePath(kind))
	if err != nil {
		return false, fmt.Errorf("read %s: %w", kind.fileName(), err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("parse %s: %w", kind.fileName(), err)
	}
	return true, nil
}

// SaveOpState atomically writes the operation state for kind. From the
// moment this returns, IsInProgress(kind) observes true (spec §4.2 Prepare).
func (s *Store) SaveOpState(kind OperationKind, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind.fileName(), err)
	}
	return atomicWrite(s.opStatePath(kind), data)
}

// ClearOpState removes the operation-state file for kind (spec §4.2 Commit
// step 4 / Restore step 5).
func (s *Store) ClearOpState(kind OperationKind) error {
	err := os.Remove(s.opStatePath(kind))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear %s: %w", kind.fileName(), err)
	}
	return nil
}

// IsInProgress reports whether an operation state file exists for kind.
func (s *Store) IsInProgress(kind OperationKind) (bool, error) {
	_, ok, err := readFile(s.opStatePath(kind))
	return ok, err
}

var allOperationKinds = []OperationKind{OperationSync, OperationRestack, OperationSplit, OperationFold}

// AnyInProgress scans all four operation-state files and reports the one in
// progress, if any. Per spec §9, at most one may exist at a time; if more
// than one is found on disk (external tampering, or a bug) the first found
// is reported and callers should treat the repository state as suspect.
func (s *Store) AnyInProgress() (OperationKind, bool, error) {
	for _, k := range allOperationKinds {
		ok, err := s.IsInProgress(k)
		if err != nil {
			return "", false, err
		}
		if ok {
			return k, true, nil
		}
	}
	return "", false, nil
}

// --- Backups ---

func (s *Store) backupDir(id int64) string {
	return filepath.Join(s.root, "refs", strconv.FormatInt(id, 10))
}

// CreateBackup persists one file per branch tip under refs/<id>/, as
// plain-text commit SHAs, plus a `.manifest.json` listing the original
// branch names (spec §6). The manifest is what lets BackupBranches
// recover the exact names later without reversing refFileName's lossy
// slash-to-dash encoding.
func (s *Store) CreateBackup(b Backup) error {
	dir := s.backupDir(b.BackupID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	names := make([]string, 0, len(b.Refs))
	for branch, commit := range b.Refs {
		path := filepath.Join(dir, refFileName(branch))
		if err := atomicWrite(path, []byte(commit)); err != nil {
			return fmt.Errorf("write backup ref %s: %w", branch, err)
		}
		names = append(names, branch)
	}
	sort.Strings(names)
	manifest, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("marshal backup manifest: %w", err)
	}
	if err := atomicWrite(filepath.Join(dir, ".manifest.json"), manifest); err != nil {
		return fmt.Errorf("write backup manifest: %w", err)
	}
	return nil
}

// BackupBranches reads back the original branch names a backup covers,
// for callers (e.g. `undo`) that don't already have them from an
// in-progress operation's state.
func (s *Store) BackupBranches(id int64) ([]string, error) {
	data, ok, err := readFile(filepath.Join(s.backupDir(id), ".manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("read backup manifest: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("backup %d has no manifest", id)
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("parse backup manifest: %w", err)
	}
	return names, nil
}

// LoadBackup reads back every ref file under refs/<id>/. It needs the
// branch name to ref-file-name mapping to be invertible for the common
// case (no branch name contains a literal dash-for-slash ambiguity); rung
// avoids the ambiguity entirely by also writing a manifest of original
// names alongside the backup, in refs/<id>/.manifest.json.
func (s *Store) LoadBackup(id int64, branchNames []string) (Backup, error) {
	dir := s.backupDir(id)
	refs := make(map[string]string, len(branchNames))
	for _, name := range branchNames {
		data, ok, err := readFile(filepath.Join(dir, refFileName(name)))
		if err != nil {
			return Backup{}, fmt.Errorf("read backup ref %s: %w", name, err)
		}
		if !ok {
			continue
		}
		refs[name] = string(data)
	}
	return Backup{BackupID: id, Refs: refs}, nil
}

// DeleteBackup removes a backup directory entirely.
func (s *Store) DeleteBackup(id int64) error {
	err := os.RemoveAll(s.backupDir(id))
	if err != nil {
		return fmt.Errorf("delete backup %d: %w", id, err)
	}
	return nil
}

// ListBackupIDs returns every backup id currently on disk, oldest first.
func (s *Store) ListBackupIDs() ([]int64, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "refs"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list backups: %w", err)
	}
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.ParseInt(e.Name(), 10, 64)
		if err != nil {
			continue // ignore non-backup directories
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// PruneBackups deletes the oldest backups beyond retention, keeping the most
// recent `retention` (spec §3's configurable retention window, default 5).
func (s *Store) PruneBackups(retention int) error {
	ids, err := s.ListBackupIDs()
	if err != nil {
		return err
	}
	if retention <= 0 {
		retention = DefaultBackupRetention
	}
	if len(ids) <= retention {
		return nil
	}
	for _, id := range ids[:len(ids)-retention] {
		if err := s.DeleteBackup(id); err != nil {
			return err
		}
	}
	return nil
}
