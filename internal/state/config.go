package state

import "github.com/rung-dev/rung/internal/branchname"

// Config is the repository-wide configuration stored in config.toml
// (spec §3, §6).
type Config struct {
	General GeneralConfig `toml:"general"`
	GitHub  GitHubConfig  `toml:"github"`
}

// GeneralConfig holds non-forge-specific settings.
type GeneralConfig struct {
	DefaultBranch   string `toml:"default_branch,omitempty"`
	DefaultRemote   string `toml:"default_remote,omitempty"`
	BackupRetention int    `toml:"backup_retention,omitempty"`
	AutoSync        bool   `toml:"auto_sync,omitempty"`
}

// GitHubConfig holds forge connection settings.
type GitHubConfig struct {
	APIURL string `toml:"api_url,omitempty"`
}

// DefaultBackupRetention matches spec §3's default retention window.
const DefaultBackupRetention = 5

// DefaultConfig returns a Config with rung's defaults filled in.
func DefaultConfig(defaultBranch string) Config {
	return Config{
		General: GeneralConfig{
			DefaultBranch:   defaultBranch,
			DefaultRemote:   "origin",
			BackupRetention: DefaultBackupRetention,
			AutoSync:        false,
		},
	}
}

// DefaultBranchName parses the configured default branch. Config is assumed
// valid (written only by init and by this package), so a parse failure here
// indicates on-disk corruption.
func (c Config) DefaultBranchName() (branchname.Name, error) {
	return branchname.Parse(c.General.DefaultBranch)
}

// Retention returns the configured backup retention, or the default if unset.
func (c Config) Retention() int {
	if c.General.BackupRetention <= 0 {
		return DefaultBackupRetention
	}
	return c.General.BackupRetention
}
