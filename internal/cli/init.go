package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rung-dev/rung/internal/state"
)

// commonTrunkNames mirrors the teacher's own trunk-inference shortlist.
var commonTrunkNames = []string{"main", "master", "development", "develop", "trunk"}

// inferTrunk picks the sole commonly-named branch present in branches, or
// "" if none or more than one match (spec's command surface has no
// interactive prompt to disambiguate; the caller falls back to --trunk).
func inferTrunk(branches []string) string {
	var found []string
	for _, b := range branches {
		for _, common := range commonTrunkNames {
			if b == common {
				found = append(found, b)
				break
			}
		}
	}
	if len(found) == 1 {
		return found[0]
	}
	return ""
}

func newInitCmd(flags *globalFlags) *cobra.Command {
	var trunk string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize rung's metadata in the current repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context(), *flags, false)
			if err != nil {
				return err
			}
			if app.store.Initialised() {
				app.log.Info("rung is already initialized")
				return nil
			}

			if trunk == "" {
				branches, err := app.repo.ListBranches(app.ctx)
				if err != nil {
					return fail(app.log, fmt.Errorf("list branches: %w", err))
				}
				trunk = inferTrunk(branches)
			}
			if trunk == "" {
				return fail(app.log, fmt.Errorf("could not infer the default branch; pass --trunk explicitly"))
			}
			if exists, err := app.repo.BranchExists(app.ctx, trunk); err != nil {
				return fail(app.log, err)
			} else if !exists {
				return fail(app.log, fmt.Errorf("branch %q does not exist", trunk))
			}

			if err := app.store.SaveConfig(state.DefaultConfig(trunk)); err != nil {
				return fail(app.log, err)
			}
			if err := app.store.SaveManifest(state.Manifest{}); err != nil {
				return fail(app.log, err)
			}
			app.log.Success("initialized rung with default branch %s", trunk)
			return nil
		},
	}

	cmd.Flags().StringVar(&trunk, "trunk", "", "The repository's default/trunk branch")
	return cmd
}
