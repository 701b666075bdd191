package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newCompletionsCmd generates shell completion scripts. Ambient CLI
// tooling carried over regardless of the feature scope rung itself
// targets; cobra provides the generators directly.
func newCompletionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "completions [bash|zsh|fish|powershell]",
		Short:     "Generate a shell completion script",
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(os.Stdout, true)
			case "zsh":
				return root.GenZshCompletion(os.Stdout)
			case "fish":
				return root.GenFishCompletion(os.Stdout, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(os.Stdout)
			default:
				return fmt.Errorf("unsupported shell %q", args[0])
			}
		},
	}
	return cmd
}
