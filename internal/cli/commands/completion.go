package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/perry-go/perry/internal/cli/config"
)

// NewCompletionCommand creates the completion command for shell completions
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion script",
		Long: `Generate shell completion script for perry. Model names from
perry.yaml complete for the query and find commands.

Bash:

  $ source <(perry completion bash)

Zsh:

  $ perry completion zsh > "${fpath[1]}/_perry"

Fish:

  $ perry completion fish | source

PowerShell:

  PS> perry completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			out := cmd.OutOrStdout()

			switch args[0] {
			case "bash":
				return root.GenBashCompletion(out)
			case "zsh":
				return root.GenZshCompletion(out)
			case "fish":
				return root.GenFishCompletion(out, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(out)
			}
			return fmt.Errorf("unsupported shell %q", args[0])
		},
	}

	return cmd
}

// completeModels completes the first argument with configured model names
func completeModels(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return cfg.ModelNames(), cobra.ShellCompDirectiveNoFileComp
}
