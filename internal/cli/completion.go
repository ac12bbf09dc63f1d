package cli

import (
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

// completionCommand creates the "completion" command.
func (c *CLI) completionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate a completion script for your shell. Besides commands and flags it
completes block kinds, node ids of the flow named by --file, and flow documents.

  $ source <(blockflow completion bash)
  $ blockflow completion zsh > "${fpath[1]}/_blockflow"
  $ blockflow completion fish | source
  PS> blockflow completion powershell | Out-String | Invoke-Expression`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(c.out, true)
			case "zsh":
				return root.GenZshCompletion(c.out)
			case "fish":
				return root.GenFishCompletion(c.out, true)
			default:
				return root.GenPowerShellCompletionWithDesc(c.out)
			}
		},
	}
}

// completeKinds completes a single block kind, described by its title.
func (c *CLI) completeKinds(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	cfg, err := c.config()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	reg, err := cfg.Registry()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	var out []string
	for _, e := range reg.All() {
		if strings.HasPrefix(e.Kind, toComplete) {
			out = append(out, e.Kind+"\t"+e.Title)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// completeNodeIDs completes ids of nodes in the flow named by --file that
// are not already on the command line.
func (c *CLI) completeNodeIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		path = defaultFlowFile
	}
	eng, err := c.openFlow(path, false)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer eng.Close()

	var out []string
	for _, n := range eng.Nodes() {
		if strings.HasPrefix(n.ID, toComplete) && !slices.Contains(args, n.ID) {
			out = append(out, n.ID+"\t"+n.Kind)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// completeFlowFiles completes flow documents.
func completeFlowFiles(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"json", "yaml", "yml"}, cobra.ShellCompDirectiveFilterFileExt
}
