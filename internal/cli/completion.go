package cli

import (
	"github.com/spf13/cobra"
)

// Flags whose values are paths, completed as directories or image files.
var (
	dirFlags   = []string{"rawImageDir", "processedImageDir", "cache-dir"}
	imageExts  = []string{"jpg", "jpeg", "png", "gif", "bmp", "tif", "tiff", "webp"}
	configExts = []string{"toml"}
)

// completionCommand creates the completion command for generating shell completions.
func (c *CLI) completionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate a completion script for tessera.

Directory flags (--rawImageDir, --processedImageDir, --cache-dir) complete to
directories, --input and --output to image files, and --config to TOML files.

  $ source <(tessera completion bash)
  $ tessera completion zsh > "${fpath[1]}/_tessera"
  $ tessera completion fish > ~/.config/fish/completions/tessera.fish
  PS> tessera completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			default:
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
		},
	}

	return cmd
}

// completePaths attaches path completion to the flags and arguments of root
// and all of its subcommands.
func completePaths(root *cobra.Command) {
	for _, cmd := range root.Commands() {
		completePaths(cmd)
		fs := cmd.Flags()
		for _, name := range dirFlags {
			if fs.Lookup(name) != nil {
				_ = cmd.MarkFlagDirname(name)
			}
		}
		for _, name := range []string{"input", "output"} {
			if fs.Lookup(name) != nil {
				_ = cmd.MarkFlagFilename(name, imageExts...)
			}
		}
		if fs.Lookup("config") != nil {
			_ = cmd.MarkFlagFilename("config", configExts...)
		}
		if cmd.Name() == "catalog" {
			cmd.ValidArgsFunction = func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
				return nil, cobra.ShellCompDirectiveFilterDirs
			}
		}
	}
}
