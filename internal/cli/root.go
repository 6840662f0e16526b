package cli

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/rileyhilliard/rdpmon/internal/errors"
	"github.com/spf13/cobra"
)

// Global flags
var (
	configFlag   string
	registryFlag string
)

var rootCmd = &cobra.Command{
	Use:   "rdpmon",
	Short: "Watch RDP sessions, processes and services across Windows servers",
	Long: `rdpmon polls a roster of Windows servers for remote-desktop sessions,
watched processes and watched services, and flags sessions opened by
IT accounts.

Queries run with the stock Windows tools (qwinsta, tasklist, sc), either
on this machine or on a Windows jump host over SSH.

Examples:
  rdpmon watch
  rdpmon status --json
  rdpmon server add DC01 10.0.0.5
  rdpmon users add alice`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// completionCmd generates shell completion scripts
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion scripts for rdpmon.

Examples:
  # Bash
  rdpmon completion bash > /etc/bash_completion.d/rdpmon

  # Zsh
  rdpmon completion zsh > "${fpath[1]}/_rdpmon"

  # Fish
  rdpmon completion fish > ~/.config/fish/completions/rdpmon.fish`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(out)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletion(out)
		default:
			return errors.New(errors.ErrExec,
				"Unknown shell: "+args[0],
				"Supported shells: bash, zsh, fish, powershell")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "settings file (default ~/.config/rdpmon/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&registryFlag, "registry", "", "server registry file (overrides the registry setting)")
	rootCmd.AddCommand(completionCmd)
}

// errReported means the command already wrote its error (e.g. as JSON)
// and only the exit status is left to set.
var errReported = stderrors.New("error already reported")

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if stderrors.Is(err, errReported) {
			os.Exit(1)
		}
		if isUnknownCommandError(err) {
			if name := extractUnknownCommand(err); name != "" {
				fmt.Fprintf(os.Stderr, "Unknown command %q. Run 'rdpmon --help' to see what's available.\n", name)
				os.Exit(1)
			}
		}
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "unknown flag")
}

// extractUnknownCommand pulls the name out of cobra's
// `unknown command "foo" for "rdpmon"` message.
func extractUnknownCommand(err error) string {
	msg := err.Error()
	start := strings.Index(msg, `"`)
	if start < 0 {
		return ""
	}
	end := strings.Index(msg[start+1:], `"`)
	if end < 0 {
		return ""
	}
	return msg[start+1 : start+1+end]
}
