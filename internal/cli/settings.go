package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/rileyhilliard/rdpmon/internal/config"
	"github.com/rileyhilliard/rdpmon/internal/errors"
	"github.com/rileyhilliard/rdpmon/internal/ui"
	"github.com/rileyhilliard/rdpmon/pkg/sshutil"
	"github.com/spf13/cobra"
)

var (
	settingsInitForce    bool
	settingsJumpHostPick bool
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Create and inspect the settings file",
}

var settingsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented settings file with the defaults",
	Long: `Write ~/.config/rdpmon/config.yaml (or --config) with every setting at
its default value and a comment explaining it.

Examples:
  rdpmon settings init
  rdpmon settings init --config ./rdpmon.yaml --force`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return settingsInit(cmd.OutOrStdout(), settingsInitForce)
	},
}

var settingsJumpHostsCmd = &cobra.Command{
	Use:   "jumphosts",
	Short: "List ~/.ssh/config hosts usable as runner.ssh_host",
	Long: `List the concrete Host aliases in ~/.ssh/config. Any of them can be
used as runner.ssh_host to run the Windows queries on that machine.

With --pick, choose one interactively and switch the settings file to
runner.mode: ssh with that host.

Examples:
  rdpmon settings jumphosts
  rdpmon settings jumphosts --pick`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return settingsJumpHosts(cmd.OutOrStdout(), settingsJumpHostPick)
	},
}

func init() {
	settingsInitCmd.Flags().BoolVar(&settingsInitForce, "force", false, "overwrite an existing settings file")
	settingsJumpHostsCmd.Flags().BoolVar(&settingsJumpHostPick, "pick", false, "choose a host and save it as the jump host")

	settingsCmd.AddCommand(settingsInitCmd, settingsJumpHostsCmd)
	rootCmd.AddCommand(settingsCmd)
}

func settingsPath() string {
	if configFlag != "" {
		return configFlag
	}
	return config.DefaultPath()
}

func settingsInit(out io.Writer, force bool) error {
	path := settingsPath()
	if err := config.WriteDefault(path, force); err != nil {
		return err
	}
	ui.PrintSuccess(out, "Wrote %s", path)
	fmt.Fprintln(out, ui.MutedStyle().Render("Next: rdpmon server add <name> <ip>"))
	return nil
}

// Seams for tests.
var (
	listJumpHosts = sshutil.ListHosts
	pickJumpHost  = func(hosts []ui.JumpHost) (*ui.JumpHost, error) {
		return ui.PickJumpHost(hosts, os.Stdout, os.Stdin)
	}
)

func settingsJumpHosts(out io.Writer, pick bool) error {
	entries, err := listJumpHosts()
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrSSH,
			"Couldn't read ~/.ssh/config",
			"Check the file's syntax, or set runner.ssh_host to user@host directly.")
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No hosts in ~/.ssh/config")
		fmt.Fprintln(out, ui.MutedStyle().Render("runner.ssh_host also accepts user@host or host:port."))
		return nil
	}

	if !pick {
		rows := make([][]string, len(entries))
		for i, e := range entries {
			key := ui.SymbolFail
			if e.HasKey() {
				key = ui.SymbolSuccess
			}
			rows[i] = []string{e.Alias, e.Description(), key}
		}
		fmt.Fprintln(out, ui.RenderSimpleTable([]ui.TableColumn{
			{Title: "Alias", Width: columnWidth(rows, 0, "Alias")},
			{Title: "Target", Width: columnWidth(rows, 1, "Target")},
			{Title: "Key", Width: 5},
		}, rows))
		return nil
	}

	if !isInteractive() {
		return errors.New(errors.ErrConfig,
			"--pick needs an interactive terminal",
			"Set runner.ssh_host in the settings file instead.")
	}

	hosts := make([]ui.JumpHost, len(entries))
	for i, e := range entries {
		hosts[i] = ui.JumpHost{Alias: e.Alias, Hostname: e.Hostname, User: e.User, Detail: e.Description()}
	}
	chosen, err := pickJumpHost(hosts)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't get your input", "")
	}
	if chosen == nil {
		fmt.Fprintln(out, "Cancelled.")
		return nil
	}

	path := settingsPath()
	if err := config.SetJumpHost(path, chosen.Alias); err != nil {
		return err
	}
	ui.PrintSuccess(out, "Queries will run on %s (saved to %s)", chosen.Alias, path)
	return nil
}
