package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/rileyhilliard/rdpmon/internal/errors"
	"github.com/rileyhilliard/rdpmon/internal/i18n"
	"github.com/rileyhilliard/rdpmon/internal/logger"
	"github.com/rileyhilliard/rdpmon/internal/registry"
	"github.com/rileyhilliard/rdpmon/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	serverRemoveYes bool
	serverListClear bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage the monitored server roster",
	Long: `Add, remove and list monitored servers, and set which processes and
services are watched on each. Changes are saved to the registry file
immediately.

To change a server's address, remove it and add it again.`,
}

var serverAddCmd = &cobra.Command{
	Use:   "add <name> [ip]",
	Short: "Add a server",
	Long: `Add a server with empty process and service watch lists.

The address is stored as given. A server without an address stays in
the roster and reports an error on every refresh until it gets one.

Examples:
  rdpmon server add DC01 10.0.0.5
  rdpmon server add APP01 app01.corp.local`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ip := ""
		if len(args) == 2 {
			ip = args[1]
		}
		return serverAdd(cmd.OutOrStdout(), args[0], ip)
	},
}

var serverRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Remove a server",
	Long: `Remove a server from the roster. Asks for confirmation unless --yes is
given; without a terminal --yes is required.

Examples:
  rdpmon server remove DC01
  rdpmon server remove DC01 --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return serverRemove(cmd.OutOrStdout(), args[0], serverRemoveYes)
	},
}

var serverListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List servers and their watch lists",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serverList(cmd.OutOrStdout())
	},
}

var serverProcessesCmd = &cobra.Command{
	Use:   "processes <name> [process...]",
	Short: "Show or set the processes watched on a server",
	Long: `With only a server name, print its watched processes. With process
names, replace the list. Names may be separate arguments or comma
separated. Process names match tasklist output case-insensitively.

Examples:
  rdpmon server processes DC01
  rdpmon server processes DC01 sqlservr.exe w3wp.exe
  rdpmon server processes DC01 --clear`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return serverWatchList(cmd.OutOrStdout(), args[0], args[1:], serverListClear, watchProcesses)
	},
}

var serverServicesCmd = &cobra.Command{
	Use:   "services <name> [service...]",
	Short: "Show or set the services watched on a server",
	Long: `With only a server name, print its watched services. With service
names, replace the list. Use the service key name as sc expects it.

Examples:
  rdpmon server services DC01
  rdpmon server services DC01 Spooler,W3SVC
  rdpmon server services DC01 --clear`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return serverWatchList(cmd.OutOrStdout(), args[0], args[1:], serverListClear, watchServices)
	},
}

func init() {
	serverRemoveCmd.Flags().BoolVarP(&serverRemoveYes, "yes", "y", false, "skip the confirmation prompt")
	serverProcessesCmd.Flags().BoolVar(&serverListClear, "clear", false, "stop watching all processes")
	serverServicesCmd.Flags().BoolVar(&serverListClear, "clear", false, "stop watching all services")

	serverCmd.AddCommand(serverAddCmd, serverRemoveCmd, serverListCmd, serverProcessesCmd, serverServicesCmd)
	rootCmd.AddCommand(serverCmd)
}

// loadRegistry opens the registry named by the settings, for commands that
// don't need the probe pipeline.
func loadRegistry() (*registry.Registry, *i18n.Translator, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, nil, err
	}
	reg, err := openRegistry(s, logger.NewEnvLogger(logPrefix))
	if err != nil {
		return nil, nil, err
	}
	return reg, i18n.New(s.Language), nil
}

func serverAdd(out io.Writer, name, ip string) error {
	reg, _, err := loadRegistry()
	if err != nil {
		return err
	}
	if err := reg.AddServer(name, ip); err != nil {
		return err
	}

	def, _ := reg.Server(strings.TrimSpace(name))
	if def.IP == "" {
		ui.PrintWarning(out, "Added server '%s' (no address yet)", def.Name)
	} else {
		ui.PrintSuccess(out, "Added server '%s' at %s", def.Name, def.IP)
	}
	return nil
}

// confirmDelete asks the user to confirm. Tests replace it.
var confirmDelete = func(title string) (bool, error) {
	var confirm bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description("This cannot be undone").
				Value(&confirm),
		),
	)
	if err := form.Run(); err != nil {
		return false, err
	}
	return confirm, nil
}

// isInteractive reports whether prompts can be shown. Tests replace it.
var isInteractive = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func serverRemove(out io.Writer, name string, yes bool) error {
	reg, tr, err := loadRegistry()
	if err != nil {
		return err
	}
	if _, ok := reg.Server(name); !ok {
		return errors.New(errors.ErrRegistry,
			fmt.Sprintf("No server named '%s'", name),
			"See the roster with: rdpmon server list")
	}

	if !yes {
		if !isInteractive() {
			return errors.New(errors.ErrRegistry,
				fmt.Sprintf("Not removing '%s' without confirmation", name),
				"Pass --yes to remove without a prompt.")
		}
		ok, err := confirmDelete(tr.Tf(i18n.ConfirmDelete, name))
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrRegistry,
				"Couldn't get your input",
				"Try again with --yes to skip the prompt.")
		}
		if !ok {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	if err := reg.RemoveServer(name); err != nil {
		return err
	}
	ui.PrintSuccess(out, "Removed server '%s'", name)
	return nil
}

func serverList(out io.Writer) error {
	reg, tr, err := loadRegistry()
	if err != nil {
		return err
	}

	servers := reg.Servers()
	if len(servers) == 0 {
		fmt.Fprintln(out, tr.T(i18n.NoServers))
		fmt.Fprintln(out, ui.MutedStyle().Render("Add one with: rdpmon server add <name> <ip>"))
		return nil
	}

	rows := make([][]string, len(servers))
	for i, def := range servers {
		ip := def.IP
		if ip == "" {
			ip = "-"
		}
		rows[i] = []string{def.Name, ip, joinOrDash(def.Processes), joinOrDash(def.Services)}
	}

	fmt.Fprintln(out, ui.RenderSimpleTable([]ui.TableColumn{
		{Title: "Server", Width: columnWidth(rows, 0, "Server")},
		{Title: "Address", Width: columnWidth(rows, 1, "Address")},
		{Title: "Processes", Width: columnWidth(rows, 2, "Processes")},
		{Title: "Services", Width: columnWidth(rows, 3, "Services")},
	}, rows))
	return nil
}

type watchKind int

const (
	watchProcesses watchKind = iota
	watchServices
)

func serverWatchList(out io.Writer, name string, args []string, clearAll bool, kind watchKind) error {
	reg, _, err := loadRegistry()
	if err != nil {
		return err
	}

	def, ok := reg.Server(name)
	if !ok {
		return errors.New(errors.ErrRegistry,
			fmt.Sprintf("No server named '%s'", name),
			"See the roster with: rdpmon server list")
	}

	label := "processes"
	current := def.Processes
	set := reg.SetWatchedProcesses
	if kind == watchServices {
		label = "services"
		current = def.Services
		set = reg.SetWatchedServices
	}

	names := splitNames(args)
	if len(names) == 0 && !clearAll {
		if len(current) == 0 {
			fmt.Fprintf(out, "No %s watched on %s\n", label, name)
			return nil
		}
		for _, n := range current {
			fmt.Fprintln(out, n)
		}
		return nil
	}
	if clearAll && len(names) > 0 {
		return errors.New(errors.ErrRegistry,
			"--clear can't be combined with names",
			"Use --clear alone, or pass the full new list.")
	}

	if err := set(name, names); err != nil {
		return err
	}
	if clearAll {
		ui.PrintSuccess(out, "Cleared watched %s on %s", label, name)
		return nil
	}
	ui.PrintSuccess(out, "Watching %s on %s: %s", label, name, strings.Join(names, ", "))
	return nil
}

func joinOrDash(list []string) string {
	if len(list) == 0 {
		return "-"
	}
	return strings.Join(list, ", ")
}

// columnWidth fits column col to its widest cell, with some padding.
func columnWidth(rows [][]string, col int, title string) int {
	w := len(title)
	for _, r := range rows {
		w = max(w, len([]rune(r[col])))
	}
	return w + 2
}
