package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/rileyhilliard/rdpmon/internal/ui"
	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage the IT accounts that raise alerts",
	Long: `Any connected session whose account exactly matches a watched user
raises an "IT detected" alert on that server. Matching is case-sensitive.`,
}

var usersListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List watched users",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return usersList(cmd.OutOrStdout())
	},
}

var usersAddCmd = &cobra.Command{
	Use:   "add <user>",
	Short: "Watch an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return usersAdd(cmd.OutOrStdout(), args[0])
	},
}

var usersRemoveCmd = &cobra.Command{
	Use:     "remove <user>",
	Aliases: []string{"rm"},
	Short:   "Stop watching an account",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return usersRemove(cmd.OutOrStdout(), args[0])
	},
}

var usersSetCmd = &cobra.Command{
	Use:   "set [user...]",
	Short: "Replace the whole watch list",
	Long: `Replace the watched users. Names may be separate arguments or comma
separated. With no names the list is cleared.

Examples:
  rdpmon users set alice bob
  rdpmon users set "alice,bob,carol"
  rdpmon users set`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return usersSet(cmd.OutOrStdout(), args)
	},
}

func init() {
	usersCmd.AddCommand(usersListCmd, usersAddCmd, usersRemoveCmd, usersSetCmd)
	rootCmd.AddCommand(usersCmd)
}

func usersList(out io.Writer) error {
	reg, _, err := loadRegistry()
	if err != nil {
		return err
	}
	users := reg.WatchedUsers()
	if len(users) == 0 {
		fmt.Fprintln(out, "No IT users watched")
		fmt.Fprintln(out, ui.MutedStyle().Render("Add one with: rdpmon users add <user>"))
		return nil
	}
	for _, u := range users {
		fmt.Fprintln(out, u)
	}
	return nil
}

func usersAdd(out io.Writer, user string) error {
	reg, _, err := loadRegistry()
	if err != nil {
		return err
	}
	if err := reg.AddWatchedUser(user); err != nil {
		return err
	}
	ui.PrintSuccess(out, "Watching '%s'", strings.TrimSpace(user))
	return nil
}

func usersRemove(out io.Writer, user string) error {
	reg, _, err := loadRegistry()
	if err != nil {
		return err
	}
	if err := reg.RemoveWatchedUser(user); err != nil {
		return err
	}
	ui.PrintSuccess(out, "No longer watching '%s'", user)
	return nil
}

func usersSet(out io.Writer, args []string) error {
	reg, _, err := loadRegistry()
	if err != nil {
		return err
	}
	if err := reg.SetWatchedUsers(splitNames(args)); err != nil {
		return err
	}
	users := reg.WatchedUsers()
	if len(users) == 0 {
		ui.PrintSuccess(out, "Cleared the IT watch list")
		return nil
	}
	ui.PrintSuccess(out, "Watching %s", strings.Join(users, ", "))
	return nil
}
