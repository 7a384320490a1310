package cli

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newPlayersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "players",
		Short: "Administer the player database",
	}

	cmd.AddCommand(newPlayersListCmd())
	cmd.AddCommand(newPlayersGetCmd())
	cmd.AddCommand(newPlayersAddCmd())
	cmd.AddCommand(newPlayersRemoveCmd())
	cmd.AddCommand(newPlayersDisableCmd())
	cmd.AddCommand(newPlayersEnableCmd())
	cmd.AddCommand(newPlayTimesCmd())

	return cmd
}

func playerPath(name string, suffix ...string) string {
	path := "/api/v1/players/" + url.PathEscape(name)
	for _, s := range suffix {
		path += "/" + s
	}
	return path
}

func newPlayersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered players",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result PlayerList
			if err := client.Get(cmd.Context(), "/api/v1/players", &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newPlayersGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Show a player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result Player
			if err := client.Get(cmd.Context(), playerPath(args[0]), &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newPlayersAddCmd() *cobra.Command {
	var role, password string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a player with a personal password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return fmt.Errorf("--password is required")
			}

			body := map[string]string{
				"name":     args[0],
				"role":     role,
				"password": password,
			}

			var result CreatedPlayer
			if err := client.Post(cmd.Context(), "/api/v1/players", body, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "PLAYER", "Role: PLAYER or GM")
	cmd.Flags().StringVar(&password, "password", "", "Personal password")

	return cmd
}

func newPlayersRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Delete(cmd.Context(), playerPath(args[0])); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).PrintMessage(fmt.Sprintf("Removed %s", args[0]))
			return nil
		},
	}
}

func newPlayersDisableCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "disable <name>",
		Short: "Disable a player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reason == "" {
				return fmt.Errorf("--reason is required")
			}

			var result Player
			body := map[string]string{"reason": reason}
			if err := client.Post(cmd.Context(), playerPath(args[0], "disable"), body, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason shown to the player when refused")

	return cmd
}

func newPlayersEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <name>",
		Short: "Re-enable a disabled player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result Player
			if err := client.Post(cmd.Context(), playerPath(args[0], "enable"), nil, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newPlayTimesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "playtimes",
		Short: "Manage a player's weekly play times",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <name>",
		Short: "Show a player's play times",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result PlayTimes
			if err := client.Get(cmd.Context(), playerPath(args[0], "playtimes"), &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <name> [<day>/<HH:MM>-<HH:MM>]...",
		Short: "Replace a player's play times",
		Long: `Replace a player's play times. Each window is an ISO weekday
(1 = Monday, 7 = Sunday) and a clock range, e.g. "1/18:00-22:00".
A window may not end before it starts; split late sessions across two days.
Passing no windows removes every restriction.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := make([]PlayTime, 0, len(args)-1)
			for _, arg := range args[1:] {
				pt, err := parsePlayTime(arg)
				if err != nil {
					return err
				}
				body = append(body, pt)
			}

			var result PlayTimes
			if err := client.Put(cmd.Context(), playerPath(args[0], "playtimes"), body, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	})

	return cmd
}

// parsePlayTime parses "<day>/<start>-<end>". Clock values are checked by
// the server.
func parsePlayTime(s string) (PlayTime, error) {
	day, window, ok := strings.Cut(s, "/")
	if !ok {
		return PlayTime{}, fmt.Errorf("invalid play time %q: expected <day>/<start>-<end>", s)
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return PlayTime{}, fmt.Errorf("invalid play time %q: bad day", s)
	}
	start, end, ok := strings.Cut(window, "-")
	if !ok {
		return PlayTime{}, fmt.Errorf("invalid play time %q: expected <start>-<end>", s)
	}
	return PlayTime{Day: d, Start: start, End: end}, nil
}
