package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pleasantbot/pleasantdash/internal/auth"
	"github.com/pleasantbot/pleasantdash/internal/botapi"
	"github.com/pleasantbot/pleasantdash/internal/config"
	"github.com/pleasantbot/pleasantdash/internal/views"
)

// botClient builds a client for the configured bot API, or localhost when
// none is set.
func botClient(cmd *cobra.Command) (*botapi.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	u := cfg.Bot.URL
	if u == "" {
		u = botapi.BaseURLForHost("localhost")
	}
	return botapi.New(u, botapi.WithTimeout(cfg.Bot.Timeout)), nil
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
}

func printBanner(cfg *config.Config) {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	cyan.Println("  PleasantBot Dashboard")
	cyan.Println("  ---------------------")
	green.Printf("  Listening:  ")
	fmt.Println(cfg.Listen.Addr())
	green.Printf("  Bot API:    ")
	if cfg.Bot.URL != "" {
		fmt.Println(cfg.Bot.URL)
	} else {
		fmt.Println("request host, port 8080")
	}
	if cfg.OAuth.ClientID == "" {
		yellow.Println("  Twitch login disabled: oauth.client_id is not set")
	}
	fmt.Println()
}

func newCommandsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "List, add and delete bot commands",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List commands",
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := botClient(cmd)
				if err != nil {
					return err
				}
				coms, err := c.Commands(context.Background())
				if err != nil {
					color.Red("%s\n", views.NotLoadedMessage)
					return err
				}
				tw := newTable()
				fmt.Fprintln(tw, "NAME\tPERM\tRESPONSE")
				for _, row := range views.CommandRows(coms) {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", row.Name, row.Perm, row.Response)
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "add <name> <response> [perm]",
			Short: "Add or replace a command",
			Args:  cobra.RangeArgs(2, 3),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := botClient(cmd)
				if err != nil {
					return err
				}
				com := botapi.Command{Name: args[0], Response: args[1], Perm: botapi.PermAll}
				if len(args) == 3 {
					com.Perm = botapi.Permission(args[2])
				}
				if err := c.AddCommand(context.Background(), com); err != nil {
					return err
				}
				color.Green("Added %s\n", com.Name)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <name>...",
			Short: "Delete commands by name",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := botClient(cmd)
				if err != nil {
					return err
				}
				if err := c.DeleteCommands(context.Background(), args); err != nil {
					return err
				}
				color.Green("Deleted %d command(s)\n", len(args))
				return nil
			},
		},
	)
	return cmd
}

func newQuotesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quotes",
		Short: "List quotes",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := botClient(cmd)
			if err != nil {
				return err
			}
			quotes, err := c.Quotes(context.Background())
			if err != nil {
				return err
			}
			tw := newTable()
			fmt.Fprintln(tw, "#\tDATE\tSUBMITTER\tQUOTE")
			for _, q := range views.QuoteRows(quotes) {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", q.ID, q.Timestamp, q.Submitter, q.Quote)
			}
			return tw.Flush()
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show quick stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := botClient(cmd)
			if err != nil {
				return err
			}
			s, err := c.Stats(context.Background())
			if err != nil {
				color.Red("%s\n", views.NotLoadedMessage)
				return err
			}
			cyan := color.New(color.FgCyan)
			cyan.Println("  Quick Stats")
			fmt.Printf("  Commands:     %d\n", s.Commands)
			fmt.Printf("  Quotes:       %d\n", s.Quotes)
			fmt.Printf("  Bans:         %d\n", s.Bans)
			fmt.Printf("  Top command:  %s (%d)\n", s.TopCommand, s.TopComCount)
			fmt.Printf("  Top chatter:  %s (%d)\n", s.TopChatter, s.TopChatCount)
			return nil
		},
	}
}

func newBansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bans",
		Short: "Show ban history",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := botClient(cmd)
			if err != nil {
				return err
			}
			bans, err := c.BanHistory(context.Background())
			if err != nil {
				return err
			}
			if len(bans) == 0 {
				fmt.Println("There is no ban history data.")
				return nil
			}
			tw := newTable()
			fmt.Fprintln(tw, "USER\tREASON\tTIMESTAMP")
			for _, b := range bans {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", b.User, b.Reason, b.Timestamp)
			}
			return tw.Flush()
		},
	}
}

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Inspect and set the bot's Twitch OAuth token",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Report whether the bot holds a token",
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := botClient(cmd)
				if err != nil {
					return err
				}
				if auth.NewAuthenticator(c).Authenticated(context.Background()) {
					color.Green("Bot authenticated\n")
				} else {
					color.Yellow("Bot not authenticated\n")
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "token <fragment-or-token>",
			Short: "Send a token, or a redirect fragment holding one, to the bot",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := botClient(cmd)
				if err != nil {
					return err
				}
				a := auth.NewAuthenticator(c)
				if strings.Contains(args[0], "access_token=") {
					err = a.SendToken(context.Background(), args[0])
				} else {
					err = a.SendRawToken(context.Background(), args[0])
				}
				if err != nil {
					return err
				}
				color.Green("Token forwarded\n")
				return nil
			},
		},
		&cobra.Command{
			Use:   "login-url",
			Short: "Print the Twitch authorization URL",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				if cfg.OAuth.ClientID == "" {
					return fmt.Errorf("oauth.client_id is not configured")
				}
				fmt.Println(auth.LoginURL(auth.OAuthConfig{
					ClientID:    cfg.OAuth.ClientID,
					RedirectURI: cfg.OAuth.RedirectURI,
					Scopes:      cfg.OAuth.Scopes,
				}))
				return nil
			},
		},
	)
	return cmd
}
