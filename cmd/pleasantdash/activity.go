package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pleasantbot/pleasantdash/internal/botserver"
	"github.com/pleasantbot/pleasantdash/internal/store"
)

// withStore opens the configured bot database for one command.
func withStore(cmd *cobra.Command, fn func(context.Context, *store.SQLiteStore) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := store.NewSQLiteStore(cfg.Backend.Database)
	if err != nil {
		return fmt.Errorf("opening bot database: %w", err)
	}
	defer st.Close()
	return fn(context.Background(), st)
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <user> <message>...",
		Short: "Record a chat line as the bot would see it",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st *store.SQLiteStore) error {
				id, err := botserver.RecordChat(ctx, st, args[0], strings.Join(args[1:], " "), time.Now())
				if err != nil {
					return err
				}
				if id > 0 {
					color.Green("Added quote #%d\n", id)
				} else {
					color.Green("Recorded\n")
				}
				return nil
			})
		},
	}
}

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Add and delete quotes in the bot database",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <submitter> <text>...",
			Short: "Add a quote",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, func(ctx context.Context, st *store.SQLiteStore) error {
					id, err := st.AddQuote(ctx, strings.Join(args[1:], " "), args[0], time.Now())
					if err != nil {
						return err
					}
					color.Green("Added quote #%d\n", id)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a quote by id",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid quote id %q", args[0])
				}
				return withStore(cmd, func(ctx context.Context, st *store.SQLiteStore) error {
					ok, err := st.DeleteQuote(ctx, id)
					if err != nil {
						return err
					}
					if !ok {
						color.Yellow("No quote #%d\n", id)
						return nil
					}
					color.Green("Deleted quote #%d\n", id)
					return nil
				})
			},
		},
	)
	return cmd
}

func newBanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ban <user> [reason]...",
		Short: "Record a ban in the bot's history",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st *store.SQLiteStore) error {
				if err := botserver.RecordBan(ctx, st, args[0], strings.Join(args[1:], " "), time.Now()); err != nil {
					return err
				}
				color.Green("Recorded ban of %s\n", args[0])
				return nil
			})
		},
	}
}
