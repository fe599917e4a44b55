package botserver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Activity is the part of the store chat activity writes to.
type Activity interface {
	UpdateChatterCount(ctx context.Context, user string) error
	IncrementCommandCount(ctx context.Context, name string) error
	AddQuote(ctx context.Context, quote, submitter string, at time.Time) (int, error)
	DeleteQuote(ctx context.Context, id int) (bool, error)
	RecordBan(ctx context.Context, user, reason string, at time.Time) error
}

const addQuotePrefix = "!addquote "

// RecordChat counts one chat line from user. A line starting with a
// command name counts toward that command; "!addquote <text>" stores a quote.
// It returns the new quote's id, or 0.
func RecordChat(ctx context.Context, a Activity, user, message string, at time.Time) (int, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return 0, fmt.Errorf("chat line without a user")
	}
	if err := a.UpdateChatterCount(ctx, user); err != nil {
		return 0, fmt.Errorf("counting chatter %s: %w", user, err)
	}

	message = strings.TrimSpace(message)
	if strings.HasPrefix(message, addQuotePrefix) {
		text := strings.TrimSpace(strings.TrimPrefix(message, addQuotePrefix))
		if text == "" {
			return 0, nil
		}
		id, err := a.AddQuote(ctx, text, user, at)
		if err != nil {
			return 0, fmt.Errorf("adding quote: %w", err)
		}
		slog.Info("quote added", "id", id, "submitter", user)
		return id, nil
	}

	fields := strings.Fields(message)
	if len(fields) > 0 && strings.HasPrefix(fields[0], "!") {
		// Unknown names update no rows.
		if err := a.IncrementCommandCount(ctx, fields[0]); err != nil {
			return 0, fmt.Errorf("counting command %s: %w", fields[0], err)
		}
	}
	return 0, nil
}

// RecordBan logs a moderation action against user.
func RecordBan(ctx context.Context, a Activity, user, reason string, at time.Time) error {
	user = strings.TrimSpace(user)
	if user == "" {
		return fmt.Errorf("ban without a user")
	}
	if err := a.RecordBan(ctx, user, reason, at); err != nil {
		return fmt.Errorf("recording ban of %s: %w", user, err)
	}
	slog.Info("ban recorded", "user", user, "reason", reason)
	return nil
}
