// Package store persists the bot's commands, quotes, ban log, chatter counts
// and settings in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pleasantbot/pleasantdash/internal/botapi"
)

const (
	quoteDateLayout = "2006-01-02"
	banTimeLayout   = "2006-01-02 15:04:05"
)

var ErrNotFound = errors.New("not found")

// SQLiteStore is the bot's database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Single writer; also keeps ":memory:" to one shared database.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS commands (
			id INTEGER PRIMARY KEY,
			commandname TEXT UNIQUE,
			commandresponse TEXT,
			perm TEXT,
			count INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS quotes (
			id INTEGER PRIMARY KEY,
			quote TEXT,
			timestamp TEXT,
			submitter TEXT
		);
		CREATE TABLE IF NOT EXISTS ban_history (
			user TEXT,
			reason TEXT,
			timestamp TEXT
		);
		CREATE TABLE IF NOT EXISTS chatters (
			username TEXT PRIMARY KEY,
			count INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListCommands returns every command keyed by name.
func (s *SQLiteStore) ListCommands(ctx context.Context) (map[string]botapi.Command, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT commandname, commandresponse, perm, count FROM commands`)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	out := make(map[string]botapi.Command)
	for rows.Next() {
		var com botapi.Command
		var perm string
		if err := rows.Scan(&com.Name, &com.Response, &perm, &com.Count); err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		com.Perm = botapi.Permission(perm)
		out[com.Name] = com
	}
	return out, rows.Err()
}

// UpsertCommand creates a command or replaces its response and permission.
// The usage count of an existing command is kept.
func (s *SQLiteStore) UpsertCommand(ctx context.Context, name, response string, perm botapi.Permission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commands (commandname, commandresponse, perm, count) VALUES (?, ?, ?, 0)
		ON CONFLICT(commandname) DO UPDATE SET commandresponse = excluded.commandresponse, perm = excluded.perm`,
		name, response, string(perm))
	if err != nil {
		return fmt.Errorf("saving command %q: %w", name, err)
	}
	return nil
}

// DeleteCommand removes a command, reporting whether it existed.
func (s *SQLiteStore) DeleteCommand(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM commands WHERE commandname = ?`, name)
	if err != nil {
		return false, fmt.Errorf("deleting command %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IncrementCommandCount records one use of a command.
func (s *SQLiteStore) IncrementCommandCount(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE commands SET count = count + 1 WHERE commandname = ?`, name)
	if err != nil {
		return fmt.Errorf("updating the count for %s: %w", name, err)
	}
	return nil
}

// ListQuotes returns every quote keyed by id.
func (s *SQLiteStore) ListQuotes(ctx context.Context) (map[int]botapi.Quote, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, quote, timestamp, submitter FROM quotes`)
	if err != nil {
		return nil, fmt.Errorf("querying quotes: %w", err)
	}
	defer rows.Close()

	out := make(map[int]botapi.Quote)
	for rows.Next() {
		var q botapi.Quote
		if err := rows.Scan(&q.ID, &q.Quote, &q.Timestamp, &q.Submitter); err != nil {
			return nil, fmt.Errorf("scanning quote: %w", err)
		}
		out[q.ID] = q
	}
	return out, rows.Err()
}

// AddQuote stores a quote dated at and returns its id.
func (s *SQLiteStore) AddQuote(ctx context.Context, quote, submitter string, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO quotes (quote, timestamp, submitter) VALUES (?, ?, ?)`,
		quote, at.Format(quoteDateLayout), submitter)
	if err != nil {
		return 0, fmt.Errorf("adding quote: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return int(id), nil
}

// DeleteQuote removes a quote, reporting whether it existed.
func (s *SQLiteStore) DeleteQuote(ctx context.Context, id int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quotes WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting quote %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListBans returns the ban log, newest first.
func (s *SQLiteStore) ListBans(ctx context.Context) ([]botapi.BanRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user, reason, timestamp FROM ban_history ORDER BY timestamp DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying ban history: %w", err)
	}
	defer rows.Close()

	out := []botapi.BanRecord{}
	for rows.Next() {
		var b botapi.BanRecord
		if err := rows.Scan(&b.User, &b.Reason, &b.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning ban: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// RecordBan appends to the ban log.
func (s *SQLiteStore) RecordBan(ctx context.Context, user, reason string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO ban_history (user, reason, timestamp) VALUES (?, ?, ?)`,
		user, reason, at.Format(banTimeLayout))
	if err != nil {
		return fmt.Errorf("recording ban of %s: %w", user, err)
	}
	return nil
}

// UpdateChatterCount records one chat message from user.
func (s *SQLiteStore) UpdateChatterCount(ctx context.Context, user string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chatters (username, count) VALUES (?, 1)
		ON CONFLICT(username) DO UPDATE SET count = count + 1`, user)
	if err != nil {
		return fmt.Errorf("updating chatter count for %s: %w", user, err)
	}
	return nil
}

// Stats computes the quick stats panel.
func (s *SQLiteStore) Stats(ctx context.Context) (botapi.Stats, error) {
	var st botapi.Stats
	counts := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM commands`, &st.Commands},
		{`SELECT COUNT(*) FROM quotes`, &st.Quotes},
		{`SELECT COUNT(*) FROM ban_history`, &st.Bans},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return st, fmt.Errorf("counting: %w", err)
		}
	}

	var err error
	st.TopCommand, st.TopComCount, err = s.top(ctx, `SELECT commandname, count FROM commands ORDER BY count DESC, commandname LIMIT 1`)
	if err != nil {
		return st, err
	}
	st.TopChatter, st.TopChatCount, err = s.top(ctx, `SELECT username, count FROM chatters ORDER BY count DESC, username LIMIT 1`)
	return st, err
}

func (s *SQLiteStore) top(ctx context.Context, query string) (string, int, error) {
	var name string
	var count int
	err := s.db.QueryRowContext(ctx, query).Scan(&name, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("querying top entry: %w", err)
	}
	return name, count, nil
}

// GetSetting returns a stored setting or ErrNotFound.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores or replaces a setting.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("writing setting %s: %w", key, err)
	}
	return nil
}
