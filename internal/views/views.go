// Package views holds the per-page state of the dashboard: the last collection
// fetched from the bot and whether that fetch worked. Every mutation goes to
// the bot and is followed by a full re-fetch; nothing is updated locally.
package views

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pleasantbot/pleasantdash/internal/botapi"
)

// NotLoadedMessage is shown when a view could not reach the bot.
const NotLoadedMessage = "ERROR. Please ensure the bot is running."

// View names, also used as metric labels.
const (
	ViewCommands  = "commands"
	ViewQuotes    = "quotes"
	ViewDashboard = "dashboard"
)

// Backend is the slice of the bot API the views read and mutate.
type Backend interface {
	Commands(ctx context.Context) (map[string]botapi.Command, error)
	AddCommand(ctx context.Context, com botapi.Command) error
	DeleteCommands(ctx context.Context, names []string) error
	Quotes(ctx context.Context) (map[int]botapi.Quote, error)
	BanHistory(ctx context.Context) ([]botapi.BanRecord, error)
	Stats(ctx context.Context) (botapi.Stats, error)
}

// LoadObserver is told the loaded flag of a view after every fetch.
type LoadObserver interface {
	SetViewLoaded(view string, loaded bool)
}

// Option configures a view.
type Option func(*base)

// WithLoadObserver reports load results to o.
func WithLoadObserver(o LoadObserver) Option {
	return func(b *base) { b.observer = o }
}

// base tracks mount state and discards responses older than the newest
// applied one, since concurrent refreshes may complete out of order.
type base struct {
	name     string
	observer LoadObserver

	mu      sync.Mutex
	mounted bool
	issued  uint64
	applied uint64
}

func (b *base) init(name string, opts []Option) {
	b.name = name
	for _, opt := range opts {
		opt(b)
	}
}

// begin must be called with mu held.
func (b *base) begin() uint64 {
	b.mounted = true
	b.issued++
	return b.issued
}

// fresh must be called with mu held.
func (b *base) fresh(seq uint64) bool {
	if seq < b.applied {
		return false
	}
	b.applied = seq
	return true
}

func (b *base) report(loaded bool, err error) {
	if err != nil {
		slog.Error("view fetch failed", "view", b.name, "err", err)
	}
	if b.observer != nil {
		b.observer.SetViewLoaded(b.name, loaded)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// --- Commands ---

// CommandsState is a snapshot of the commands page.
type CommandsState struct {
	Loaded    bool         `json:"loaded"`
	Error     string       `json:"error,omitempty"`
	Rows      []CommandRow `json:"rows"`
	FetchedAt time.Time    `json:"fetched_at"`

	commands map[string]botapi.Command
}

// Command looks up a command from the snapshot.
func (s CommandsState) Command(name string) (botapi.Command, bool) {
	com, ok := s.commands[name]
	return com, ok
}

// Commands is the commands page: table, add form and bulk delete.
type Commands struct {
	base
	backend   Backend
	state     CommandsState
	selection Selection
}

// NewCommands creates an unmounted commands view.
func NewCommands(b Backend, opts ...Option) *Commands {
	v := &Commands{
		backend: b,
		state:   CommandsState{Loaded: true, Rows: []CommandRow{}},
	}
	v.init(ViewCommands, opts)
	return v
}

// State returns the current snapshot, fetching first if never mounted.
func (v *Commands) State(ctx context.Context) CommandsState {
	v.mu.Lock()
	mounted := v.mounted
	st := v.state
	v.mu.Unlock()
	if !mounted {
		return v.Refresh(ctx)
	}
	return st
}

// Refresh re-fetches the commands. A failure sets Loaded to false.
func (v *Commands) Refresh(ctx context.Context) CommandsState {
	v.mu.Lock()
	seq := v.begin()
	v.mu.Unlock()

	coms, err := v.backend.Commands(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.fresh(seq) {
		return v.state
	}
	if err != nil {
		v.state.Loaded = false
		v.state.Error = err.Error()
	} else {
		v.state = CommandsState{
			Loaded:    true,
			Rows:      CommandRows(coms),
			FetchedAt: time.Now(),
			commands:  coms,
		}
		v.selection.Retain(func(name string) bool {
			_, ok := coms[name]
			return ok
		})
	}
	v.report(v.state.Loaded, err)
	return v.state
}

// Add sends the command to the bot and re-fetches whatever the outcome.
func (v *Commands) Add(ctx context.Context, com botapi.Command) (CommandsState, error) {
	err := v.backend.AddCommand(ctx, com)
	if err != nil {
		slog.Error("adding command failed", "command", com.Name, "err", err)
	} else {
		slog.Info("command added", "command", com.Name, "perm", com.Perm)
	}
	return v.Refresh(ctx), err
}

// Delete removes the named commands and re-fetches whatever the outcome.
func (v *Commands) Delete(ctx context.Context, names []string) (CommandsState, error) {
	err := v.backend.DeleteCommands(ctx, names)
	if err != nil {
		slog.Error("deleting commands failed", "commands", names, "err", err)
	} else {
		slog.Info("commands deleted", "commands", names)
	}
	return v.Refresh(ctx), err
}

// Selection returns the row selection used for bulk delete.
func (v *Commands) Selection() *Selection {
	return &v.selection
}

// DeleteSelected deletes the selected commands and clears the selection.
func (v *Commands) DeleteSelected(ctx context.Context) (CommandsState, error) {
	names := v.selection.Keys()
	v.selection.Clear()
	return v.Delete(ctx, names)
}

// --- Quotes ---

// QuotesState is a snapshot of the quotes page.
type QuotesState struct {
	Error     string     `json:"error,omitempty"`
	Rows      []QuoteRow `json:"rows"`
	FetchedAt time.Time  `json:"fetched_at"`
}

// Quotes is the quotes page. A failed fetch keeps the previous rows.
type Quotes struct {
	base
	backend Backend
	state   QuotesState
}

// NewQuotes creates an unmounted quotes view.
func NewQuotes(b Backend, opts ...Option) *Quotes {
	v := &Quotes{
		backend: b,
		state:   QuotesState{Rows: []QuoteRow{}},
	}
	v.init(ViewQuotes, opts)
	return v
}

// State returns the current snapshot, fetching first if never mounted.
func (v *Quotes) State(ctx context.Context) QuotesState {
	v.mu.Lock()
	mounted := v.mounted
	st := v.state
	v.mu.Unlock()
	if !mounted {
		return v.Refresh(ctx)
	}
	return st
}

// Refresh re-fetches the quotes.
func (v *Quotes) Refresh(ctx context.Context) QuotesState {
	v.mu.Lock()
	seq := v.begin()
	v.mu.Unlock()

	quotes, err := v.backend.Quotes(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.fresh(seq) {
		return v.state
	}
	if err != nil {
		v.state.Error = err.Error()
	} else {
		v.state = QuotesState{Rows: QuoteRows(quotes), FetchedAt: time.Now()}
	}
	v.report(err == nil, err)
	return v.state
}

// --- Dashboard ---

// DashboardState is a snapshot of the home page.
type DashboardState struct {
	Loaded    bool               `json:"loaded"`
	Error     string             `json:"error,omitempty"`
	Stats     botapi.Stats       `json:"stats"`
	Bans      []botapi.BanRecord `json:"bans"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// Dashboard is the home page: quick stats and ban history.
type Dashboard struct {
	base
	backend Backend
	state   DashboardState
}

// NewDashboard creates an unmounted dashboard view.
func NewDashboard(b Backend, opts ...Option) *Dashboard {
	v := &Dashboard{
		backend: b,
		state:   DashboardState{Loaded: true, Bans: []botapi.BanRecord{}},
	}
	v.init(ViewDashboard, opts)
	return v
}

// State returns the current snapshot, fetching first if never mounted.
func (v *Dashboard) State(ctx context.Context) DashboardState {
	v.mu.Lock()
	mounted := v.mounted
	st := v.state
	v.mu.Unlock()
	if !mounted {
		return v.Refresh(ctx)
	}
	return st
}

// Refresh fetches ban history and stats in parallel. Loaded is false if
// either fails; whichever succeeded is still applied.
func (v *Dashboard) Refresh(ctx context.Context) DashboardState {
	v.mu.Lock()
	seq := v.begin()
	v.mu.Unlock()

	var (
		wg       sync.WaitGroup
		bans     []botapi.BanRecord
		stats    botapi.Stats
		banErr   error
		statsErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		bans, banErr = v.backend.BanHistory(ctx)
	}()
	go func() {
		defer wg.Done()
		stats, statsErr = v.backend.Stats(ctx)
	}()
	wg.Wait()

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.fresh(seq) {
		return v.state
	}

	next := v.state
	next.Loaded = banErr == nil && statsErr == nil
	next.Error = ""
	if banErr == nil {
		next.Bans = bans
	}
	if statsErr == nil {
		next.Stats = stats
	}
	if banErr != nil {
		next.Error = errString(banErr)
		v.report(false, banErr)
	}
	if statsErr != nil {
		if next.Error != "" {
			next.Error += "; "
		}
		next.Error += errString(statsErr)
		v.report(false, statsErr)
	}
	if next.Loaded {
		next.FetchedAt = time.Now()
		v.report(true, nil)
	}
	v.state = next
	return v.state
}
