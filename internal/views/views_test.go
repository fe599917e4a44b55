package views

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pleasantbot/pleasantdash/internal/botapi"
)

// memoryBot behaves like the bot API with the data held in maps.
type memoryBot struct {
	mu       sync.Mutex
	commands map[string]botapi.Command
	quotes   map[int]botapi.Quote
	bans     []botapi.BanRecord
	stats    botapi.Stats

	commandsErr error
	addErr      error
	banErr      error
	statsErr    error
	quotesErr   error
	fetches     int
}

func newMemoryBot() *memoryBot {
	return &memoryBot{
		commands: map[string]botapi.Command{},
		quotes:   map[int]botapi.Quote{},
	}
}

func (m *memoryBot) Commands(context.Context) (map[string]botapi.Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if m.commandsErr != nil {
		return nil, m.commandsErr
	}
	out := make(map[string]botapi.Command, len(m.commands))
	for k, v := range m.commands {
		out[k] = v
	}
	return out, nil
}

func (m *memoryBot) AddCommand(_ context.Context, com botapi.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	m.commands[com.Name] = com
	return nil
}

func (m *memoryBot) DeleteCommands(_ context.Context, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range names {
		delete(m.commands, n)
	}
	return nil
}

func (m *memoryBot) Quotes(context.Context) (map[int]botapi.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quotesErr != nil {
		return nil, m.quotesErr
	}
	out := make(map[int]botapi.Quote, len(m.quotes))
	for k, v := range m.quotes {
		out[k] = v
	}
	return out, nil
}

func (m *memoryBot) BanHistory(context.Context) ([]botapi.BanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bans, m.banErr
}

func (m *memoryBot) Stats(context.Context) (botapi.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats, m.statsErr
}

type loadRecorder struct {
	mu   sync.Mutex
	last map[string]bool
}

func (r *loadRecorder) SetViewLoaded(view string, loaded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		r.last = map[string]bool{}
	}
	r.last[view] = loaded
}

func TestCommandsEmptyList(t *testing.T) {
	v := NewCommands(newMemoryBot())

	st := v.State(context.Background())
	assert.True(t, st.Loaded)
	assert.Empty(t, st.Rows)
	assert.NotNil(t, st.Rows)
}

func TestCommandsMountFetchesOnce(t *testing.T) {
	bot := newMemoryBot()
	v := NewCommands(bot)

	v.State(context.Background())
	v.State(context.Background())
	assert.Equal(t, 1, bot.fetches)

	v.Refresh(context.Background())
	assert.Equal(t, 2, bot.fetches)
}

func TestCommandsAddThenPresent(t *testing.T) {
	v := NewCommands(newMemoryBot())

	st, err := v.Add(context.Background(), botapi.Command{Name: "hello", Response: "hi $user", Perm: botapi.PermModerator})
	require.NoError(t, err)
	require.True(t, st.Loaded)
	assert.Equal(t, []CommandRow{{Name: "hello", Response: "hi $user", Perm: botapi.PermModerator}}, st.Rows)

	com, ok := st.Command("hello")
	require.True(t, ok)
	assert.Equal(t, "hi $user", com.Response)
}

func TestCommandsAddFailureStillRefetches(t *testing.T) {
	bot := newMemoryBot()
	bot.commands["keep"] = botapi.Command{Name: "keep", Response: "k", Perm: botapi.PermAll}
	bot.addErr = errors.New("duplicate")
	v := NewCommands(bot)

	st, err := v.Add(context.Background(), botapi.Command{Name: "new", Response: "n"})
	assert.Error(t, err)
	assert.Equal(t, 1, bot.fetches)
	assert.True(t, st.Loaded)
	assert.Len(t, st.Rows, 1)
}

func TestCommandsDeleteRemovesExactly(t *testing.T) {
	bot := newMemoryBot()
	for _, n := range []string{"a", "b", "c", "d"} {
		bot.commands[n] = botapi.Command{Name: n, Response: n, Perm: botapi.PermAll}
	}
	v := NewCommands(bot)

	st, err := v.Delete(context.Background(), []string{"b", "d"})
	require.NoError(t, err)

	var names []string
	for _, r := range st.Rows {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"a", "c"}, names)
}

func TestCommandsDeleteSelected(t *testing.T) {
	bot := newMemoryBot()
	for _, n := range []string{"a", "b", "c"} {
		bot.commands[n] = botapi.Command{Name: n, Response: n, Perm: botapi.PermAll}
	}
	v := NewCommands(bot)
	v.State(context.Background())

	v.Selection().Set("a", true)
	v.Selection().Set("c", true)
	st, err := v.DeleteSelected(context.Background())
	require.NoError(t, err)

	require.Len(t, st.Rows, 1)
	assert.Equal(t, "b", st.Rows[0].Name)
	assert.Zero(t, v.Selection().Len())
}

func TestCommandsFailureIsNotLoaded(t *testing.T) {
	bot := newMemoryBot()
	bot.commandsErr = &botapi.StatusError{Endpoint: botapi.EndpointGetCommands, StatusCode: 500}
	rec := &loadRecorder{}
	v := NewCommands(bot, WithLoadObserver(rec))

	var st CommandsState
	require.NotPanics(t, func() { st = v.State(context.Background()) })
	assert.False(t, st.Loaded)
	assert.Contains(t, st.Error, "500")
	assert.False(t, rec.last[ViewCommands])

	bot.commandsErr = nil
	st = v.Refresh(context.Background())
	assert.True(t, st.Loaded)
	assert.Empty(t, st.Error)
	assert.True(t, rec.last[ViewCommands])
}

func TestCommandsRefreshPrunesSelection(t *testing.T) {
	bot := newMemoryBot()
	bot.commands["a"] = botapi.Command{Name: "a"}
	bot.commands["b"] = botapi.Command{Name: "b"}
	v := NewCommands(bot)
	v.Selection().SetAll([]string{"a", "b"}, true)

	delete(bot.commands, "a")
	v.Refresh(context.Background())
	assert.Equal(t, []string{"b"}, v.Selection().Keys())
}

func TestQuotesFailureKeepsRows(t *testing.T) {
	bot := newMemoryBot()
	bot.quotes[2] = botapi.Quote{ID: 2, Quote: "second", Timestamp: "2021-01-02", Submitter: "b"}
	bot.quotes[1] = botapi.Quote{ID: 1, Quote: "first", Timestamp: "2021-01-01", Submitter: "a"}
	v := NewQuotes(bot)

	st := v.State(context.Background())
	require.Len(t, st.Rows, 2)
	assert.Equal(t, 1, st.Rows[0].ID)
	assert.Equal(t, 2, st.Rows[1].ID)

	bot.quotesErr = errors.New("connection refused")
	st = v.Refresh(context.Background())
	assert.Len(t, st.Rows, 2)
	assert.Equal(t, "connection refused", st.Error)
}

func TestDashboardLoaded(t *testing.T) {
	bot := newMemoryBot()
	bot.bans = []botapi.BanRecord{{User: "spam", Reason: "links", Timestamp: "2021-01-01 00:00:00"}}
	bot.stats = botapi.Stats{Commands: 4, TopCommand: "hello", TopComCount: 3}
	v := NewDashboard(bot)

	st := v.State(context.Background())
	assert.True(t, st.Loaded)
	assert.Equal(t, bot.bans, st.Bans)
	assert.Equal(t, 4, st.Stats.Commands)
}

func TestDashboardPartialFailure(t *testing.T) {
	bot := newMemoryBot()
	bot.stats = botapi.Stats{Quotes: 7}
	bot.banErr = errors.New("bans down")
	rec := &loadRecorder{}
	v := NewDashboard(bot, WithLoadObserver(rec))

	st := v.Refresh(context.Background())
	assert.False(t, st.Loaded)
	assert.Equal(t, "bans down", st.Error)
	assert.Equal(t, 7, st.Stats.Quotes)
	assert.Empty(t, st.Bans)
	assert.False(t, rec.last[ViewDashboard])

	bot.statsErr = errors.New("stats down")
	st = v.Refresh(context.Background())
	assert.Equal(t, "bans down; stats down", st.Error)
}

func TestCommandsConcurrentRefresh(t *testing.T) {
	bot := newMemoryBot()
	bot.commands["x"] = botapi.Command{Name: "x"}
	v := NewCommands(bot)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.Refresh(context.Background())
		}()
	}
	wg.Wait()

	st := v.State(context.Background())
	assert.True(t, st.Loaded)
	assert.Len(t, st.Rows, 1)
}

// gatedBot holds every commands fetch until the test answers it, so
// responses can be made to arrive out of order.
type gatedBot struct {
	*memoryBot
	calls chan chan map[string]botapi.Command
}

func (g *gatedBot) Commands(context.Context) (map[string]botapi.Command, error) {
	reply := make(chan map[string]botapi.Command)
	g.calls <- reply
	return <-reply, nil
}

func TestCommandsStaleResponseDiscarded(t *testing.T) {
	g := &gatedBot{memoryBot: newMemoryBot(), calls: make(chan chan map[string]botapi.Command)}
	v := NewCommands(g)
	ctx := context.Background()

	first := make(chan CommandsState, 1)
	go func() { first <- v.Refresh(ctx) }()
	older := <-g.calls

	second := make(chan CommandsState, 1)
	go func() { second <- v.Refresh(ctx) }()
	newer := <-g.calls

	newer <- map[string]botapi.Command{"new": {Name: "new", Response: "fresh", Perm: botapi.PermAll}}
	st := <-second
	require.Len(t, st.Rows, 1)
	assert.Equal(t, "new", st.Rows[0].Name)

	older <- map[string]botapi.Command{"old": {Name: "old", Response: "stale", Perm: botapi.PermAll}}
	st = <-first
	require.Len(t, st.Rows, 1)
	assert.Equal(t, "new", st.Rows[0].Name, "the older response must not replace the newer one")

	st = v.State(ctx)
	require.Len(t, st.Rows, 1)
	assert.Equal(t, "new", st.Rows[0].Name)
	_, ok := st.Command("old")
	assert.False(t, ok)
}
