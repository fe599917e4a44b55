package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pleasantbot/pleasantdash/internal/auth"
	"github.com/pleasantbot/pleasantdash/internal/botapi"
	"github.com/pleasantbot/pleasantdash/internal/config"
	"github.com/pleasantbot/pleasantdash/internal/health"
	"github.com/pleasantbot/pleasantdash/internal/metrics"
	"github.com/pleasantbot/pleasantdash/internal/views"
)

// errHostNotAllowed is returned for a request whose host may not pick a bot.
var errHostNotAllowed = errors.New("host not allowed")

// session is the view state for one bot API base URL. Every page served
// from the same host shares it.
type session struct {
	client    *botapi.Client
	auth      *auth.Authenticator
	commands  *views.Commands
	quotes    *views.Quotes
	dashboard *views.Dashboard
}

func newSession(baseURL string, bc config.BotConfig, m *metrics.Collector) *session {
	opts := []botapi.Option{botapi.WithTimeout(bc.Timeout)}
	var viewOpts []views.Option
	if m != nil {
		opts = append(opts, botapi.WithObserver(m))
		viewOpts = append(viewOpts, views.WithLoadObserver(m))
	}
	client := botapi.New(baseURL, opts...)
	return &session{
		client:    client,
		auth:      auth.NewAuthenticator(client),
		commands:  views.NewCommands(client, viewOpts...),
		quotes:    views.NewQuotes(client, viewOpts...),
		dashboard: views.NewDashboard(client, viewOpts...),
	}
}

// sessions maps bot base URLs to their session. Only the most recently used
// bot.max_sessions are kept; an evicted session leaves the health checker.
type sessions struct {
	mu      sync.Mutex
	byURL   *lru.Cache[string, *session]
	bot     config.BotConfig
	metrics *metrics.Collector
	health  *health.Checker
}

func newSessions(bc config.BotConfig, m *metrics.Collector, hc *health.Checker) *sessions {
	ss := &sessions{
		bot:     bc,
		metrics: m,
		health:  hc,
	}
	cache, err := lru.NewWithEvict[string, *session](sessionLimit(bc), ss.evicted)
	if err != nil {
		// Only a non-positive size fails, and sessionLimit never returns one.
		panic(err)
	}
	ss.byURL = cache
	return ss
}

func sessionLimit(bc config.BotConfig) int {
	if bc.MaxSessions > 0 {
		return bc.MaxSessions
	}
	return 1
}

// evicted runs inside Add, Purge and Resize, so ss.mu is held. The health
// checker never calls back into sessions, which keeps that lock order safe.
func (ss *sessions) evicted(baseURL string, _ *session) {
	slog.Debug("bot session dropped", "bot_url", baseURL)
	if ss.health != nil {
		ss.health.RemoveTarget(baseURL)
	}
}

// baseURL resolves the bot API for a request: the configured URL, or the
// request's hostname on the bot's port if that host is allowed.
func (ss *sessions) baseURL(r *http.Request) (string, error) {
	ss.mu.Lock()
	bc := ss.bot
	ss.mu.Unlock()

	if bc.URL != "" {
		return bc.URL, nil
	}
	if !hostAllowed(bc.AllowedHosts, r.Host) {
		return "", errHostNotAllowed
	}
	return botapi.BaseURLForHost(r.Host), nil
}

func hostAllowed(allowed []string, host string) bool {
	if len(allowed) == 0 {
		return true
	}
	name := botapi.HostName(host)
	for _, a := range allowed {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

func (ss *sessions) forRequest(r *http.Request) (*session, error) {
	u, err := ss.baseURL(r)
	if err != nil {
		return nil, err
	}
	return ss.get(u), nil
}

func (ss *sessions) get(baseURL string) *session {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if s, ok := ss.byURL.Get(baseURL); ok {
		return s
	}
	s := newSession(baseURL, ss.bot, ss.metrics)
	if ss.health != nil {
		ss.health.AddTarget(baseURL, s.client)
	}
	ss.byURL.Add(baseURL, s)
	return s
}

// update swaps the bot settings. Sessions are dropped when the URL, timeout
// or host list changes, so the next request rebuilds them.
func (ss *sessions) update(bc config.BotConfig) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	old := ss.bot
	ss.bot = bc
	if old.URL != bc.URL || old.Timeout != bc.Timeout || !sameHosts(old.AllowedHosts, bc.AllowedHosts) {
		ss.byURL.Purge()
	}
	if sessionLimit(old) != sessionLimit(bc) {
		ss.byURL.Resize(sessionLimit(bc))
	}
}

func sameHosts(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (ss *sessions) urls() []string {
	return ss.byURL.Keys()
}

func (ss *sessions) count() int {
	return ss.byURL.Len()
}
